package router

import (
	"context"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/core"
	"postbot/internal/jobstore"
	"postbot/internal/wizard"
	"postbot/pkg/tgui"
)

const (
	channelsPerPage = 8
	previewRunes    = 40
	nextRunLayout   = "Mon 02 Jan 15:04"
)

func btn(text string, sel core.Selection) tele.Btn { return tgui.Btn(text, sel.Encode()) }

func persistNote(res jobstore.Result) string {
	if res.Err != nil {
		return "⚠️ Saved in memory only: writing to storage failed."
	}
	return ""
}

func jobLabel(j jobstore.Job) string {
	label := "#" + strconv.Itoa(j.ID) + " " + j.Time.String()
	if j.Paused {
		label += " ⏸"
	}
	preview := j.Text
	if preview == "" && j.Photo != "" {
		preview = "[photo]"
	}
	if preview != "" {
		label += " · " + tgui.TruncRunes(preview, previewRunes)
	}
	return label
}

func (r *Router) channelsScreen(ctx context.Context, userID int64, page int) tgui.Message {
	chs := r.svc.ManagedChannels(ctx, userID)
	b := tgui.New().Title("📢", "Your channels")
	if len(chs) == 0 {
		return b.Line("No channels yet. Add me to a channel as an administrator and it shows up here.").Build()
	}
	p := tgui.Paginate(chs, page, channelsPerPage)
	kb := tgui.NewInline()
	for _, ch := range p.Items {
		kb.Row(btn(ch.Title, core.OpenChannel(ch.ID)))
	}
	if p.Pages > 1 {
		var nav []tele.Btn
		if p.HasPrev {
			nav = append(nav, btn("‹", core.Channels(p.Index-1)))
		}
		nav = append(nav, btn(p.Label(), core.Pick(core.SelNoop, 0)))
		if p.HasNext {
			nav = append(nav, btn("›", core.Channels(p.Index+1)))
		}
		kb.Row(nav...)
	}
	return b.Line("Pick a channel to manage its scheduled posts.").Inline(kb).Build()
}

func (r *Router) channelScreen(ch jobstore.Channel, note string) tgui.Message {
	jobs := r.svc.Jobs(ch.ID)
	b := tgui.New().Title("📢", ch.Title)
	if note != "" {
		b.Line(note).Blank()
	}
	kb := tgui.NewInline()
	if len(jobs) == 0 {
		b.Line("No scheduled posts yet.")
	} else {
		b.Line(fmt.Sprintf("%d scheduled post(s), times in %s:", len(jobs), r.svc.Location()))
		for _, j := range jobs {
			kb.Row(btn(jobLabel(j), core.OnJob(core.SelJob, ch.ID, j.ID)))
		}
	}
	kb.Row(btn("➕ Add post", core.AddJob(ch.ID)))
	kb.Row(btn("« Channels", core.Channels(0)))
	return b.Inline(kb).Build()
}

func (r *Router) jobScreen(channelID int64, j jobstore.Job, note string) tgui.Message {
	b := tgui.New().Title("🗓", "Post #"+strconv.Itoa(j.ID))
	if note != "" {
		b.Line(note).Blank()
	}
	if j.Text != "" {
		b.HTML(tgui.Quote(tgui.TruncRunes(j.Text, 500)))
	}
	if j.Photo != "" {
		b.KV("Photo", "attached")
	}
	b.KV("Time", j.Time.String()+" ("+r.svc.Location().String()+")")
	b.KV("Days", j.Days.String())
	if j.Paused {
		b.KV("Status", "paused")
	} else {
		b.KV("Status", "active")
		if next, ok := r.svc.NextRun(channelID, j.ID); ok {
			b.KV("Next run", next.In(r.svc.Location()).Format(nextRunLayout))
		}
	}

	kb := tgui.NewInline()
	kb.Row(btn("📤 Send now", core.OnJob(core.SelSendNow, channelID, j.ID)))
	if j.Paused {
		kb.Row(btn("▶️ Resume", core.OnJob(core.SelResume, channelID, j.ID)))
	} else {
		kb.Row(btn("⏸ Pause", core.OnJob(core.SelPause, channelID, j.ID)))
	}
	kb.Row(
		btn("✏️ Text", core.Edit(channelID, j.ID, wizard.ModeEditText)),
		btn("🕒 Time", core.Edit(channelID, j.ID, wizard.ModeEditTime)),
	)
	kb.Row(
		btn("📅 Days", core.Edit(channelID, j.ID, wizard.ModeEditDays)),
		btn("♻️ All", core.Edit(channelID, j.ID, wizard.ModeEditAll)),
	)
	kb.Row(btn("🗑 Delete", core.OnJob(core.SelDelete, channelID, j.ID)))
	kb.Row(btn("« Back", core.OpenChannel(channelID)))
	return b.Inline(kb).Build()
}

func (r *Router) deleteScreen(channelID int64, j jobstore.Job) tgui.Message {
	return tgui.New().
		Title("🗑", "Delete post #"+strconv.Itoa(j.ID)+"?").
		Line(jobLabel(j)).
		Line("This cannot be undone.").
		Inline(tgui.ConfirmInline(
			btn("Yes, delete", core.OnJob(core.SelDeleteConfirm, channelID, j.ID)),
			btn("No", core.OnJob(core.SelJob, channelID, j.ID)),
		)).
		Build()
}

func wizardTitle(sess wizard.Session) string {
	switch sess.Mode {
	case wizard.ModeAdd:
		return "New post"
	case wizard.ModeEditText:
		return "Edit text of post #" + strconv.Itoa(sess.EditJobID)
	case wizard.ModeEditTime:
		return "Edit time of post #" + strconv.Itoa(sess.EditJobID)
	case wizard.ModeEditDays:
		return "Edit days of post #" + strconv.Itoa(sess.EditJobID)
	default:
		return "Edit post #" + strconv.Itoa(sess.EditJobID)
	}
}

// wizardScreen prompts for the session's current step.
func (r *Router) wizardScreen(sess wizard.Session, note string) tgui.Message {
	b := tgui.New().Title("✍️", wizardTitle(sess))
	if note != "" {
		b.Line(note).Blank()
	}
	d := sess.Draft
	if d.Text != "" {
		b.KV("Text", tgui.TruncRunes(d.Text, 200))
	}
	if d.Photo != "" {
		b.KV("Photo", "attached")
	}
	if d.Period != wizard.PeriodUnset {
		t := strconv.Itoa(d.Hour12)
		if d.Hour12 == 0 {
			t = "?"
		}
		if d.MinuteSet {
			t += fmt.Sprintf(":%02d", d.Minute)
		}
		b.KV("Time", t+" "+d.Period.String())
	}

	kb := tgui.NewInline()
	cancel := btn("✖️ Cancel", core.Pick(core.SelCancel, 0))
	switch sess.Step {
	case wizard.StepWaitText:
		b.Line("Send the post text, or a photo with an optional caption.")
	case wizard.StepWaitPeriod:
		b.Line("Morning or afternoon?")
		kb.Row(btn("AM", core.Pick(core.SelPeriod, int(wizard.AM))), btn("PM", core.Pick(core.SelPeriod, int(wizard.PM))))
	case wizard.StepWaitHour:
		b.Line("Pick the hour.")
		hours := make([]tele.Btn, 0, 12)
		for h := 1; h <= 12; h++ {
			hours = append(hours, btn(strconv.Itoa(h), core.Pick(core.SelHour, h)))
		}
		kb.Grid(4, hours...)
	case wizard.StepWaitMinute:
		b.Line("Pick the minute.")
		mins := make([]tele.Btn, 0, len(wizard.Minutes))
		for _, m := range wizard.Minutes {
			mins = append(mins, btn(fmt.Sprintf(":%02d", m), core.Pick(core.SelMinute, m)))
		}
		kb.Grid(4, mins...)
	case wizard.StepWaitDays:
		b.KV("Days", d.Days.String())
		b.Line("Toggle the weekdays, then save.")
		days := make([]tele.Btn, 0, 7)
		for i := 0; i < 7; i++ {
			label := jobstore.DayName(i)
			if d.Days.Has(i) {
				label = "✅ " + label
			}
			days = append(days, btn(label, core.Pick(core.SelDay, i)))
		}
		kb.Grid(4, days...)
		kb.Row(btn("All", core.Pick(core.SelAllDays, 0)), btn("💾 Save", core.Pick(core.SelCommit, 0)))
	}
	kb.Row(cancel)
	return b.Inline(kb).Build()
}

func (r *Router) committedScreen(c core.Commit) tgui.Message {
	verb := "updated"
	if c.Added {
		verb = "scheduled"
	}
	j := c.Job
	b := tgui.New().Title("✅", "Post #"+strconv.Itoa(j.ID)+" "+verb)
	if note := persistNote(c.Result); note != "" {
		b.Line(note).Blank()
	}
	if c.ScheduleErr != nil {
		b.Line("⚠️ Saved, but it will not be posted: " + c.ScheduleErr.Error()).
			Line("Edit the time and days of this post to fix it.").Blank()
	}
	b.KV("Time", j.Time.String()+" ("+r.svc.Location().String()+")")
	b.KV("Days", j.Days.String())
	if j.Paused {
		b.KV("Status", "paused")
	} else if c.ScheduleErr != nil {
		b.KV("Status", "not scheduled")
	} else if next, ok := r.svc.NextRun(c.ChannelID, j.ID); ok {
		b.KV("Next run", next.In(r.svc.Location()).Format(nextRunLayout))
	}
	kb := tgui.NewInline().
		Row(btn("Open post", core.OnJob(core.SelJob, c.ChannelID, j.ID))).
		Row(btn("« Back to channel", core.OpenChannel(c.ChannelID)))
	return b.Inline(kb).Build()
}
