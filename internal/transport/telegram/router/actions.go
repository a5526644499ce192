package router

import (
	"context"
	"errors"
	"strconv"

	"postbot/internal/core"
	kit "postbot/internal/transport"
	"postbot/internal/wizard"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

func (r *Router) onCallback(ctx context.Context, req *Request) error {
	sel := req.Sel
	switch sel.Kind {
	case core.SelNoop:
		return nil

	// Navigation closes any open dialog.
	case core.SelChannels:
		r.svc.CancelSession(req.FromID)
		return r.reply(ctx, req, r.channelsScreen(ctx, req.FromID, sel.Value))
	case core.SelChannel:
		r.svc.CancelSession(req.FromID)
		return r.openChannel(ctx, req, sel.ChannelID, "")
	case core.SelJob:
		r.svc.CancelSession(req.FromID)
		return r.openJob(ctx, req, sel.ChannelID, sel.JobID, "")
	case core.SelCancel:
		sess, had := r.svc.Session(req.FromID)
		r.svc.CancelSession(req.FromID)
		if !had {
			return r.reply(ctx, req, r.channelsScreen(ctx, req.FromID, 0))
		}
		req.Answer = "Cancelled"
		if sess.Mode.IsEdit() {
			return r.openJob(ctx, req, sess.ChannelID, sess.EditJobID, "")
		}
		return r.openChannel(ctx, req, sess.ChannelID, "")

	case core.SelAdd:
		sess, err := r.svc.StartSession(ctx, req.FromID, sel.ChannelID, wizard.ModeAdd, 0)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.reply(ctx, req, r.wizardScreen(sess, ""))
	case core.SelEdit:
		mode := sel.Mode()
		if mode < wizard.ModeEditText || mode > wizard.ModeEditAll {
			return r.fail(ctx, req, core.ErrBadSelection)
		}
		sess, err := r.svc.StartSession(ctx, req.FromID, sel.ChannelID, mode, sel.JobID)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.reply(ctx, req, r.wizardScreen(sess, ""))

	case core.SelPause:
		job, res, err := r.svc.Pause(ctx, req.FromID, sel.ChannelID, sel.JobID)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		req.Answer = "Paused"
		return r.reply(ctx, req, r.jobScreen(sel.ChannelID, job, persistNote(res)))
	case core.SelResume:
		job, res, err := r.svc.Resume(ctx, req.FromID, sel.ChannelID, sel.JobID)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		req.Answer = "Resumed"
		return r.reply(ctx, req, r.jobScreen(sel.ChannelID, job, persistNote(res)))
	case core.SelDelete:
		if !r.svc.CanManage(ctx, sel.ChannelID, req.FromID) {
			return r.fail(ctx, req, core.ErrPermission)
		}
		job, err := r.svc.Job(sel.ChannelID, sel.JobID)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		return r.reply(ctx, req, r.deleteScreen(sel.ChannelID, job))
	case core.SelDeleteConfirm:
		res, err := r.svc.Delete(ctx, req.FromID, sel.ChannelID, sel.JobID)
		if err != nil {
			return r.fail(ctx, req, err)
		}
		req.Answer = "Deleted"
		note := "Post #" + strconv.Itoa(sel.JobID) + " deleted."
		if p := persistNote(res); p != "" {
			note += "\n" + p
		}
		return r.openChannel(ctx, req, sel.ChannelID, note)
	case core.SelSendNow:
		if err := r.svc.SendNow(ctx, req.FromID, sel.ChannelID, sel.JobID); err != nil {
			if errors.Is(err, core.ErrPermission) || errors.Is(err, core.ErrEmptyJob) {
				return r.fail(ctx, req, err)
			}
			req.Answer = "Sending failed, check that I can post in the channel."
			return err
		}
		req.Answer = "Sent"
		return nil

	case core.SelPeriod, core.SelHour, core.SelMinute, core.SelDay, core.SelAllDays, core.SelCommit:
		return r.wizardInput(ctx, req)
	}
	return r.fail(ctx, req, core.ErrBadSelection)
}

func (r *Router) openChannel(ctx context.Context, req *Request, channelID int64, note string) error {
	if !r.svc.CanManage(ctx, channelID, req.FromID) {
		return r.fail(ctx, req, core.ErrPermission)
	}
	ch, ok := r.svc.Channel(channelID)
	if !ok {
		req.Answer = "Unknown channel"
		return r.reply(ctx, req, r.channelsScreen(ctx, req.FromID, 0))
	}
	return r.reply(ctx, req, r.channelScreen(ch, note))
}

func (r *Router) openJob(ctx context.Context, req *Request, channelID int64, jobID int, note string) error {
	if !r.svc.CanManage(ctx, channelID, req.FromID) {
		return r.fail(ctx, req, core.ErrPermission)
	}
	job, err := r.svc.Job(channelID, jobID)
	if err != nil {
		req.Answer = "That post no longer exists."
		return r.openChannel(ctx, req, channelID, "")
	}
	return r.reply(ctx, req, r.jobScreen(channelID, job, note))
}

func (r *Router) wizardInput(ctx context.Context, req *Request) error {
	step, err := r.svc.Choose(ctx, req.FromID, req.Sel)
	if err != nil {
		// validation failures keep the prompt and explain in the toast
		return r.fail(ctx, req, err)
	}
	return r.renderStep(ctx, req, step)
}

func (r *Router) renderStep(ctx context.Context, req *Request, step core.Step) error {
	if step.Committed != nil {
		req.Answer = "Saved"
		if step.Committed.ScheduleErr != nil {
			req.Answer = "Saved, but not scheduled"
		}
		return r.reply(ctx, req, r.committedScreen(*step.Committed))
	}
	var note string
	switch step.Outcome {
	case wizard.Ignored:
		if req.isCallback() {
			req.Answer = "That button is no longer active."
		} else {
			note = "Please use the buttons below."
		}
	case wizard.Reprompt:
		note = "Please send some text or a photo."
	case wizard.TooLong:
		note = "That text is too long. Telegram allows " + strconv.Itoa(wizard.MaxTextRunes) + " characters; please send a shorter one."
	}
	return r.reply(ctx, req, r.wizardScreen(step.Session, note))
}

func (r *Router) onText(ctx context.Context, req *Request) error {
	msg := req.Update.Message
	step, err := r.svc.Text(ctx, req.FromID, msg.Text, msg.PhotoID)
	if errors.Is(err, core.ErrNoSession) {
		_, err := tgui.New().
			Line("I only understand buttons and commands here.").
			Line("Open /channels to schedule a post, or /help for the command list.").
			Build().Send(ctx, r.ad, req.Chat)
		return err
	}
	if err != nil {
		return r.fail(ctx, req, err)
	}
	return r.renderStep(ctx, req, step)
}

func (r *Router) onChatAdded(ctx context.Context, req *Request) error {
	ev := req.Update.ChatAdded
	if ev.Removed {
		// jobs stay stored; deliveries fail until the bot is re-added
		req.Logger.Info("removed from chat", logx.String("title", ev.Title))
		return nil
	}
	ch, res := r.svc.ChannelJoined(ctx, ev.ChatID, ev.Title)
	if res.Err != nil {
		req.Logger.Warn("channel not persisted", logx.Err(res.Err))
	}
	if ev.ByID == 0 {
		return nil
	}
	// The adder may never have opened a private chat; failures are expected.
	_, err := tgui.New().
		Title("📢", "Added to "+ch.Title).
		Line("Open /channels to schedule posts for it.").
		Build().Send(ctx, r.ad, kit.ChatTarget{ChatID: ev.ByID})
	if err != nil {
		req.Logger.Debug("notify adder failed", logx.Err(err))
	}
	return nil
}
