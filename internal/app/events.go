package app

import (
	"context"
	"strconv"
	"strings"

	"postbot/internal/config"
	"postbot/internal/jobstore"
	"postbot/internal/notifier"
	"postbot/internal/scheduler"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				if n := a.bus.Dropped(); n > 0 {
					a.log.Warn("events dropped", logx.Uint64("count", n))
				}
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Keep this debug-level to avoid noise from frequent posts.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})
}

// startFailureNotices tells the job owner in private when a scheduled post
// could not be delivered. Repeats for the same job within the notifier's
// dedup window are dropped.
func (a *App) startFailureNotices() {
	events, unsub := a.bus.Subscribe(64, scheduler.EventPostFailed)
	a.sup.Go0("notify.failures", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				d, ok := e.Data.(scheduler.Delivery)
				if !ok || d.OwnerID == 0 {
					continue
				}
				title := jobstore.DefaultTitle(d.Key.ChannelID)
				if ch, ok := a.core.Channel(d.Key.ChannelID); ok {
					title = ch.Title
				}
				m := failureNotice(title, d)
				err := a.notices.Notify(c, notifier.Notice{
					ChatID:   d.OwnerID,
					Text:     m.Text,
					Opt:      m.Opt,
					DedupKey: failureKey(d.Key),
				})
				if err != nil {
					a.log.Debug("failure notice not queued", logx.Int64("user_id", d.OwnerID), logx.Err(err))
				}
			}
		}
	})
}

func failureKey(k scheduler.Key) string {
	return "post-failed:" + strconv.FormatInt(k.ChannelID, 10) + ":" + strconv.Itoa(k.JobID)
}

func failureNotice(title string, d scheduler.Delivery) tgui.Message {
	reason := "unknown error"
	if d.Err != nil {
		reason = tgui.TruncRunes(d.Err.Error(), 300)
	}
	return tgui.New().
		Title("⚠️", "Scheduled post not delivered").
		KV("Channel", title).
		KV("Post", "#"+strconv.Itoa(d.Key.JobID)).
		KV("Error", reason).
		Line("Check that I am still an administrator allowed to post there.").
		Build()
}

// startConfigReload applies logging changes live; other sections are
// reported and wait for a restart.
func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	ch := config.Diff(oldCfg, newCfg)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(ch.Restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.Restart, ",")))
	}
	a.sd.Reloading()
	a.logs.Apply(newCfg.Logging.LogxConfig())
	a.sd.Reloaded()

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
}
