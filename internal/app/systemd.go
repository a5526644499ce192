package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	rtsup "postbot/internal/runtime/supervisor"
	logx "postbot/pkg/logx"
)

// systemdNotifier reports lifecycle state to systemd (Type=notify units).
// Outside systemd every call is a no-op.
type systemdNotifier struct {
	log    logx.Logger
	notify func(state string) (bool, error)
	// watchdog returns the WatchdogSec interval, 0 when disabled.
	watchdog func() (time.Duration, error)
}

func newSystemdNotifier(log logx.Logger) *systemdNotifier {
	return &systemdNotifier{
		log:      log,
		notify:   func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		watchdog: func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) },
	}
}

func (n *systemdNotifier) send(state string) bool {
	ok, err := n.notify(state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return ok
}

// Ready signals READY=1 and starts the watchdog keepalive when enabled.
func (n *systemdNotifier) Ready(sup *rtsup.Supervisor) {
	if !n.send(daemon.SdNotifyReady) {
		return
	}
	n.log.Debug("notified ready")

	interval, err := n.watchdog()
	if err != nil {
		n.log.Warn("watchdog query failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				n.send(daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (n *systemdNotifier) Reloading() { n.send(daemon.SdNotifyReloading) }

func (n *systemdNotifier) Reloaded() { n.send(daemon.SdNotifyReady) }

func (n *systemdNotifier) Stopping() { n.send(daemon.SdNotifyStopping) }
