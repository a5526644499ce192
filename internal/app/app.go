package app

import (
	"context"
	"fmt"
	"time"

	"postbot/internal/config"
	"postbot/internal/core"
	"postbot/internal/eventbus"
	"postbot/internal/jobstore"
	"postbot/internal/notifier"
	"postbot/internal/observability/pprof"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/scheduler"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	telegram "postbot/internal/transport/telegram/adapter"
	"postbot/internal/transport/telegram/router"
	logx "postbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	backend storage.Backend
	store   *jobstore.Store

	adapter *telegram.Adapter
	sched   *scheduler.Service
	core    *core.Service
	router  *router.Router
	notices *notifier.Service
	debug   *pprof.Service
	sd      *systemdNotifier

	started time.Time

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging.LogxConfig(), ad)
	appLog := log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	appLog.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	store := jobstore.New(backend, log.With(logx.String("comp", "jobstore")))
	loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store.Load(loadCtx)
	cancel()

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	bus := eventbus.New()
	poster := kit.NewPoster(ad)
	sched := scheduler.New(schedCfg, poster, bus, log.With(logx.String("comp", "scheduler")))

	svc := core.New(store, sched, poster, ad, core.Options{
		SuperAdmins:    cfg.Telegram.AdminUserIDs,
		DeliverTimeout: schedCfg.DeliverTimeout,
	}, log.With(logx.String("comp", "core")))

	r := router.New(svc, ad, router.Options{}, log)
	notices := notifier.New(notifier.Config{
		RetryMax:    2,
		DedupWindow: time.Hour,
	}, ad, bus, log.With(logx.String("comp", "notifier")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		backend: backend,
		store:   store,
		adapter: ad,
		sched:   sched,
		core:    svc,
		router:  r,
		notices: notices,
		sd:      newSystemdNotifier(log.With(logx.String("comp", "systemd"))),
		updates: make(chan kit.Update, 256),
	}
	a.debug = pprof.New(pprof.Config{
		Enabled: cfg.Debug.Enabled,
		Addr:    cfg.Debug.Addr,
		Token:   cfg.Debug.Token,
	}, a.health, log.With(logx.String("comp", "pprof")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go0("telegram.menu", func(c context.Context) {
		cmds, order := a.router.Menu()
		if err := a.adapter.SetMenu(cmds, order); err != nil {
			a.log.Warn("set command menu failed", logx.Err(err))
		}
	})

	n := a.core.Rearm()
	a.sched.Start(a.sup.Context())
	a.log.Info("jobs armed", logx.Int("triggers", n))

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.notices.Start(a.sup.Context())
	a.startEventLog()
	a.startFailureNotices()
	a.startConfigReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if err := a.debug.Start(a.sup.Context()); err != nil {
		a.log.Warn("debug endpoint not started", logx.Err(err))
	}

	a.sd.Ready(a.sup)
	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "debug", 1*time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notices.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "jobstore", 2*time.Second, func(c context.Context) error { return a.store.Save(c) })
	a.step(ctx, "storage", 1*time.Second, func(c context.Context) error { return a.backend.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, router, etc.)
	a.step(ctx, "supervisor", 4*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	stepCtx := ctx
	if max > 0 {
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			took := time.Since(start)
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
			} else {
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
			}
		}()
	}
}
