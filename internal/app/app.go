package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"planwise/internal/breaks"
	"planwise/internal/config"
	"planwise/internal/digest"
	"planwise/internal/estimate"
	"planwise/internal/eventbus"
	"planwise/internal/httpapi"
	"planwise/internal/insights"
	"planwise/internal/notifier"
	"planwise/internal/reminder"
	rtsup "planwise/internal/runtime/supervisor"
	"planwise/internal/schedule"
	"planwise/internal/storage"
	"planwise/internal/transport"
	"planwise/internal/transport/console"
	"planwise/internal/transport/telegram"
	"planwise/internal/transport/wshub"
	logx "planwise/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store *storage.DB

	estimator  *estimate.Estimator
	aggregator *insights.Aggregator
	builder    *schedule.Builder
	advisor    *breaks.Advisor

	hub      *wshub.Hub
	notif    *notifier.Service
	reminder *reminder.Loop
	digest   *digest.Service
	http     *httpapi.Service
}

// NewApp loads the config and wires every component. Nothing runs until Start.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &App{cfgm: cfgm, log: log, logs: logSvc, bus: bus, store: store}
	fail := func(err error) (*App, error) {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	a.estimator = estimate.New(store, mapEstimateConfig(cfg), log)
	a.aggregator = insights.New(store, loc, log, insights.WithDailyDays(cfg.Scheduling.InsightsDays))
	schedCfg, err := mapScheduleConfig(cfg)
	if err != nil {
		return fail(err)
	}
	a.builder = schedule.New(a.estimator, a.aggregator, schedCfg, log)
	bcfg, err := mapBreaksConfig(cfg)
	if err != nil {
		return fail(err)
	}
	a.advisor = breaks.New(store, bcfg, log)

	adapters, err := a.buildAdapters(cfg)
	if err != nil {
		return fail(err)
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return fail(err)
	}
	a.notif = notifier.New(ncfg, adapters, log, bus, store)

	rcfg, err := mapReminderConfig(cfg)
	if err != nil {
		return fail(err)
	}
	a.reminder = reminder.New(store, a.notif, rcfg, log, reminder.WithBus(bus))

	dcfg, err := mapDigestConfig(cfg)
	if err != nil {
		return fail(err)
	}
	if a.digest, err = digest.New(dcfg, a.aggregator, a.notif, log, bus); err != nil {
		return fail(err)
	}

	hcfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return fail(err)
	}
	deps := httpapi.Deps{
		Estimator: a.estimator,
		Insights:  a.aggregator,
		Schedule:  a.builder,
		Breaks:    a.advisor,
		Reminder:  a.reminder,
		History:   a.notif,
		Ping:      store.Ping,
		Status:    a.Status,
	}
	if a.hub != nil {
		deps.Hub = a.hub
	}
	a.http = httpapi.New(hcfg, deps, log)

	log.Info("app configured",
		logx.Int64("user", cfg.User.ID),
		logx.String("timezone", loc.String()),
		logx.String("storage", sc.Driver),
		logx.String("adapters", strings.Join(a.notif.Adapters(), ",")),
	)
	return a, nil
}

func (a *App) buildAdapters(cfg *config.Config) ([]transport.Adapter, error) {
	var out []transport.Adapter
	if cfg.NotifierOrDefault().Console {
		out = append(out, console.New(a.log))
	}
	if cfg.Telegram.Enabled {
		tcfg, err := mapTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(tcfg, a.log)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		out = append(out, tg)
	}
	if cfg.HTTP.Enabled && cfg.HTTP.WebSocket {
		a.hub = wshub.New(a.log, cfg.HTTP.AllowedOrigins...)
		out = append(out, a.hub)
	}
	return out, nil
}

// UserID is the configured instance user.
func (a *App) UserID() int64 { return a.cfgm.Get().User.ID }

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

// Status reports per-goroutine stats of every running supervisor.
func (a *App) Status() map[string][]rtsup.Stats {
	out := map[string][]rtsup.Stats{}
	if a.sup != nil {
		out["app"] = a.sup.Snapshot()
	}
	if sup := a.notif.Supervisor(); sup != nil {
		out["notifier"] = sup.Snapshot()
	}
	if sup := a.http.Supervisor(); sup != nil {
		out["http"] = sup.Snapshot()
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		var errs []error
		check := func(err error) {
			if err != nil {
				errs = append(errs, err)
			}
		}
		_, err := mapStorageConfig(cfg)
		check(err)
		_, err = mapScheduleConfig(cfg)
		check(err)
		_, err = mapNotifierConfig(cfg)
		check(err)
		_, err = mapReminderConfig(cfg)
		check(err)
		_, err = mapDigestConfig(cfg)
		check(err)
		_, err = mapHTTPConfig(cfg)
		check(err)
		if cfg.Telegram.Enabled {
			_, err = mapTelegramConfig(cfg)
			check(err)
		}
		return errors.Join(errs...)
	})

	cfg := a.cfgm.Get()
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if cfg.Reminder.Enabled {
		a.reminder.Start(a.sup.Context())
	}
	a.digest.Start(a.sup.Context())
	a.http.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

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
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a committed config to the live services. Storage, adapters and
// the user timezone of the estimator stack are fixed at startup.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := func(name string) bool { return slices.Contains(sections, name) }

	if changed("logging") {
		a.logs.Apply(mapLogConfig(next))
	}
	for _, s := range []string{"storage", "telegram", "scheduling", "user"} {
		if changed(s) {
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}
	if prev.HTTP.WebSocket != next.HTTP.WebSocket {
		a.log.Warn("http.websocket changed; restart required for changes to take effect")
	}

	if changed("notifier") {
		prevEnabled := a.notif.Enabled()
		if ncfg, err := mapNotifierConfig(next); err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			a.notif.Apply(ncfg)
			switch {
			case prevEnabled && !ncfg.Enabled:
				a.log.Info("notifier disabled via config")
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.notif.Stop(stopCtx)
				cancel()
			case !prevEnabled && ncfg.Enabled:
				a.log.Info("notifier enabled via config")
				a.notif.Start(ctx)
			}
		}
	}

	if changed("reminder") || changed("breaks") {
		if rcfg, err := mapReminderConfig(next); err != nil {
			a.log.Warn("invalid reminder config; keeping previous", logx.Err(err))
		} else {
			a.reminder.Apply(rcfg)
			switch {
			case a.reminder.Running() && !next.Reminder.Enabled:
				a.log.Info("reminders disabled via config")
				_ = a.reminder.Stop(ctx)
			case !a.reminder.Running() && next.Reminder.Enabled:
				a.log.Info("reminders enabled via config")
				a.reminder.Start(ctx)
			}
		}
	}

	if changed("digest") {
		dcfg, err := mapDigestConfig(next)
		if err == nil {
			err = a.digest.Apply(ctx, dcfg)
		}
		if err != nil {
			a.log.Warn("invalid digest config; keeping previous", logx.Err(err))
		} else if dcfg.Enabled {
			a.digest.Start(ctx)
		} else {
			a.digest.Stop(ctx)
		}
	}

	if changed("http") {
		if hcfg, err := mapHTTPConfig(next); err != nil {
			a.log.Warn("invalid http config; keeping previous", logx.Err(err))
		} else {
			stopCtx, cancel := context.WithTimeout(ctx, httpShutdownTimeout(next))
			a.http.Reconfigure(stopCtx, hcfg)
			cancel()
		}
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
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
			// fn must honor stepCtx; a late finish is logged as a leak signal.
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

	// Producers first, then delivery, then the store they all read.
	step("reminder", 2*time.Second, func(c context.Context) error { return a.reminder.Stop(c) })
	step("digest", 1*time.Second, func(c context.Context) error { a.digest.Stop(c); return nil })
	step("http", httpShutdownTimeout(a.cfgm.Get()), func(c context.Context) error { a.http.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("websocket", 1*time.Second, func(context.Context) error {
		if a.hub != nil {
			a.hub.Close()
		}
		return nil
	})
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, event log).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
