// Package reminder runs the background loop that nudges a user about overdue
// tasks, close deadlines and long work stretches.
package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"planwise/internal/breaks"
	"planwise/internal/domain"
	"planwise/internal/eventbus"
	rtsup "planwise/internal/runtime/supervisor"
	"planwise/internal/storage"
	"planwise/internal/transport"
	logx "planwise/pkg/logx"
)

// Store is the slice of the history store the loop reads.
type Store interface {
	TasksByDueWindow(ctx context.Context, userID int64, from, to time.Time, excludeStatus string) ([]storage.DueTask, error)
	LogsInWindow(ctx context.Context, userID int64, from, to time.Time) ([]storage.LogRow, error)
}

// Notifier delivers the reminders a cycle produces.
type Notifier interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// Config holds the loop timings; zero values take the defaults noted per field.
type Config struct {
	UserID        int64
	Interval      time.Duration // default 5m
	RetryInterval time.Duration // after a failed cycle; default 1m
	StopTimeout   time.Duration // default 1s
	UpcomingDays  int           // default 3
	// OverdueLookback bounds how far back overdue tasks are read; default 365 days.
	OverdueLookback time.Duration
	BreakWindow     time.Duration // default 4h
	// BreakRepeat is the minimum gap between two break reminders of one kind; default 1h.
	BreakRepeat time.Duration
	Location    *time.Location
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Minute
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = time.Second
	}
	if c.UpcomingDays <= 0 {
		c.UpcomingDays = 3
	}
	if c.OverdueLookback <= 0 {
		c.OverdueLookback = 365 * 24 * time.Hour
	}
	if c.BreakWindow <= 0 {
		c.BreakWindow = 4 * time.Hour
	}
	if c.BreakRepeat <= 0 {
		c.BreakRepeat = time.Hour
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// State is a point-in-time view of the loop.
type State struct {
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitzero"`
	LastCycle time.Time `json:"last_cycle,omitzero"`
	Cycles    int       `json:"cycles"`
	Sent      int       `json:"sent"`
	LastError string    `json:"last_error,omitempty"`
}

// Loop is stopped or running; Start and Stop move between the two.
type Loop struct {
	store  Store
	notify Notifier
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time

	mu     sync.Mutex
	cfg    Config
	sup    *rtsup.Supervisor
	state  State
	advice *breaks.Advisor
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// WithBus publishes start, stop and cycle events on bus.
func WithBus(bus eventbus.Bus) Option {
	return func(l *Loop) { l.bus = bus }
}

// New returns a stopped loop. A nil notify makes cycles log their reminders without
// delivering them.
func New(store Store, notify Notifier, cfg Config, log logx.Logger, opts ...Option) *Loop {
	l := &Loop{
		store:  store,
		notify: notify,
		log:    log.With(logx.String("comp", "reminder")),
		now:    time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	l.applyLocked(cfg)
	return l
}

// Apply swaps the config; a running loop picks it up on its next wait.
func (l *Loop) Apply(cfg Config) {
	l.mu.Lock()
	l.applyLocked(cfg)
	l.mu.Unlock()
}

func (l *Loop) applyLocked(cfg Config) {
	l.cfg = cfg.withDefaults()
	l.advice = breaks.New(l.store, breaks.Config{Window: l.cfg.BreakWindow, CompletedOnly: true}, l.log,
		breaks.WithClock(l.now))
}

func (l *Loop) config() (Config, *breaks.Advisor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg, l.advice
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Running
}

// Start spawns the worker. Starting a running loop only logs a warning.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.state.Running {
		l.mu.Unlock()
		l.log.Warn("reminder system is already running")
		return
	}
	sup := rtsup.New(context.WithoutCancel(ctx), rtsup.WithLogger(l.log), rtsup.WithCancelOnError(false))
	l.sup = sup
	l.state.Running = true
	l.state.StartedAt = l.now()
	l.mu.Unlock()

	sup.Go0("reminder.loop", l.run)
	l.publish(eventbus.ReminderStarted, nil)
	l.log.Info("reminder system started")
}

// Stop cancels the worker and waits at most StopTimeout for it to exit.
// Stopping a stopped loop does nothing.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.state.Running {
		l.mu.Unlock()
		l.log.Debug("reminder system is not running")
		return nil
	}
	sup := l.sup
	timeout := l.cfg.StopTimeout
	l.sup = nil
	l.state.Running = false
	l.mu.Unlock()

	sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		l.log.Warn("reminder worker did not exit in time", logx.Duration("timeout", timeout))
	}
	l.publish(eventbus.ReminderStopped, nil)
	l.log.Info("reminder system stopped")
	return nil
}

func (l *Loop) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		cfg, _ := l.config()
		wait := cfg.Interval
		if err := l.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Error("reminder cycle failed", logx.Err(err), logx.Duration("retry_in", cfg.RetryInterval))
			wait = cfg.RetryInterval
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Cycle runs the overdue, upcoming and break checks once. Every check runs even
// when an earlier one fails; store errors are joined.
func (l *Loop) Cycle(ctx context.Context) error {
	cfg, advisor := l.config()
	now := l.now().In(cfg.Location)
	today := domain.Date(now)

	var out []transport.Notification
	overdue, errOverdue := l.checkOverdue(ctx, cfg, today)
	out = append(out, overdue...)
	upcoming, errUpcoming := l.checkUpcoming(ctx, cfg, today)
	out = append(out, upcoming...)
	brk, errBreak := l.checkBreaks(ctx, cfg, advisor)
	out = append(out, brk...)

	sent := 0
	for _, n := range out {
		n.UserID = cfg.UserID
		n.At = now
		if l.notify == nil {
			l.log.Info("reminder", logx.String("kind", string(n.Kind)), logx.String("title", n.Title))
			continue
		}
		if err := l.notify.Notify(ctx, n); err != nil {
			if !errors.Is(err, context.Canceled) {
				l.log.Warn("notification not queued", logx.String("kind", string(n.Kind)), logx.Err(err))
			}
			continue
		}
		sent++
	}

	err := errors.Join(errOverdue, errUpcoming, errBreak)
	l.mu.Lock()
	l.state.Cycles++
	l.state.LastCycle = now
	l.state.Sent += sent
	l.state.LastError = ""
	if err != nil {
		l.state.LastError = err.Error()
	}
	l.mu.Unlock()

	l.publish(eventbus.ReminderCycle, map[string]any{"notifications": sent, "error": err != nil})
	l.log.Debug("reminder cycle", logx.Int("notifications", sent), logx.Bool("failed", err != nil))
	return err
}

func (l *Loop) publish(typ string, data any) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventbus.Event{Type: typ, Time: l.now(), Data: data})
}

// daysBetween counts calendar days from a to b.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
