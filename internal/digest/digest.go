// Package digest sends a periodic insights summary with scheduling advice.
package digest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"planwise/internal/domain"
	"planwise/internal/eventbus"
	"planwise/internal/insights"
	"planwise/internal/transport"
	logx "planwise/pkg/logx"
)

const DefaultSchedule = "0 8 * * *"

type InsightsSource interface {
	Compute(ctx context.Context, userID int64) domain.Insights
}

type Notifier interface {
	Notify(ctx context.Context, n transport.Notification) error
}

type Config struct {
	Enabled  bool
	UserID   int64
	Schedule string // see ParseSchedule; default DefaultSchedule
	Location *time.Location
	Timeout  time.Duration // per run; default 30s
}

type Service struct {
	ins    InsightsSource
	notify Notifier
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time

	mu    sync.Mutex
	cfg   Config
	spec  Spec
	c     *cron.Cron
	entry cron.EntryID
	last  time.Time
}

func New(cfg Config, ins InsightsSource, notify Notifier, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	s := &Service{ins: ins, notify: notify, bus: bus, log: log.With(logx.String("comp", "digest")), now: time.Now}
	if err := s.setLocked(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) setLocked(cfg Config) error {
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("digest.schedule: %w", err)
	}
	s.cfg, s.spec = cfg, spec
	return nil
}

// Apply swaps the config and re-registers the job when the service is running.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	old := s.cfg
	if err := s.setLocked(cfg); err != nil {
		s.mu.Unlock()
		return err
	}
	running := s.c != nil
	changed := old.Enabled != s.cfg.Enabled || old.Schedule != s.cfg.Schedule || old.Location.String() != s.cfg.Location.String()
	s.mu.Unlock()

	if running && changed {
		s.Stop(ctx)
		s.Start(ctx)
	}
	return nil
}

// Start registers the job with cron. It is a no-op when disabled or already started.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}

	c := cron.New(cron.WithParser(cronParser), cron.WithLocation(s.cfg.Location))
	job := cron.FuncJob(func() {
		if err := s.RunOnce(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("digest run failed", logx.Err(err))
		}
	})
	if s.spec.IsInterval() {
		s.entry = c.Schedule(cron.Every(s.spec.Every), job)
	} else {
		id, err := c.AddJob(s.spec.Cron, job)
		if err != nil {
			s.log.Error("digest schedule rejected", logx.String("schedule", s.spec.String()), logx.Err(err))
			return
		}
		s.entry = id
	}
	c.Start()
	s.c = c
	s.log.Info("digest scheduled", logx.String("schedule", s.spec.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Next reports the next trigger, zero when not scheduled.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	e := s.c.Entry(s.entry)
	if e.Schedule == nil {
		return time.Time{}
	}
	return e.Schedule.Next(s.now().In(s.cfg.Location))
}

// RunOnce computes insights and sends one digest notification.
func (s *Service) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	now := s.now().In(cfg.Location)
	in := s.ins.Compute(ctx, cfg.UserID)
	n := Compose(in, insights.Recommend(in))
	n.UserID = cfg.UserID
	n.At = now
	n.DedupKey = "digest:" + strconv.FormatInt(cfg.UserID, 10) + ":" + now.Format("2006-01-02T15:04")
	n.DedupFor = time.Minute
	if err := s.notify.Notify(ctx, n); err != nil {
		return err
	}

	s.mu.Lock()
	s.last = now
	s.mu.Unlock()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.DigestSent, Time: now, Data: cfg.UserID})
	}
	s.log.Info("digest sent", logx.Int64("user", cfg.UserID))
	return nil
}

// LastRun is the time of the last successful digest.
func (s *Service) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Compose renders insights and recommendations as a digest notification.
func Compose(in domain.Insights, rec insights.Recommendations) transport.Notification {
	var b strings.Builder
	if in.MostProductiveHour != nil {
		fmt.Fprintf(&b, "Most productive hour: %02d:00\n", *in.MostProductiveHour)
	} else {
		b.WriteString("Most productive hour: not enough data\n")
	}
	fmt.Fprintf(&b, "Average session: %.1f min\n", in.AverageSessionLength)
	fmt.Fprintf(&b, "Completion rate: %.1f%%\n", in.CompletionRate)
	if len(in.TopCategories) > 0 {
		top := in.TopCategories[0]
		fmt.Fprintf(&b, "Top category: %s (%d tasks)\n", top.Name, top.TaskCount)
	}

	hours := make([]string, 0, len(rec.OptimalHours))
	for _, h := range rec.OptimalHours {
		hours = append(hours, fmt.Sprintf("%02d:00", h))
	}
	fmt.Fprintf(&b, "\nBest hours to work: %s\n", strings.Join(hours, ", "))
	fmt.Fprintf(&b, "Recommended session: %.0f min\n", rec.SessionMinutes)

	tips := append(append([]string(nil), rec.FocusTips...), in.Suggestions...)
	if len(tips) > 0 {
		b.WriteString("\n")
		for _, t := range tips {
			b.WriteString("• " + t + "\n")
		}
	}

	return transport.Notification{
		Kind:     transport.KindDigest,
		Priority: 2,
		Title:    "Daily insights",
		Text:     strings.TrimRight(b.String(), "\n"),
	}
}
