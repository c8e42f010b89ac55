// Package breaks recommends rest from the time logged over a trailing window.
package breaks

import (
	"context"
	"time"

	"planwise/internal/domain"
	"planwise/internal/storage"
	logx "planwise/pkg/logx"
)

// Store is the slice of the history store the advisor reads.
type Store interface {
	LogsInWindow(ctx context.Context, userID int64, from, to time.Time) ([]storage.LogRow, error)
}

// Thresholds in worked minutes.
const (
	MicroAfter    = 60
	ShortAfter    = 120
	ExtendedAfter = 240
)

// Config sets the trailing window the advisor sums.
type Config struct {
	Window time.Duration // default 4h
	// CompletedOnly ignores a running session. When false the running session counts
	// up to now.
	CompletedOnly bool
}

// Advisor keeps no state between calls.
type Advisor struct {
	store Store
	cfg   Config
	now   func() time.Time
	log   logx.Logger
}

// Option configures an Advisor.
type Option func(*Advisor)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Advisor) {
		if now != nil {
			a.now = now
		}
	}
}

// New returns an advisor over store. A nil store never suggests a break.
func New(store Store, cfg Config, log logx.Logger, opts ...Option) *Advisor {
	if cfg.Window <= 0 {
		cfg.Window = 4 * time.Hour
	}
	a := &Advisor{store: store, cfg: cfg, now: time.Now, log: log.With(logx.String("comp", "breaks"))}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Suggest reports whether userID should rest now. A store failure means no suggestion.
func (a *Advisor) Suggest(ctx context.Context, userID int64) (domain.BreakSuggestion, bool) {
	worked, err := a.Worked(ctx, userID)
	if err != nil {
		a.log.Warn("recent logs unavailable", logx.Int64("user", userID), logx.Err(err))
		return domain.BreakSuggestion{}, false
	}
	return Evaluate(worked)
}

// Worked returns the minutes logged in the trailing window.
func (a *Advisor) Worked(ctx context.Context, userID int64) (float64, error) {
	if a.store == nil {
		return 0, nil
	}
	now := a.now()
	logs, err := a.store.LogsInWindow(ctx, userID, now.Add(-a.cfg.Window), now.Add(time.Minute))
	if err != nil {
		return 0, err
	}
	return WorkedMinutes(logs, now, a.cfg.CompletedOnly), nil
}

// WorkedMinutes sums session lengths. Closed sessions without a stored duration use
// end minus start.
func WorkedMinutes(logs []storage.LogRow, now time.Time, completedOnly bool) float64 {
	var total float64
	for _, l := range logs {
		switch {
		case l.End == nil && completedOnly:
		case l.DurationMinutes != nil:
			total += *l.DurationMinutes
		case l.End != nil:
			total += max(l.End.Sub(l.Start).Minutes(), 0)
		default:
			total += max(now.Sub(l.Start).Minutes(), 0)
		}
	}
	return total
}

// Evaluate maps worked minutes to a suggestion.
func Evaluate(worked float64) (domain.BreakSuggestion, bool) {
	s := domain.BreakSuggestion{ShouldBreak: true, WorkedMinutes: domain.Round1(worked)}
	switch {
	case worked > ExtendedAfter:
		s.Severity, s.Duration = domain.SeverityExtended, 30*time.Minute
		s.Reason = "You've been working for over 4 hours. Consider taking a 30-minute break."
	case worked > ShortAfter:
		s.Severity, s.Duration = domain.SeverityShort, 15*time.Minute
		s.Reason = "You've been working for over 2 hours. Consider taking a 15-minute break."
	case worked > MicroAfter:
		s.Severity, s.Duration = domain.SeverityMicro, 5*time.Minute
		s.Reason = "You've been working for over 1 hour. Consider taking a 5-minute micro-break."
	default:
		return domain.BreakSuggestion{}, false
	}
	return s, true
}
