// Package schedule places candidate tasks on a timeline in priority order.
//
// Placement is a single greedy pass: productive-hour alignment, a break sized by the
// previous task, and pushes past already scheduled work. It is not globally optimal.
package schedule

import (
	"context"
	"slices"
	"sort"
	"time"

	"planwise/internal/domain"
	"planwise/internal/insights"
	logx "planwise/pkg/logx"
)

// Estimator supplies task durations.
type Estimator interface {
	Estimate(ctx context.Context, userID int64, c domain.Candidate) (domain.DurationEstimate, error)
}

// InsightsSource supplies learned productive hours.
type InsightsSource interface {
	Compute(ctx context.Context, userID int64) domain.Insights
}

// Config holds placement defaults.
type Config struct {
	DefaultHours     []int          // used when insights have no productive hours
	ConflictBuffer   time.Duration  // gap after an existing task; default 15m
	FallbackDuration time.Duration  // used when estimation fails; default 1h
	Location         *time.Location // hours of day are read here; nil keeps the reference time's zone
}

// Request describes one build. Tasks are in priority order.
type Request struct {
	UserID        int64
	Tasks         []domain.Candidate
	ReferenceTime time.Time              // zero means now
	Existing      []domain.ScheduledTask // already committed placements to avoid
	Hours         []int                  // overrides learned productive hours
}

// Builder places tasks; it holds no state between builds.
type Builder struct {
	est Estimator
	ins InsightsSource
	cfg Config
	now func() time.Time
	log logx.Logger
}

// New returns a builder. Either source may be nil; missing data falls back to defaults.
func New(est Estimator, ins InsightsSource, cfg Config, log logx.Logger) *Builder {
	if len(cfg.DefaultHours) == 0 {
		cfg.DefaultHours = insights.DefaultProductiveHours
	}
	if cfg.ConflictBuffer <= 0 {
		cfg.ConflictBuffer = 15 * time.Minute
	}
	if cfg.FallbackDuration <= 0 {
		cfg.FallbackDuration = time.Hour
	}
	return &Builder{est: est, ins: ins, cfg: cfg, now: time.Now, log: log.With(logx.String("comp", "schedule"))}
}

// Build returns the placements in input order. It never fails: a task whose estimate
// cannot be obtained is placed with the fallback duration.
func (b *Builder) Build(ctx context.Context, req Request) []domain.ScheduledTask {
	out := make([]domain.ScheduledTask, 0, len(req.Tasks))
	if len(req.Tasks) == 0 {
		return out
	}
	cursor := req.ReferenceTime
	if cursor.IsZero() {
		cursor = b.now()
	}
	if b.cfg.Location != nil {
		cursor = cursor.In(b.cfg.Location)
	}
	hours := b.productiveHours(ctx, req)

	busy := append([]domain.ScheduledTask(nil), req.Existing...)
	sort.Slice(busy, func(i, j int) bool { return busy[i].End().Before(busy[j].End()) })

	var prev time.Duration
	for i, c := range req.Tasks {
		st := b.estimate(ctx, req.UserID, c)
		start := cursor
		if i > 0 {
			start = start.Add(BreakAfter(prev))
		}
		start = b.place(start, hours, busy)

		st.Start = start
		out = append(out, st)
		cursor = st.End()
		prev = st.Duration
	}
	return out
}

func (b *Builder) estimate(ctx context.Context, userID int64, c domain.Candidate) domain.ScheduledTask {
	st := domain.ScheduledTask{
		TaskID:   c.TaskID,
		Name:     c.Name,
		Category: c.CategoryName,
		Project:  c.ProjectName,
	}
	var (
		est domain.DurationEstimate
		err error
	)
	if b.est != nil {
		est, err = b.est.Estimate(ctx, userID, c)
	}
	d := est.Duration().Round(time.Minute)
	if b.est == nil || err != nil || d <= 0 {
		b.log.Warn("estimate unavailable, using fallback duration", logx.String("task", c.Name), logx.Err(err))
		st.Duration = b.cfg.FallbackDuration
		st.Method = domain.MethodFallback
		st.Confidence = domain.ConfidenceLow
	} else {
		st.Duration = d
		st.Method = est.Method
		st.Confidence = est.Confidence
	}
	st.TrailingBreak = BreakAfter(st.Duration)
	return st
}

// place moves start forward until it is in a productive hour and not before the end
// of any busy placement.
func (b *Builder) place(start time.Time, hours []int, busy []domain.ScheduledTask) time.Time {
	for {
		aligned := AlignToProductive(start, hours)
		pushed := b.pushPastConflicts(aligned, busy)
		if pushed.Equal(start) {
			return start
		}
		start = pushed
	}
}

// pushPastConflicts moves a start that falls before an existing end to that end plus
// the buffer. busy is sorted by end, so one pass clears every placement.
func (b *Builder) pushPastConflicts(start time.Time, busy []domain.ScheduledTask) time.Time {
	for _, other := range busy {
		if start.Before(other.End()) {
			start = other.End().Add(b.cfg.ConflictBuffer)
		}
	}
	return start
}

func (b *Builder) productiveHours(ctx context.Context, req Request) []int {
	if h := normalizeHours(req.Hours); len(h) > 0 {
		return h
	}
	if b.ins != nil {
		if h := normalizeHours(b.ins.Compute(ctx, req.UserID).ProductiveHours); len(h) > 0 {
			return h
		}
	}
	return normalizeHours(b.cfg.DefaultHours)
}

// AlignToProductive keeps t if its hour is productive, otherwise moves to the top of the
// next productive hour today, or the first productive hour tomorrow.
func AlignToProductive(t time.Time, hours []int) time.Time {
	if len(hours) == 0 || slices.Contains(hours, t.Hour()) {
		return t
	}
	y, m, d := t.Date()
	for _, h := range hours {
		if h > t.Hour() {
			return time.Date(y, m, d, h, 0, 0, 0, t.Location())
		}
	}
	return time.Date(y, m, d+1, hours[0], 0, 0, 0, t.Location())
}

// BreakAfter is the rest inserted after a task of duration d.
func BreakAfter(d time.Duration) time.Duration {
	switch {
	case d <= 30*time.Minute:
		return 5 * time.Minute
	case d <= 60*time.Minute:
		return 10 * time.Minute
	case d <= 120*time.Minute:
		return 15 * time.Minute
	default:
		return 20 * time.Minute
	}
}

func normalizeHours(in []int) []int {
	out := make([]int, 0, len(in))
	for _, h := range in {
		if h >= 0 && h <= 23 && !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out
}
