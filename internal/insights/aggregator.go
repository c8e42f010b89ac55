// Package insights derives productivity statistics from a user's logged history.
package insights

import (
	"context"
	"time"

	"planwise/internal/domain"
	"planwise/internal/storage"
	logx "planwise/pkg/logx"
)

// Store is the slice of the history store the aggregator reads.
type Store interface {
	LogsInWindow(ctx context.Context, userID int64, from, to time.Time) ([]storage.LogRow, error)
	TaskRollups(ctx context.Context, userID int64) ([]storage.Rollup, error)
}

type Aggregator struct {
	store     Store
	loc       *time.Location
	now       func() time.Time
	dailyDays int
	log       logx.Logger
}

type Option func(*Aggregator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithDailyDays sets how many trailing days Insights.Daily covers (default 7).
func WithDailyDays(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.dailyDays = n
		}
	}
}

// New builds an aggregator. Hours of day are computed in loc (UTC when nil).
func New(store Store, loc *time.Location, log logx.Logger, opts ...Option) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	a := &Aggregator{
		store:     store,
		loc:       loc,
		now:       time.Now,
		dailyDays: 7,
		log:       log.With(logx.String("comp", "insights")),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Compute never fails: a store error yields the statistics of the data that could be read.
func (a *Aggregator) Compute(ctx context.Context, userID int64) domain.Insights {
	now := a.now()
	var (
		logs    []storage.LogRow
		rollups []storage.Rollup
		err     error
	)
	if a.store != nil {
		// Logs can be stamped slightly ahead of the local clock.
		logs, err = a.store.LogsInWindow(ctx, userID, time.UnixMilli(0), now.Add(24*time.Hour))
		if err != nil {
			a.log.Warn("time logs unavailable", logx.Int64("user", userID), logx.Err(err))
			logs = nil
		}
		rollups, err = a.store.TaskRollups(ctx, userID)
		if err != nil {
			a.log.Warn("task rollups unavailable", logx.Int64("user", userID), logx.Err(err))
			rollups = nil
		}
	}
	in := Build(logs, rollups, now.In(a.loc), a.dailyDays)
	a.log.Debug("insights computed", logx.Int64("user", userID), logx.Int("logs", len(logs)), logx.Int("tasks", len(rollups)))
	return in
}
