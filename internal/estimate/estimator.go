// Package estimate predicts how long a task will take from the user's completed history.
//
// Lookup order: weighted average over similar completed tasks, then the category's
// historical average, then a fixed per-category table. Estimate always produces a value.
package estimate

import (
	"context"
	"errors"
	"strings"

	"planwise/internal/domain"
	"planwise/internal/storage"
	logx "planwise/pkg/logx"
)

// Store is the slice of the history store the estimator reads.
type Store interface {
	SimilarCompletedTasks(ctx context.Context, userID int64, query string, categoryID *int64, limit int) ([]storage.SimilarTask, error)
	CategoryAverageDuration(ctx context.Context, userID int64, categoryID *int64) (float64, bool, error)
	CategoryName(ctx context.Context, categoryID int64) (string, error)
}

// Config tunes the similar-task lookup and the default table.
type Config struct {
	SimilarLimit int                // default 5
	Defaults     map[string]float64 // per-category overrides in minutes
}

// Confidence scores per provenance.
const (
	ScoreHigh     = 85
	ScoreMedium   = 65
	ScoreCategory = 45
	ScoreFallback = 30
)

// HighConfidenceMatches is the number of similar tasks needed for high confidence.
const HighConfidenceMatches = 3

// Estimator is safe for concurrent use.
type Estimator struct {
	store    Store
	defaults Defaults
	limit    int
	log      logx.Logger
}

// New returns an estimator over store. A nil store falls through to the default table.
func New(store Store, cfg Config, log logx.Logger) *Estimator {
	if cfg.SimilarLimit <= 0 {
		cfg.SimilarLimit = 5
	}
	return &Estimator{
		store:    store,
		defaults: NewDefaults(cfg.Defaults),
		limit:    cfg.SimilarLimit,
		log:      log.With(logx.String("comp", "estimate")),
	}
}

// Defaults returns the per-category table in use.
func (e *Estimator) Defaults() Defaults { return e.defaults }

// Estimate returns a usable estimate for c. The error is non-nil only when ctx ended
// mid-lookup; the returned estimate is still the best fallback available.
func (e *Estimator) Estimate(ctx context.Context, userID int64, c domain.Candidate) (domain.DurationEstimate, error) {
	similar := e.similar(ctx, userID, c)
	if len(similar) > 0 {
		est := domain.DurationEstimate{
			Minutes:    WeightedAverage(similar),
			Method:     domain.MethodHistorical,
			Confidence: domain.ConfidenceMedium,
			Score:      ScoreMedium,
			Similar:    len(similar),
		}
		if len(similar) >= HighConfidenceMatches {
			est.Confidence = domain.ConfidenceHigh
			est.Score = ScoreHigh
		}
		return est, nil
	}

	if c.CategoryID != nil && e.store != nil {
		avg, ok, err := e.store.CategoryAverageDuration(ctx, userID, c.CategoryID)
		switch {
		case err != nil:
			e.log.Warn("category average unavailable", logx.Int64("category", *c.CategoryID), logx.Err(err))
		case ok && avg > 0:
			return domain.DurationEstimate{
				Minutes:    avg,
				Method:     domain.MethodCategory,
				Confidence: domain.ConfidenceLow,
				Score:      ScoreCategory,
			}, nil
		}
	}

	label := e.label(ctx, c)
	est := domain.DurationEstimate{
		Minutes:    e.defaults.Minutes(label),
		Method:     domain.MethodFallback,
		Confidence: domain.ConfidenceLow,
		Score:      ScoreFallback,
	}
	e.log.Debug("using default duration", logx.String("task", c.Name), logx.String("category", label), logx.Float64("minutes", est.Minutes))
	return est, ctx.Err()
}

func (e *Estimator) similar(ctx context.Context, userID int64, c domain.Candidate) []storage.SimilarTask {
	if e.store == nil {
		return nil
	}
	for _, q := range []string{c.Name, c.Description} {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		found, err := e.store.SimilarCompletedTasks(ctx, userID, q, c.CategoryID, e.limit)
		if err != nil {
			e.log.Warn("similar task lookup failed", logx.String("query", q), logx.Err(err))
			continue
		}
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

// label resolves the category label for the default table; unknown ids become "other".
func (e *Estimator) label(ctx context.Context, c domain.Candidate) string {
	if c.CategoryID != nil && e.store != nil {
		name, err := e.store.CategoryName(ctx, *c.CategoryID)
		if err == nil {
			return name
		}
		if !errors.Is(err, storage.ErrNotFound) {
			e.log.Warn("category lookup failed", logx.Int64("category", *c.CategoryID), logx.Err(err))
		}
		return FallbackLabel
	}
	if c.CategoryName != "" {
		return c.CategoryName
	}
	return FallbackLabel
}

// WeightedAverage is sum(avg*count)/sum(count). Rows without sessions fall back to a
// plain mean so the result stays inside [min, max] of the averages.
func WeightedAverage(rows []storage.SimilarTask) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum, weight, plain float64
	for _, r := range rows {
		w := float64(max(r.CompletionCount, 0))
		sum += r.AvgDuration * w
		weight += w
		plain += r.AvgDuration
	}
	if weight == 0 {
		return plain / float64(len(rows))
	}
	return sum / weight
}
