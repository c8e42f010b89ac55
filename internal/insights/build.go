package insights

import (
	"sort"
	"time"

	"planwise/internal/domain"
	"planwise/internal/storage"
)

const (
	topN = 5

	Uncategorized = "Uncategorized"
	NoProject     = "No Project"

	SuggestShorterSessions = "Consider breaking longer sessions into smaller chunks for better focus."
	SuggestDeadlines       = "Try setting more realistic deadlines to improve completion rates."
	SuggestTrackPatterns   = "Track your productivity patterns to identify your most productive hours."
)

// Build computes insights from already fetched rows. now carries the location used for
// hours of day and calendar days.
func Build(logs []storage.LogRow, rollups []storage.Rollup, now time.Time, dailyDays int) domain.Insights {
	loc := now.Location()
	in := domain.Insights{
		ProductiveHours: []int{},
		TopCategories:   []domain.CategoryStat{},
		Projects:        []domain.ProjectStat{},
		Suggestions:     []string{},
	}

	var (
		hourSum [24]float64
		hourN   [24]int
		total   float64
		n       int
	)
	for _, l := range logs {
		if l.DurationMinutes == nil {
			continue
		}
		d := *l.DurationMinutes
		h := l.Start.In(loc).Hour()
		hourSum[h] += d
		hourN[h]++
		total += d
		n++
	}
	if n > 0 {
		mean := total / float64(n)
		in.AverageSessionLength = domain.Round1(mean)

		best, bestAvg := -1, 0.0
		for h := 0; h < 24; h++ {
			if hourN[h] == 0 {
				continue
			}
			avg := hourSum[h] / float64(hourN[h])
			if best < 0 || avg > bestAvg {
				best, bestAvg = h, avg
			}
			if avg >= mean {
				in.ProductiveHours = append(in.ProductiveHours, h)
			}
		}
		in.MostProductiveHour = &best
	}

	in.CompletionRate = completionRate(rollups)
	in.TopCategories = categoryBreakdown(rollups)
	in.Projects = projectBreakdown(rollups)
	in.Daily = dailyTotals(logs, now, dailyDays)
	in.Suggestions = suggestions(in, len(rollups))
	return in
}

func completionRate(rollups []storage.Rollup) float64 {
	if len(rollups) == 0 {
		return 0
	}
	done := 0
	for _, r := range rollups {
		if r.Status == string(domain.StatusCompleted) {
			done++
		}
	}
	rate := float64(done) / float64(len(rollups)) * 100
	return domain.Round1(min(max(rate, 0), 100))
}

type acc struct {
	tasks    int
	sessions int
	minutes  float64
}

func group(rollups []storage.Rollup, key func(storage.Rollup) string) map[string]*acc {
	m := map[string]*acc{}
	for _, r := range rollups {
		k := key(r)
		a := m[k]
		if a == nil {
			a = &acc{}
			m[k] = a
		}
		a.tasks++
		a.sessions += r.SessionCount
		a.minutes += r.LoggedMinutes
	}
	return m
}

func categoryBreakdown(rollups []storage.Rollup) []domain.CategoryStat {
	m := group(rollups, func(r storage.Rollup) string {
		if r.CategoryName == "" {
			return Uncategorized
		}
		return r.CategoryName
	})
	out := make([]domain.CategoryStat, 0, len(m))
	for name, a := range m {
		st := domain.CategoryStat{Name: name, TaskCount: a.tasks, TotalMinutes: domain.Round1(a.minutes)}
		if a.sessions > 0 {
			st.AvgDuration = domain.Round1(a.minutes / float64(a.sessions))
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TaskCount != out[j].TaskCount {
			return out[i].TaskCount > out[j].TaskCount
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func projectBreakdown(rollups []storage.Rollup) []domain.ProjectStat {
	m := group(rollups, func(r storage.Rollup) string {
		if r.ProjectName == "" {
			return NoProject
		}
		return r.ProjectName
	})
	out := make([]domain.ProjectStat, 0, len(m))
	for name, a := range m {
		out = append(out, domain.ProjectStat{Name: name, TaskCount: a.tasks, TotalMinutes: domain.Round1(a.minutes)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalMinutes != out[j].TotalMinutes {
			return out[i].TotalMinutes > out[j].TotalMinutes
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// dailyTotals returns one entry per day for the trailing days ending today, oldest first.
func dailyTotals(logs []storage.LogRow, now time.Time, days int) []domain.DayTotal {
	if days <= 0 {
		return []domain.DayTotal{}
	}
	today := domain.Date(now)
	first := today.AddDate(0, 0, -(days - 1))
	out := make([]domain.DayTotal, days)
	index := make(map[string]int, days)
	for i := range out {
		d := first.AddDate(0, 0, i).Format("2006-01-02")
		out[i].Date = d
		index[d] = i
	}
	for _, l := range logs {
		if l.DurationMinutes == nil {
			continue
		}
		if i, ok := index[l.Start.In(now.Location()).Format("2006-01-02")]; ok {
			out[i].Minutes += *l.DurationMinutes
		}
	}
	for i := range out {
		out[i].Minutes = domain.Round1(out[i].Minutes)
	}
	return out
}

func suggestions(in domain.Insights, tasks int) []string {
	out := []string{}
	if in.AverageSessionLength > 120 {
		out = append(out, SuggestShorterSessions)
	}
	if tasks > 0 && in.CompletionRate < 70 {
		out = append(out, SuggestDeadlines)
	}
	if in.MostProductiveHour == nil {
		out = append(out, SuggestTrackPatterns)
	}
	return out
}
