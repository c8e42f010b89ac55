package insights

import "planwise/internal/domain"

var DefaultProductiveHours = []int{9, 10, 11, 14, 15, 16}

const DefaultSessionMinutes = 45

const (
	TipSmallerChunks  = "Consider breaking down larger tasks into smaller chunks"
	TipShorterFocus   = "Try shorter, more focused work sessions"
	TipTrackPatterns  = "Log a few more sessions so your productive hours can be learned"
	completionTipRate = 70
)

// Recommendations is scheduling advice derived from Insights.
type Recommendations struct {
	OptimalHours   []int    `json:"optimal_work_hours"`
	SessionMinutes float64  `json:"recommended_session_length"`
	FocusTips      []string `json:"focus_tips"`
}

// Recommend turns insights into advice. Missing statistics fall back to defaults.
func Recommend(in domain.Insights) Recommendations {
	r := Recommendations{
		OptimalHours:   ProductiveHoursOrDefault(in),
		SessionMinutes: in.AverageSessionLength,
		FocusTips:      []string{},
	}
	if r.SessionMinutes <= 0 {
		r.SessionMinutes = DefaultSessionMinutes
	}
	if len(in.TopCategories) > 0 && in.CompletionRate < completionTipRate {
		r.FocusTips = append(r.FocusTips, TipSmallerChunks)
	}
	if in.AverageSessionLength > 120 {
		r.FocusTips = append(r.FocusTips, TipShorterFocus)
	}
	if in.MostProductiveHour == nil {
		r.FocusTips = append(r.FocusTips, TipTrackPatterns)
	}
	return r
}

// ProductiveHoursOrDefault returns a copy of the learned productive hours, or the
// default working hours when none were learned.
func ProductiveHoursOrDefault(in domain.Insights) []int {
	src := in.ProductiveHours
	if len(src) == 0 {
		src = DefaultProductiveHours
	}
	return append([]int(nil), src...)
}
