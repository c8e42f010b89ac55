// Package domain holds the value types shared by the scheduling and insights engine.
//
// Everything except Task and TimeLogEntry is derived: recomputed per request and never persisted.
package domain

import (
	"math"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Task is owned by exactly one user. The engine only reads tasks.
type Task struct {
	ID          int64
	UserID      int64
	Name        string
	Description string
	CategoryID  *int64
	ProjectID   *int64
	Status      Status
	Due         *time.Time // date only; time-of-day is ignored
}

// TimeLogEntry is a logged work session. End == nil means the session is still running;
// at most one open entry exists per user (enforced by the timer collaborator).
type TimeLogEntry struct {
	TaskID          int64
	Start           time.Time
	End             *time.Time
	DurationMinutes *float64
}

// Open reports whether the session is still running.
func (e TimeLogEntry) Open() bool { return e.End == nil }

type Method string

const (
	MethodHistorical Method = "historical-weighted-average"
	MethodCategory   Method = "category-default"
	MethodFallback   Method = "fallback-default"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// DurationEstimate is the estimator's answer for one candidate task.
type DurationEstimate struct {
	Minutes    float64    `json:"minutes"`
	Method     Method     `json:"method"`
	Confidence Confidence `json:"confidence"`
	Score      float64    `json:"score"` // 0..100
	Similar    int        `json:"similar_tasks"`
}

// Hours returns the estimate in hours rounded to one decimal.
func (d DurationEstimate) Hours() float64 { return Round1(d.Minutes / 60) }

func (d DurationEstimate) Duration() time.Duration {
	return time.Duration(d.Minutes * float64(time.Minute))
}

// Candidate is a task the caller wants placed on the timeline.
type Candidate struct {
	TaskID       int64  `json:"task_id,omitempty"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	CategoryID   *int64 `json:"category_id,omitempty"`
	ProjectID    *int64 `json:"project_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	ProjectName  string `json:"project_name,omitempty"`
}

// ScheduledTask is one placement on a built timeline.
type ScheduledTask struct {
	TaskID        int64         `json:"task_id,omitempty"`
	Name          string        `json:"name"`
	Start         time.Time     `json:"start"`
	Duration      time.Duration `json:"duration"`
	TrailingBreak time.Duration `json:"trailing_break"`
	Confidence    Confidence    `json:"confidence"`
	Method        Method        `json:"method"`
	Category      string        `json:"category"`
	Project       string        `json:"project"`
}

func (s ScheduledTask) End() time.Time { return s.Start.Add(s.Duration) }

type CategoryStat struct {
	Name         string  `json:"name"`
	TaskCount    int     `json:"task_count"`
	AvgDuration  float64 `json:"avg_duration"`
	TotalMinutes float64 `json:"total_minutes"`
}

type ProjectStat struct {
	Name         string  `json:"name"`
	TaskCount    int     `json:"task_count"`
	TotalMinutes float64 `json:"total_minutes"`
}

// Insights are statistics derived from a user's history.
type Insights struct {
	MostProductiveHour   *int           `json:"most_productive_hour,omitempty"`
	ProductiveHours      []int          `json:"productive_hours"`
	AverageSessionLength float64        `json:"average_session_length"`
	CompletionRate       float64        `json:"completion_rate"`
	TopCategories        []CategoryStat `json:"top_categories"`
	Projects             []ProjectStat  `json:"projects"`
	Daily                []DayTotal     `json:"daily"`
	Suggestions          []string       `json:"suggestions"`
}

// DayTotal is the logged time on one calendar day.
type DayTotal struct {
	Date    string  `json:"date"` // YYYY-MM-DD
	Minutes float64 `json:"minutes"`
}

type Severity string

const (
	SeverityMicro    Severity = "micro"
	SeverityShort    Severity = "short"
	SeverityExtended Severity = "extended"
)

// BreakSuggestion is the advisor's output when a break is due.
type BreakSuggestion struct {
	ShouldBreak   bool          `json:"should_break"`
	Reason        string        `json:"reason"`
	Duration      time.Duration `json:"duration"`
	Severity      Severity      `json:"severity"`
	WorkedMinutes float64       `json:"worked_minutes"`
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 { return math.Round(v*10) / 10 }

// Date truncates t to midnight in its own location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
