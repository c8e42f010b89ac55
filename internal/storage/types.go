package storage

import (
	"errors"
	"time"
)

var (
	ErrClosed   = errors.New("storage closed")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": Path is the database file
//   - "postgres": DSN is a lib/pq connection string
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means 5s

	MaxOpenConns    int // postgres only
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SimilarTask is one historical completed task matching a name query.
type SimilarTask struct {
	TaskID          int64
	Name            string
	AvgDuration     float64 // minutes per logged session
	CompletionCount int     // sessions with a duration
	CategoryName    string
	ProjectName     string
}

// LogRow is a time log with its start time, used for hour-of-day and window sums.
type LogRow struct {
	TaskID          int64
	Start           time.Time
	End             *time.Time
	DurationMinutes *float64
}

// DueTask is a not-yet-finished task with a due date.
type DueTask struct {
	TaskID int64
	Name   string
	Due    time.Time // midnight, in the location passed to TasksByDueWindow
	Status string
}

// Rollup is one task with its logged time, feeding category and project breakdowns.
type Rollup struct {
	TaskID        int64
	Status        string
	CategoryName  string // "" if none
	ProjectName   string // "" if none
	SessionCount  int
	LoggedMinutes float64
}

const dateLayout = "2006-01-02"
