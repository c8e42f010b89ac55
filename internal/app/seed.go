package app

import (
	"context"
	"fmt"
	"time"

	"planwise/internal/domain"
	logx "planwise/pkg/logx"
)

type demoTask struct {
	name     string
	category string
	status   domain.Status
	dueIn    int // days from today; ignored when noDue
	noDue    bool
	sessions []demoSession
}

type demoSession struct {
	daysAgo int
	hour    int
	minutes float64
}

var demoTasks = []demoTask{
	{name: "Write API documentation", category: "documentation", status: domain.StatusCompleted, noDue: true,
		sessions: []demoSession{{6, 9, 50}, {5, 10, 40}}},
	{name: "Fix login bug", category: "coding", status: domain.StatusCompleted, noDue: true,
		sessions: []demoSession{{4, 10, 95}, {3, 14, 35}}},
	{name: "Fix payment bug", category: "coding", status: domain.StatusCompleted, noDue: true,
		sessions: []demoSession{{2, 9, 70}}},
	{name: "Review pull requests", category: "testing", status: domain.StatusCompleted, noDue: true,
		sessions: []demoSession{{1, 11, 30}}},
	{name: "Quarterly report", category: "documentation", status: domain.StatusPending, dueIn: -1},
	{name: "Ship release", category: "coding", status: domain.StatusInProgress, dueIn: 0,
		sessions: []demoSession{{1, 15, 45}}},
	{name: "Team sync notes", category: "meeting", status: domain.StatusPending, dueIn: 1},
	{name: "Plan sprint", category: "planning", status: domain.StatusPending, dueIn: 3},
}

// SeedDemo appends a small history for userID: completed tasks with sessions over the
// past week and open tasks due around today. It does not check for existing rows.
func (a *App) SeedDemo(ctx context.Context, userID int64, now time.Time) error {
	loc, err := a.cfgm.Get().Location()
	if err != nil {
		return err
	}
	now = now.In(loc)
	today := domain.Date(now)

	categories := map[string]int64{}
	for _, t := range demoTasks {
		cid, ok := categories[t.category]
		if !ok {
			if cid, err = a.store.CreateCategory(ctx, t.category); err != nil {
				return fmt.Errorf("seed category %s: %w", t.category, err)
			}
			categories[t.category] = cid
		}
		task := domain.Task{UserID: userID, Name: t.name, CategoryID: &cid, Status: t.status}
		if !t.noDue {
			due := today.AddDate(0, 0, t.dueIn)
			task.Due = &due
		}
		id, err := a.store.CreateTask(ctx, task)
		if err != nil {
			return fmt.Errorf("seed task %q: %w", t.name, err)
		}
		for _, s := range t.sessions {
			start := today.AddDate(0, 0, -s.daysAgo).Add(time.Duration(s.hour) * time.Hour)
			end := start.Add(time.Duration(s.minutes * float64(time.Minute)))
			if _, err := a.store.AddTimeLog(ctx, domain.TimeLogEntry{TaskID: id, Start: start, End: &end}); err != nil {
				return fmt.Errorf("seed log for %q: %w", t.name, err)
			}
		}
	}
	a.log.Info("demo history seeded", logx.Int64("user", userID), logx.Int("tasks", len(demoTasks)))
	return nil
}
