package reminder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"planwise/internal/breaks"
	"planwise/internal/domain"
	"planwise/internal/transport"
)

// dayDedup keeps a dated reminder to one delivery; the key already carries the date.
const dayDedup = 24 * time.Hour

// checkOverdue reminds on the first overdue day, then every third day.
func (l *Loop) checkOverdue(ctx context.Context, cfg Config, today time.Time) ([]transport.Notification, error) {
	from := today.Add(-cfg.OverdueLookback)
	tasks, err := l.store.TasksByDueWindow(ctx, cfg.UserID, from, today, string(domain.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("overdue tasks: %w", err)
	}
	date := today.Format(time.DateOnly)
	var out []transport.Notification
	for _, t := range tasks {
		days := daysBetween(t.Due, today)
		switch {
		case days == 1:
			out = append(out, transport.Notification{
				Kind:     transport.KindOverdue,
				Priority: 7,
				TaskID:   t.TaskID,
				Title:    "Task overdue: " + t.Name,
				Text:     "This task was due yesterday. Consider updating the deadline or status.",
				DedupKey: taskKey("overdue", t.TaskID, date),
				DedupFor: dayDedup,
			})
		case days > 1 && days%3 == 0:
			out = append(out, transport.Notification{
				Kind:     transport.KindOverdueSevere,
				Priority: 9,
				TaskID:   t.TaskID,
				Title:    "Task severely overdue: " + t.Name,
				Text:     fmt.Sprintf("This task is %d days overdue. Please review and update.", days),
				DedupKey: taskKey("overdue", t.TaskID, date),
				DedupFor: dayDedup,
			})
		}
	}
	return out, nil
}

// checkUpcoming covers today through UpcomingDays ahead; only days 0, 1 and 3 notify.
func (l *Loop) checkUpcoming(ctx context.Context, cfg Config, today time.Time) ([]transport.Notification, error) {
	to := today.AddDate(0, 0, cfg.UpcomingDays+1)
	tasks, err := l.store.TasksByDueWindow(ctx, cfg.UserID, today, to, string(domain.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("upcoming tasks: %w", err)
	}
	date := today.Format(time.DateOnly)
	var out []transport.Notification
	for _, t := range tasks {
		n := transport.Notification{TaskID: t.TaskID, DedupFor: dayDedup}
		switch daysBetween(today, t.Due) {
		case 0:
			n.Kind, n.Priority = transport.KindDueToday, 7
			n.Title = "Due today: " + t.Name
			n.Text = "This task is due today! Make sure to complete it."
		case 1:
			n.Kind, n.Priority = transport.KindDueTomorrow, 5
			n.Title = "Due tomorrow: " + t.Name
			n.Text = "This task is due tomorrow. Plan your time accordingly."
		case 3:
			n.Kind, n.Priority = transport.KindDueIn3Days, 3
			n.Title = "Due in 3 days: " + t.Name
			n.Text = "This task is due in 3 days. Consider starting it soon."
		default:
			continue
		}
		n.DedupKey = taskKey(string(n.Kind), t.TaskID, date)
		out = append(out, n)
	}
	return out, nil
}

// checkBreaks looks at completed sessions only and speaks up past two hours.
func (l *Loop) checkBreaks(ctx context.Context, cfg Config, advisor *breaks.Advisor) ([]transport.Notification, error) {
	worked, err := advisor.Worked(ctx, cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	n := transport.Notification{Kind: transport.KindBreak, Priority: 4, DedupFor: cfg.BreakRepeat}
	switch {
	case worked > breaks.ExtendedAfter:
		n.Title = "Time for a break!"
		n.Text = fmt.Sprintf("You've been working for %d hours. Consider taking a 15-30 minute break.", int(worked)/60)
		n.DedupKey = "break:" + strconv.FormatInt(cfg.UserID, 10) + ":" + string(domain.SeverityExtended)
	case worked > breaks.ShortAfter:
		n.Title = "Stay hydrated!"
		n.Text = "You've been working for a while. Take a short break and drink some water."
		n.DedupKey = "break:" + strconv.FormatInt(cfg.UserID, 10) + ":" + string(domain.SeverityShort)
	default:
		return nil, nil
	}
	return []transport.Notification{n}, nil
}

func taskKey(kind string, taskID int64, date string) string {
	return kind + ":" + strconv.FormatInt(taskID, 10) + ":" + date
}
