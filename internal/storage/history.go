package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	logx "planwise/pkg/logx"
)

// SimilarCompletedTasks returns completed tasks whose name or description contains query
// (case-insensitive), ranked by number of logged sessions. categoryID narrows the match.
func (s *DB) SimilarCompletedTasks(ctx context.Context, userID int64, query string, categoryID *int64, limit int) ([]SimilarTask, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var b strings.Builder
	b.WriteString(`SELECT t.id, t.name, AVG(l.duration_minutes), COUNT(l.duration_minutes),
		COALESCE(c.name, ''), COALESCE(p.name, '')
	FROM tasks t
	JOIN time_logs l ON l.task_id = t.id
	LEFT JOIN categories c ON c.id = t.category_id
	LEFT JOIN projects p ON p.id = t.project_id
	WHERE t.user_id = ? AND t.status = 'completed' AND l.duration_minutes IS NOT NULL
	  AND (LOWER(t.name) LIKE ? ESCAPE '\' OR LOWER(t.description) LIKE ? ESCAPE '\')`)
	args := []any{userID, pattern, pattern}
	if categoryID != nil {
		b.WriteString(` AND t.category_id = ?`)
		args = append(args, *categoryID)
	}
	b.WriteString(`
	GROUP BY t.id, t.name, c.name, p.name
	ORDER BY COUNT(l.duration_minutes) DESC, t.id
	LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(b.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SimilarTask
	for rows.Next() {
		var st SimilarTask
		if err := rows.Scan(&st.TaskID, &st.Name, &st.AvgDuration, &st.CompletionCount, &st.CategoryName, &st.ProjectName); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// CategoryAverageDuration is the mean logged session length for the user's tasks in a
// category, or across all of the user's tasks when categoryID is nil.
func (s *DB) CategoryAverageDuration(ctx context.Context, userID int64, categoryID *int64) (float64, bool, error) {
	if err := s.ready(); err != nil {
		return 0, false, err
	}
	q := `SELECT AVG(l.duration_minutes)
	FROM time_logs l
	JOIN tasks t ON t.id = l.task_id
	WHERE t.user_id = ? AND l.duration_minutes IS NOT NULL`
	args := []any{userID}
	if categoryID != nil {
		q += ` AND t.category_id = ?`
		args = append(args, *categoryID)
	}
	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, s.rebind(q), args...).Scan(&avg); err != nil {
		return 0, false, err
	}
	return avg.Float64, avg.Valid, nil
}

func (s *DB) CategoryName(ctx context.Context, categoryID int64) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	var name string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT name FROM categories WHERE id = ?`), categoryID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return name, err
}

// LogsInWindow returns the user's time logs that started in [from, to), oldest first.
func (s *DB) LogsInWindow(ctx context.Context, userID int64, from, to time.Time) ([]LogRow, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT l.task_id, l.start_ms, l.end_ms, l.duration_minutes
	FROM time_logs l
	JOIN tasks t ON t.id = l.task_id
	WHERE t.user_id = ? AND l.start_ms >= ? AND l.start_ms < ?
	ORDER BY l.start_ms, l.id`), userID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogRow
	for rows.Next() {
		var (
			r     LogRow
			start int64
			end   sql.NullInt64
			dur   sql.NullFloat64
		)
		if err := rows.Scan(&r.TaskID, &start, &end, &dur); err != nil {
			return nil, err
		}
		r.Start = time.UnixMilli(start)
		if end.Valid {
			t := time.UnixMilli(end.Int64)
			r.End = &t
		}
		if dur.Valid {
			v := dur.Float64
			r.DurationMinutes = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TasksByDueWindow returns tasks due on a date in [from, to) whose status is not
// excludeStatus. Dates are compared in from's location.
func (s *DB) TasksByDueWindow(ctx context.Context, userID int64, from, to time.Time, excludeStatus string) ([]DueTask, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	loc := from.Location()
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, name, due_date, status
	FROM tasks
	WHERE user_id = ? AND due_date IS NOT NULL AND due_date >= ? AND due_date < ? AND status <> ?
	ORDER BY due_date, id`), userID, from.Format(dateLayout), to.In(loc).Format(dateLayout), excludeStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DueTask
	for rows.Next() {
		var (
			t   DueTask
			due string
		)
		if err := rows.Scan(&t.TaskID, &t.Name, &due, &t.Status); err != nil {
			return nil, err
		}
		d, err := time.ParseInLocation(dateLayout, due, loc)
		if err != nil {
			s.log.Warn("skipping task with malformed due date", logx.Int64("task", t.TaskID), logx.String("due", due))
			continue
		}
		t.Due = d
		out = append(out, t)
	}
	return out, rows.Err()
}

// TaskRollups returns every task of the user with its session count and logged minutes.
func (s *DB) TaskRollups(ctx context.Context, userID int64) ([]Rollup, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT t.id, t.status, COALESCE(c.name, ''), COALESCE(p.name, ''),
		COUNT(l.duration_minutes), COALESCE(SUM(l.duration_minutes), 0)
	FROM tasks t
	LEFT JOIN categories c ON c.id = t.category_id
	LEFT JOIN projects p ON p.id = t.project_id
	LEFT JOIN time_logs l ON l.task_id = t.id
	WHERE t.user_id = ?
	GROUP BY t.id, t.status, c.name, p.name
	ORDER BY t.id`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rollup
	for rows.Next() {
		var r Rollup
		if err := rows.Scan(&r.TaskID, &r.Status, &r.CategoryName, &r.ProjectName, &r.SessionCount, &r.LoggedMinutes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
