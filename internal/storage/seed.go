package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"planwise/internal/domain"
)

// The helpers below load history for tests and the -seed demo. Task management itself
// lives in another service.

// CreateCategory returns the id of the named category, creating it if needed.
func (s *DB) CreateCategory(ctx context.Context, name string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("category name is required")
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO categories(name) VALUES(?)
	ON CONFLICT(name) DO UPDATE SET name = excluded.name
	RETURNING id`), name).Scan(&id)
	return id, err
}

func (s *DB) CreateProject(ctx context.Context, userID int64, name string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO projects(user_id, name) VALUES(?, ?) RETURNING id`),
		userID, strings.TrimSpace(name)).Scan(&id)
	return id, err
}

func (s *DB) CreateTask(ctx context.Context, t domain.Task) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if t.Status == "" {
		t.Status = domain.StatusPending
	}
	if !t.Status.Valid() {
		return 0, errors.New("invalid task status: " + string(t.Status))
	}
	var due any
	if t.Due != nil {
		due = t.Due.Format(dateLayout)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO tasks(user_id, name, description, category_id, project_id, status, due_date, created_ms)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		t.UserID, t.Name, t.Description, nullID(t.CategoryID), nullID(t.ProjectID), string(t.Status), due, time.Now().UnixMilli(),
	).Scan(&id)
	return id, err
}

// AddTimeLog records a session. A closed session without an explicit duration gets
// end minus start.
func (s *DB) AddTimeLog(ctx context.Context, e domain.TimeLogEntry) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var end, dur any
	if e.End != nil {
		end = e.End.UnixMilli()
		if e.DurationMinutes == nil {
			dur = e.End.Sub(e.Start).Minutes()
		}
	}
	if e.DurationMinutes != nil {
		dur = *e.DurationMinutes
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`INSERT INTO time_logs(task_id, start_ms, end_ms, duration_minutes)
	VALUES(?, ?, ?, ?) RETURNING id`), e.TaskID, e.Start.UnixMilli(), end, dur).Scan(&id)
	return id, err
}

func nullID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
