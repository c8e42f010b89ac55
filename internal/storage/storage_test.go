package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"planwise/internal/domain"
	logx "planwise/pkg/logx"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "planwise.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fixture struct {
	coding, testing int64
	website         int64
}

// seedHistory creates two users' worth of history; user 2 must never leak into user 1.
func seedHistory(t *testing.T, db *DB, base time.Time) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	var err error
	if f.coding, err = db.CreateCategory(ctx, "coding"); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if f.testing, err = db.CreateCategory(ctx, "testing"); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if f.website, err = db.CreateProject(ctx, 1, "Website"); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	task := func(u int64, name, desc string, cat, proj *int64, st domain.Status) int64 {
		id, err := db.CreateTask(ctx, domain.Task{UserID: u, Name: name, Description: desc, CategoryID: cat, ProjectID: proj, Status: st})
		if err != nil {
			t.Fatalf("CreateTask(%q) error = %v", name, err)
		}
		return id
	}
	logMin := func(task int64, start time.Time, minutes float64) {
		end := start.Add(time.Duration(minutes * float64(time.Minute)))
		if _, err := db.AddTimeLog(ctx, domain.TimeLogEntry{TaskID: task, Start: start, End: &end}); err != nil {
			t.Fatalf("AddTimeLog() error = %v", err)
		}
	}

	api := task(1, "Build API", "rest endpoints", &f.coding, &f.website, domain.StatusCompleted)
	logMin(api, base, 60)
	logMin(api, base.Add(2*time.Hour), 90)
	logMin(api, base.Add(4*time.Hour), 120)

	docs := task(1, "Write docs", "api reference", nil, nil, domain.StatusCompleted)
	logMin(docs, base.Add(6*time.Hour), 30)

	tests := task(1, "Write tests", "", &f.testing, nil, domain.StatusPending)
	logMin(tests, base.Add(7*time.Hour), 45)

	other := task(2, "Build API", "", &f.coding, nil, domain.StatusCompleted)
	logMin(other, base, 999)
	return f
}

func TestSimilarCompletedTasks(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	f := seedHistory(t, db, base)
	ctx := context.Background()

	got, err := db.SimilarCompletedTasks(ctx, 1, "API", nil, 5)
	if err != nil {
		t.Fatalf("SimilarCompletedTasks() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (name and description match): %+v", len(got), got)
	}
	if got[0].Name != "Build API" || got[0].CompletionCount != 3 || got[0].AvgDuration != 90 {
		t.Fatalf("first = %+v, want Build API with 3 sessions avg 90", got[0])
	}
	if got[0].CategoryName != "coding" || got[0].ProjectName != "Website" {
		t.Fatalf("first joins = %q/%q, want coding/Website", got[0].CategoryName, got[0].ProjectName)
	}

	got, err = db.SimilarCompletedTasks(ctx, 1, "api", &f.testing, 5)
	if err != nil {
		t.Fatalf("SimilarCompletedTasks() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("category filter returned %+v, want none", got)
	}

	got, err = db.SimilarCompletedTasks(ctx, 1, "100%", nil, 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("wildcard query = %+v, %v, want no matches", got, err)
	}
}

func TestCategoryAverageDuration(t *testing.T) {
	db := openTestDB(t)
	f := seedHistory(t, db, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	avg, ok, err := db.CategoryAverageDuration(ctx, 1, &f.coding)
	if err != nil || !ok || avg != 90 {
		t.Fatalf("coding avg = %v, %v, %v, want 90, true, nil", avg, ok, err)
	}
	avg, ok, err = db.CategoryAverageDuration(ctx, 1, nil)
	if err != nil || !ok || avg != 69 {
		t.Fatalf("overall avg = %v, %v, %v, want 69, true, nil", avg, ok, err)
	}
	missing := int64(999)
	_, ok, err = db.CategoryAverageDuration(ctx, 1, &missing)
	if err != nil || ok {
		t.Fatalf("unknown category = ok %v err %v, want false, nil", ok, err)
	}
	if _, err := db.CategoryName(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("CategoryName(missing) error = %v, want ErrNotFound", err)
	}
	if name, err := db.CategoryName(ctx, f.testing); err != nil || name != "testing" {
		t.Fatalf("CategoryName() = %q, %v, want testing", name, err)
	}
}

func TestLogsInWindowAndOpenSession(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	seedHistory(t, db, base)

	id, err := db.CreateTask(ctx, domain.Task{UserID: 1, Name: "Running"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if _, err := db.AddTimeLog(ctx, domain.TimeLogEntry{TaskID: id, Start: base.Add(8 * time.Hour)}); err != nil {
		t.Fatalf("AddTimeLog() error = %v", err)
	}

	rows, err := db.LogsInWindow(ctx, 1, base.Add(6*time.Hour), base.Add(9*time.Hour))
	if err != nil {
		t.Fatalf("LogsInWindow() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len = %d, want 3", len(rows))
	}
	last := rows[2]
	if last.End != nil || last.DurationMinutes != nil {
		t.Fatalf("open session = %+v, want nil end and duration", last)
	}
	if rows[0].DurationMinutes == nil || *rows[0].DurationMinutes != 30 {
		t.Fatalf("first duration = %v, want 30", rows[0].DurationMinutes)
	}
	if !rows[0].Start.Equal(base.Add(6 * time.Hour)) {
		t.Fatalf("first start = %v, want %v", rows[0].Start, base.Add(6*time.Hour))
	}
}

func TestTasksByDueWindow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	today := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	mk := func(name string, offsetDays int, st domain.Status) {
		due := today.AddDate(0, 0, offsetDays)
		if _, err := db.CreateTask(ctx, domain.Task{UserID: 1, Name: name, Status: st, Due: &due}); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
	}
	mk("late", -2, domain.StatusPending)
	mk("done-late", -1, domain.StatusCompleted)
	mk("today", 0, domain.StatusInProgress)
	mk("in3", 3, domain.StatusPending)
	mk("in4", 4, domain.StatusPending)
	if _, err := db.CreateTask(ctx, domain.Task{UserID: 1, Name: "undated"}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	overdue, err := db.TasksByDueWindow(ctx, 1, time.Time{}, today, string(domain.StatusCompleted))
	if err != nil {
		t.Fatalf("TasksByDueWindow(overdue) error = %v", err)
	}
	if len(overdue) != 1 || overdue[0].Name != "late" {
		t.Fatalf("overdue = %+v, want [late]", overdue)
	}

	upcoming, err := db.TasksByDueWindow(ctx, 1, today, today.AddDate(0, 0, 4), string(domain.StatusCompleted))
	if err != nil {
		t.Fatalf("TasksByDueWindow(upcoming) error = %v", err)
	}
	if len(upcoming) != 2 || upcoming[0].Name != "today" || upcoming[1].Name != "in3" {
		t.Fatalf("upcoming = %+v, want [today in3]", upcoming)
	}
	if !upcoming[1].Due.Equal(today.AddDate(0, 0, 3)) {
		t.Fatalf("due = %v, want %v", upcoming[1].Due, today.AddDate(0, 0, 3))
	}
}

func TestTaskRollups(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedHistory(t, db, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	if _, err := db.CreateTask(ctx, domain.Task{UserID: 1, Name: "Never started"}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	rows, err := db.TaskRollups(ctx, 1)
	if err != nil {
		t.Fatalf("TaskRollups() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("len = %d, want 4", len(rows))
	}
	if r := rows[0]; r.CategoryName != "coding" || r.ProjectName != "Website" || r.SessionCount != 3 || r.LoggedMinutes != 270 {
		t.Fatalf("rows[0] = %+v", r)
	}
	if r := rows[3]; r.CategoryName != "" || r.ProjectName != "" || r.SessionCount != 0 || r.LoggedMinutes != 0 {
		t.Fatalf("rows[3] = %+v, want empty rollup", r)
	}
}

func TestDedupRoundTripAndClose(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	until := time.UnixMilli(time.Now().Add(time.Hour).UnixMilli())
	if err := db.PutDedup(ctx, "due-today:1:2024-03-10", until); err != nil {
		t.Fatalf("PutDedup() error = %v", err)
	}
	got, ok, err := db.GetDedup(ctx, "due-today:1:2024-03-10")
	if err != nil || !ok || !got.Equal(until) {
		t.Fatalf("GetDedup() = %v, %v, %v, want %v", got, ok, err, until)
	}
	if _, ok, _ := db.GetDedup(ctx, "missing"); ok {
		t.Fatalf("GetDedup(missing) ok = true")
	}

	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.PutDedup(ctx, "k", until); !errors.Is(err, ErrClosed) {
		t.Fatalf("PutDedup after close = %v, want ErrClosed", err)
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()

	pg := &DB{dialect: dialectPostgres}
	if got, want := pg.rebind("a = ? AND b IN (?, ?)"), "a = $1 AND b IN ($2, $3)"; got != want {
		t.Fatalf("rebind() = %q, want %q", got, want)
	}
	lite := &DB{dialect: dialectSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind() = %q", got)
	}
}
