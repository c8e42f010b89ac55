package breaks

import (
	"context"
	"errors"
	"testing"
	"time"

	"planwise/internal/domain"
	"planwise/internal/storage"
	logx "planwise/pkg/logx"
)

type fakeStore struct {
	logs     []storage.LogRow
	err      error
	from, to time.Time
}

func (f *fakeStore) LogsInWindow(_ context.Context, _ int64, from, to time.Time) ([]storage.LogRow, error) {
	f.from, f.to = from, to
	return f.logs, f.err
}

var now = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

func closed(minutesAgo, length float64) storage.LogRow {
	start := now.Add(-time.Duration(minutesAgo * float64(time.Minute)))
	end := start.Add(time.Duration(length * float64(time.Minute)))
	return storage.LogRow{Start: start, End: &end, DurationMinutes: &length}
}

func TestEvaluateLadder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		worked   float64
		ok       bool
		severity domain.Severity
		duration time.Duration
	}{
		{250, true, domain.SeverityExtended, 30 * time.Minute},
		{240, true, domain.SeverityShort, 15 * time.Minute},
		{121, true, domain.SeverityShort, 15 * time.Minute},
		{120, true, domain.SeverityMicro, 5 * time.Minute},
		{61, true, domain.SeverityMicro, 5 * time.Minute},
		{60, false, "", 0},
		{50, false, "", 0},
	}
	for _, tt := range tests {
		got, ok := Evaluate(tt.worked)
		if ok != tt.ok || got.Severity != tt.severity || got.Duration != tt.duration {
			t.Fatalf("Evaluate(%v) = %+v, %v, want %v %v %v", tt.worked, got, ok, tt.severity, tt.duration, tt.ok)
		}
		if ok && (!got.ShouldBreak || got.Reason == "") {
			t.Fatalf("Evaluate(%v) = %+v, want reason and should_break", tt.worked, got)
		}
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{logs: []storage.LogRow{closed(230, 100), closed(120, 100), closed(10, 50)}}
	a := New(fs, Config{}, logx.Nop(), WithClock(func() time.Time { return now }))
	got, ok := a.Suggest(context.Background(), 1)
	if !ok || got.Severity != domain.SeverityExtended || got.Duration != 30*time.Minute {
		t.Fatalf("Suggest() = %+v, %v, want extended 30m", got, ok)
	}
	if !fs.from.Equal(now.Add(-4 * time.Hour)) {
		t.Fatalf("window start = %v, want %v", fs.from, now.Add(-4*time.Hour))
	}

	fs.logs = []storage.LogRow{closed(60, 50)}
	if got, ok := a.Suggest(context.Background(), 1); ok {
		t.Fatalf("Suggest() = %+v, want none for 50 minutes", got)
	}
}

func TestRunningSessionCounts(t *testing.T) {
	t.Parallel()

	running := storage.LogRow{Start: now.Add(-90 * time.Minute)}
	logs := []storage.LogRow{closed(200, 40), running}

	if got := WorkedMinutes(logs, now, false); got != 130 {
		t.Fatalf("WorkedMinutes(all) = %v, want 130", got)
	}
	if got := WorkedMinutes(logs, now, true); got != 40 {
		t.Fatalf("WorkedMinutes(completed) = %v, want 40", got)
	}
}

func TestSuggestStoreError(t *testing.T) {
	t.Parallel()

	a := New(&fakeStore{err: errors.New("db down")}, Config{}, logx.Nop())
	if got, ok := a.Suggest(context.Background(), 1); ok {
		t.Fatalf("Suggest() = %+v, want none on store error", got)
	}
}
