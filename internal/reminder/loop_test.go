package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"planwise/internal/storage"
	"planwise/internal/transport"
	logx "planwise/pkg/logx"
)

var now = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	tasks   []storage.DueTask
	logs    []storage.LogRow
	taskErr error
	block   chan struct{}
}

func (f *fakeStore) TasksByDueWindow(ctx context.Context, _ int64, from, to time.Time, exclude string) ([]storage.DueTask, error) {
	if f.block != nil {
		<-f.block
	}
	if f.taskErr != nil {
		return nil, f.taskErr
	}
	var out []storage.DueTask
	for _, t := range f.tasks {
		if t.Status == exclude || t.Due.Before(from) || !t.Due.Before(to) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) LogsInWindow(context.Context, int64, time.Time, time.Time) ([]storage.LogRow, error) {
	return f.logs, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	got  []transport.Notification
	fail error
}

func (f *fakeNotifier) Notify(_ context.Context, n transport.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.got = append(f.got, n)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func due(id int64, name string, day int, status string) storage.DueTask {
	return storage.DueTask{TaskID: id, Name: name, Due: time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC), Status: status}
}

func completedLog(minutesAgo, length float64) storage.LogRow {
	start := now.Add(-time.Duration(minutesAgo) * time.Minute)
	end := start.Add(time.Duration(length) * time.Minute)
	return storage.LogRow{Start: start, End: &end, DurationMinutes: &length}
}

func newLoop(store Store, n Notifier, cfg Config) *Loop {
	cfg.UserID = 1
	cfg.Location = time.UTC
	return New(store, n, cfg, logx.Nop(), WithClock(func() time.Time { return now }))
}

func TestCycleEmitsEachReminderKind(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		tasks: []storage.DueTask{
			due(1, "A", 9, "pending"),
			due(2, "B", 7, "in-progress"),
			due(3, "C", 8, "pending"),
			due(4, "D", 10, "pending"),
			due(5, "E", 11, "pending"),
			due(6, "F", 12, "pending"),
			due(7, "G", 13, "pending"),
			due(8, "H", 14, "pending"),
			due(9, "I", 10, "completed"),
		},
		logs: []storage.LogRow{
			completedLog(200, 70),
			completedLog(100, 60),
			{Start: now.Add(-200 * time.Minute)},
		},
	}
	n := &fakeNotifier{}
	l := newLoop(store, n, Config{})

	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}

	byKind := map[transport.Kind]transport.Notification{}
	for _, got := range n.got {
		if _, dup := byKind[got.Kind]; dup {
			t.Fatalf("kind %s emitted twice", got.Kind)
		}
		byKind[got.Kind] = got
		if got.UserID != 1 || !got.At.Equal(now) || got.DedupKey == "" {
			t.Fatalf("notification = %+v, want user, time and dedup key set", got)
		}
	}

	tests := []struct {
		kind  transport.Kind
		task  int64
		title string
		key   string
	}{
		{transport.KindOverdue, 1, "Task overdue: A", "overdue:1:2024-03-10"},
		{transport.KindOverdueSevere, 2, "Task severely overdue: B", "overdue:2:2024-03-10"},
		{transport.KindDueToday, 4, "Due today: D", "due-today:4:2024-03-10"},
		{transport.KindDueTomorrow, 5, "Due tomorrow: E", "due-tomorrow:5:2024-03-10"},
		{transport.KindDueIn3Days, 7, "Due in 3 days: G", "due-in-3-days:7:2024-03-10"},
		{transport.KindBreak, 0, "Stay hydrated!", "break:1:short"},
	}
	for _, tt := range tests {
		got, ok := byKind[tt.kind]
		if !ok {
			t.Fatalf("no %s notification in %+v", tt.kind, n.got)
		}
		if got.TaskID != tt.task || got.Title != tt.title || got.DedupKey != tt.key {
			t.Fatalf("%s = %+v, want task %d title %q key %q", tt.kind, got, tt.task, tt.title, tt.key)
		}
	}
	if len(n.got) != len(tests) {
		t.Fatalf("notifications = %d, want %d", len(n.got), len(tests))
	}
	if got := byKind[transport.KindOverdueSevere].Text; got != "This task is 3 days overdue. Please review and update." {
		t.Fatalf("severe text = %q", got)
	}
}

func TestLongStretchBreak(t *testing.T) {
	t.Parallel()

	store := &fakeStore{logs: []storage.LogRow{completedLog(239, 150), completedLog(88, 80), completedLog(7, 15)}}
	n := &fakeNotifier{}
	if err := newLoop(store, n, Config{}).Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	if len(n.got) != 1 || n.got[0].Title != "Time for a break!" {
		t.Fatalf("notifications = %+v, want one long break", n.got)
	}
	if want := "You've been working for 4 hours. Consider taking a 15-30 minute break."; n.got[0].Text != want {
		t.Fatalf("text = %q, want %q", n.got[0].Text, want)
	}
}

func TestCycleKeepsGoingOnStoreError(t *testing.T) {
	t.Parallel()

	store := &fakeStore{taskErr: errors.New("db down"), logs: []storage.LogRow{completedLog(200, 150)}}
	n := &fakeNotifier{}
	l := newLoop(store, n, Config{})

	if err := l.Cycle(context.Background()); err == nil {
		t.Fatalf("Cycle() = nil, want store error")
	}
	if n.count() != 1 {
		t.Fatalf("notifications = %d, want the break reminder despite task errors", n.count())
	}
	st := l.State()
	if st.Cycles != 1 || st.Sent != 1 || st.LastError == "" {
		t.Fatalf("State() = %+v", st)
	}
}

// flakyStore fails its first due-window query.
type flakyStore struct {
	fakeStore
	mu     sync.Mutex
	failed bool
}

func (f *flakyStore) TasksByDueWindow(ctx context.Context, user int64, from, to time.Time, exclude string) ([]storage.DueTask, error) {
	f.mu.Lock()
	first := !f.failed
	f.failed = true
	f.mu.Unlock()
	if first {
		return nil, errors.New("db down")
	}
	return f.fakeStore.TasksByDueWindow(ctx, user, from, to, exclude)
}

func TestFailedCycleRetriesSooner(t *testing.T) {
	t.Parallel()

	l := newLoop(&flakyStore{}, &fakeNotifier{}, Config{Interval: time.Hour, RetryInterval: 10 * time.Millisecond})
	l.Start(context.Background())
	defer func() { _ = l.Stop(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for l.State().Cycles < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("State() = %+v, want a second cycle after the retry interval", l.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st := l.State(); st.LastError != "" {
		t.Fatalf("LastError = %q after a clean retry", st.LastError)
	}
}

func TestCycleWithoutNotifier(t *testing.T) {
	t.Parallel()

	l := newLoop(&fakeStore{tasks: []storage.DueTask{due(4, "D", 10, "pending")}}, nil, Config{})
	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	if st := l.State(); st.Cycles != 1 || st.Sent != 0 {
		t.Fatalf("State() = %+v, want one cycle and nothing sent", st)
	}
}

func TestNotifyFailureDoesNotFailCycle(t *testing.T) {
	t.Parallel()

	store := &fakeStore{tasks: []storage.DueTask{due(4, "D", 10, "pending")}}
	n := &fakeNotifier{fail: errors.New("queue full")}
	l := newLoop(store, n, Config{})
	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v, want nil", err)
	}
	if st := l.State(); st.Sent != 0 {
		t.Fatalf("Sent = %d, want 0", st.Sent)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	store := &fakeStore{tasks: []storage.DueTask{due(4, "D", 10, "pending")}}
	n := &fakeNotifier{}
	l := newLoop(store, n, Config{Interval: time.Hour})

	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() on stopped loop = %v, want nil", err)
	}

	l.Start(context.Background())
	l.Start(context.Background())
	if !l.Running() {
		t.Fatalf("Running() = false after Start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for n.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1 from the first tick", n.count())
	}

	start := time.Now()
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Stop() took %v, want interruptible wait", time.Since(start))
	}
	if l.Running() {
		t.Fatalf("Running() = true after Stop")
	}

	l.Start(context.Background())
	defer func() { _ = l.Stop(context.Background()) }()
	if !l.Running() {
		t.Fatalf("Running() = false after restart")
	}
}

func TestStopIsBounded(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)
	l := newLoop(&fakeStore{block: block}, &fakeNotifier{}, Config{StopTimeout: 50 * time.Millisecond})
	l.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Stop() took %v with a stuck worker, want about 50ms", elapsed)
	}
}

func TestDaysBetween(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("X", -5*3600)
	a := time.Date(2024, 3, 9, 23, 30, 0, 0, loc)
	b := time.Date(2024, 3, 12, 0, 10, 0, 0, loc)
	if got := daysBetween(a, b); got != 3 {
		t.Fatalf("daysBetween() = %d, want 3", got)
	}
	keys := []string{taskKey("overdue", 2, "2024-03-10"), taskKey("due-today", 2, "2024-03-10")}
	sort.Strings(keys)
	if keys[0] == keys[1] {
		t.Fatalf("task keys collide: %v", keys)
	}
}
