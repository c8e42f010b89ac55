package insights

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"planwise/internal/domain"
	"planwise/internal/storage"
	logx "planwise/pkg/logx"
)

func minutes(v float64) *float64 { return &v }

func logAt(day, hour int, d *float64) storage.LogRow {
	return storage.LogRow{Start: time.Date(2024, 3, day, hour, 15, 0, 0, time.UTC), DurationMinutes: d}
}

type fakeStore struct {
	logs    []storage.LogRow
	rollups []storage.Rollup
	logErr  error
	rollErr error
}

func (f *fakeStore) LogsInWindow(context.Context, int64, time.Time, time.Time) ([]storage.LogRow, error) {
	return f.logs, f.logErr
}

func (f *fakeStore) TaskRollups(context.Context, int64) ([]storage.Rollup, error) {
	return f.rollups, f.rollErr
}

var now = time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

func TestBuildHourStatistics(t *testing.T) {
	t.Parallel()

	logs := []storage.LogRow{
		logAt(4, 9, minutes(60)),
		logAt(5, 9, minutes(120)),
		logAt(6, 14, minutes(30)),
		logAt(7, 14, minutes(10)),
		logAt(8, 16, minutes(100)),
		logAt(9, 20, nil), // running session
	}
	in := Build(logs, nil, now, 7)

	if in.MostProductiveHour == nil || *in.MostProductiveHour != 16 {
		t.Fatalf("MostProductiveHour = %v, want 16", in.MostProductiveHour)
	}
	// mean = 320/5 = 64; hour 9 avg 90, hour 14 avg 20, hour 16 avg 100.
	if got, want := in.ProductiveHours, []int{9, 16}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ProductiveHours = %v, want %v", got, want)
	}
	if in.AverageSessionLength != 64 {
		t.Fatalf("AverageSessionLength = %v, want 64", in.AverageSessionLength)
	}
}

func TestBuildTiesPickEarliestHour(t *testing.T) {
	t.Parallel()

	in := Build([]storage.LogRow{logAt(4, 15, minutes(50)), logAt(4, 10, minutes(50))}, nil, now, 7)
	if in.MostProductiveHour == nil || *in.MostProductiveHour != 10 {
		t.Fatalf("MostProductiveHour = %v, want 10", in.MostProductiveHour)
	}
}

func TestBuildUsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	in := Build([]storage.LogRow{logAt(4, 7, minutes(50))}, nil, now.In(loc), 7)
	if in.MostProductiveHour == nil || *in.MostProductiveHour != 9 {
		t.Fatalf("MostProductiveHour = %v, want 9 in UTC+2", in.MostProductiveHour)
	}
}

func TestBuildBreakdowns(t *testing.T) {
	t.Parallel()

	rollups := []storage.Rollup{
		{TaskID: 1, Status: "completed", CategoryName: "coding", ProjectName: "Website", SessionCount: 3, LoggedMinutes: 270},
		{TaskID: 2, Status: "completed", CategoryName: "coding", ProjectName: "Website", SessionCount: 1, LoggedMinutes: 30},
		{TaskID: 3, Status: "pending", CategoryName: "", ProjectName: "Mobile", SessionCount: 2, LoggedMinutes: 400},
		{TaskID: 4, Status: "in-progress"},
	}
	in := Build(nil, rollups, now, 7)

	if in.CompletionRate != 50 {
		t.Fatalf("CompletionRate = %v, want 50", in.CompletionRate)
	}
	wantCats := []domain.CategoryStat{
		{Name: Uncategorized, TaskCount: 2, AvgDuration: 200, TotalMinutes: 400},
		{Name: "coding", TaskCount: 2, AvgDuration: 75, TotalMinutes: 300},
	}
	if !reflect.DeepEqual(in.TopCategories, wantCats) {
		t.Fatalf("TopCategories = %+v, want %+v", in.TopCategories, wantCats)
	}
	wantProjects := []domain.ProjectStat{
		{Name: "Mobile", TaskCount: 1, TotalMinutes: 400},
		{Name: "Website", TaskCount: 2, TotalMinutes: 300},
		{Name: NoProject, TaskCount: 1, TotalMinutes: 0},
	}
	if !reflect.DeepEqual(in.Projects, wantProjects) {
		t.Fatalf("Projects = %+v, want %+v", in.Projects, wantProjects)
	}
	wantSuggest := []string{SuggestDeadlines, SuggestTrackPatterns}
	if !reflect.DeepEqual(in.Suggestions, wantSuggest) {
		t.Fatalf("Suggestions = %v, want %v", in.Suggestions, wantSuggest)
	}
}

func TestBuildCapsBreakdownsAtFive(t *testing.T) {
	t.Parallel()

	var rollups []storage.Rollup
	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		rollups = append(rollups, storage.Rollup{TaskID: int64(i), Status: "completed", CategoryName: name, ProjectName: name, LoggedMinutes: float64(i)})
	}
	in := Build(nil, rollups, now, 7)
	if len(in.TopCategories) != 5 || len(in.Projects) != 5 {
		t.Fatalf("len categories/projects = %d/%d, want 5/5", len(in.TopCategories), len(in.Projects))
	}
	if in.Projects[0].Name != "g" {
		t.Fatalf("top project = %q, want g", in.Projects[0].Name)
	}
}

func TestBuildDailyTotals(t *testing.T) {
	t.Parallel()

	logs := []storage.LogRow{
		logAt(10, 9, minutes(30)),
		logAt(10, 11, minutes(15)),
		logAt(8, 9, minutes(60)),
		logAt(1, 9, minutes(500)), // outside the window
	}
	in := Build(logs, nil, now, 3)
	want := []domain.DayTotal{{Date: "2024-03-08", Minutes: 60}, {Date: "2024-03-09"}, {Date: "2024-03-10", Minutes: 45}}
	if !reflect.DeepEqual(in.Daily, want) {
		t.Fatalf("Daily = %+v, want %+v", in.Daily, want)
	}
}

func TestBuildEmptyHistory(t *testing.T) {
	t.Parallel()

	in := Build(nil, nil, now, 7)
	if in.MostProductiveHour != nil || in.CompletionRate != 0 || in.AverageSessionLength != 0 {
		t.Fatalf("empty insights = %+v", in)
	}
	if !reflect.DeepEqual(in.Suggestions, []string{SuggestTrackPatterns}) {
		t.Fatalf("Suggestions = %v", in.Suggestions)
	}
	if in.ProductiveHours == nil || in.TopCategories == nil || in.Projects == nil {
		t.Fatalf("slices must be empty, not nil: %+v", in)
	}
}

func TestComputeToleratesStoreErrors(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{
		logs:    []storage.LogRow{logAt(9, 9, minutes(150))},
		rollErr: errors.New("db down"),
	}
	a := New(fs, time.UTC, logx.Nop(), WithClock(func() time.Time { return now }))
	in := a.Compute(context.Background(), 1)
	if in.AverageSessionLength != 150 {
		t.Fatalf("AverageSessionLength = %v, want 150", in.AverageSessionLength)
	}
	if in.CompletionRate != 0 || len(in.TopCategories) != 0 {
		t.Fatalf("rollup-derived fields = %+v, want zero", in)
	}
	if !reflect.DeepEqual(in.Suggestions, []string{SuggestShorterSessions}) {
		t.Fatalf("Suggestions = %v", in.Suggestions)
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{
		logs:    []storage.LogRow{logAt(9, 9, minutes(40)), logAt(9, 13, minutes(80))},
		rollups: []storage.Rollup{{TaskID: 1, Status: "completed", CategoryName: "coding", SessionCount: 2, LoggedMinutes: 120}},
	}
	a := New(fs, time.UTC, logx.Nop(), WithClock(func() time.Time { return now }))
	first := a.Compute(context.Background(), 1)
	second := a.Compute(context.Background(), 1)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Compute() not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestRecommend(t *testing.T) {
	t.Parallel()

	r := Recommend(domain.Insights{})
	if !reflect.DeepEqual(r.OptimalHours, DefaultProductiveHours) || r.SessionMinutes != DefaultSessionMinutes {
		t.Fatalf("defaults = %+v", r)
	}
	r.OptimalHours[0] = 99
	if DefaultProductiveHours[0] != 9 {
		t.Fatalf("Recommend leaked the default slice")
	}

	hour := 10
	r = Recommend(domain.Insights{
		MostProductiveHour:   &hour,
		ProductiveHours:      []int{10},
		AverageSessionLength: 130,
		CompletionRate:       40,
		TopCategories:        []domain.CategoryStat{{Name: "coding", TaskCount: 1}},
	})
	want := Recommendations{OptimalHours: []int{10}, SessionMinutes: 130, FocusTips: []string{TipSmallerChunks, TipShorterFocus}}
	if !reflect.DeepEqual(r, want) {
		t.Fatalf("Recommend() = %+v, want %+v", r, want)
	}
}

func TestCompletionRateRange(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("completion rate stays within [0,100]", prop.ForAll(
		func(statuses []int) bool {
			rollups := make([]storage.Rollup, len(statuses))
			all := []domain.Status{domain.StatusPending, domain.StatusInProgress, domain.StatusCompleted, domain.StatusCancelled}
			for i, s := range statuses {
				rollups[i] = storage.Rollup{TaskID: int64(i), Status: string(all[s])}
			}
			rate := Build(nil, rollups, now, 1).CompletionRate
			if len(rollups) == 0 {
				return rate == 0
			}
			return rate >= 0 && rate <= 100
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
