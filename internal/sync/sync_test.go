package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nametoa/ai-sport-training/internal/coros"
	"github.com/nametoa/ai-sport-training/internal/store"
	"github.com/nametoa/ai-sport-training/internal/types"
)

// fakeBackend serves scripted responses and records activity page requests.
type fakeBackend struct {
	pages    map[int]*coros.ActivityPage
	pageErrs map[int]error
	calls    []int

	analyse    *types.MetricsBundle
	analyseErr error
	panicOn    Resource

	dashboard    types.Snapshot
	dashboardErr error
}

func (f *fakeBackend) QueryActivities(ctx context.Context, size, page int) (*coros.ActivityPage, error) {
	f.calls = append(f.calls, page)
	if f.panicOn == ResourceActivities {
		panic("activities exploded")
	}
	if err := f.pageErrs[page]; err != nil {
		return nil, err
	}
	if p, ok := f.pages[page]; ok {
		return p, nil
	}
	return &coros.ActivityPage{PageNumber: page}, nil
}

func (f *fakeBackend) QueryAnalyse(ctx context.Context) (*types.MetricsBundle, error) {
	if f.panicOn == ResourceMetrics {
		panic("analyse exploded")
	}
	if f.analyseErr != nil {
		return nil, f.analyseErr
	}
	if f.analyse == nil {
		return &types.MetricsBundle{}, nil
	}
	return f.analyse, nil
}

func (f *fakeBackend) QueryDashboard(ctx context.Context) (types.Snapshot, error) {
	if f.dashboardErr != nil {
		return nil, f.dashboardErr
	}
	if f.dashboard == nil {
		return types.Snapshot(`{"summaryInfo":{}}`), nil
	}
	return f.dashboard, nil
}

// act builds an activity the way the vendor sends it.
func act(t *testing.T, id string, start int64) types.Activity {
	t.Helper()
	var a types.Activity
	raw := fmt.Sprintf(`{"labelId":%q,"startTime":%d,"sportType":100,"distance":5000,"device":"PACE 3"}`, id, start)
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("failed to build activity: %v", err)
	}
	return a
}

// noID builds an activity that lacks a labelId.
func noID(t *testing.T, start int64) types.Activity {
	t.Helper()
	var a types.Activity
	raw := fmt.Sprintf(`{"startTime":%d,"sportType":100}`, start)
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("failed to build activity: %v", err)
	}
	return a
}

func page(total int, acts ...types.Activity) *coros.ActivityPage {
	return &coros.ActivityPage{DataList: acts, TotalPage: total}
}

func bundle(t *testing.T, raw string) *types.MetricsBundle {
	t.Helper()
	var b types.MetricsBundle
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		t.Fatalf("failed to build bundle: %v", err)
	}
	return &b
}

// setupEngine returns an engine over a fresh data directory.
func setupEngine(t *testing.T, backend Backend) (*Engine, *store.Store) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "data"))
	e := New(backend, st, Options{
		PageSize: 3,
		Logger:   log.New(io.Discard, "", 0),
		NewRunID: func() string { return "run-test" },
	})
	return e, st
}

func labelIDs(acts []types.Activity) string {
	ids := make([]string, len(acts))
	for i, a := range acts {
		ids[i] = a.LabelID.String()
	}
	return strings.Join(ids, ",")
}

func loadActivities(t *testing.T, st *store.Store) []types.Activity {
	t.Helper()
	acts, err := st.LoadActivities()
	if err != nil {
		t.Fatalf("LoadActivities failed: %v", err)
	}
	return acts
}

func TestRun_EndToEnd(t *testing.T) {
	fb := &fakeBackend{
		pages: map[int]*coros.ActivityPage{
			1: page(1, act(t, "A", 100), act(t, "C", 300), act(t, "B", 200)),
		},
		analyse: bundle(t, `{"dayList":[{"happenDay":20250601,"vo2max":50}],"weekList":[]}`),
	}
	e, st := setupEngine(t, fb)

	report := e.Run(context.Background())
	if err := report.Err(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.RunID != "run-test" {
		t.Errorf("RunID = %q", report.RunID)
	}

	acts := loadActivities(t, st)
	if got := labelIDs(acts); got != "C,B,A" {
		t.Errorf("stored order = %s, want C,B,A", got)
	}

	meta, err := st.LoadMeta()
	if err != nil {
		t.Fatalf("LoadMeta failed: %v", err)
	}
	if len(meta.KnownLabelIDs) != 3 {
		t.Errorf("meta sample = %v, want 3 entries", meta.KnownLabelIDs)
	}
	if meta.LastFetch == nil || meta.LatestHappenDay == nil || *meta.LatestHappenDay != 20250601 {
		t.Errorf("meta = %+v", meta)
	}
	if !meta.Resources["activities"].OK || meta.Resources["activities"].Added != 3 {
		t.Errorf("activities status = %+v", meta.Resources["activities"])
	}
	if e.LastReport() != report {
		t.Error("LastReport should return the latest report")
	}
}

func TestSyncActivities_Idempotent(t *testing.T) {
	fb := &fakeBackend{
		pages: map[int]*coros.ActivityPage{
			1: page(1, act(t, "C", 300), act(t, "B", 200), act(t, "A", 100)),
		},
	}
	e, st := setupEngine(t, fb)

	if res := e.SyncActivities(context.Background()); res.Err != nil || !res.Written {
		t.Fatalf("first sync = %+v", res)
	}
	first, err := os.ReadFile(st.Path(store.ActivitiesFile))
	if err != nil {
		t.Fatal(err)
	}

	res := e.SyncActivities(context.Background())
	if res.Err != nil {
		t.Fatalf("second sync failed: %v", res.Err)
	}
	if res.Added != 0 || res.Written {
		t.Errorf("second sync = %+v, want no write", res)
	}
	second, err := os.ReadFile(st.Path(store.ActivitiesFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("activities.json changed on a run with no new data")
	}
}

func TestSyncActivities_PartialPageStops(t *testing.T) {
	fb := &fakeBackend{
		pages: map[int]*coros.ActivityPage{
			1: page(3, act(t, "C", 300), act(t, "B", 100), act(t, "D", 50)),
			2: page(3, act(t, "X", 10)),
		},
	}
	e, st := setupEngine(t, fb)
	if err := st.SaveActivities([]types.Activity{act(t, "A", 200), act(t, "B", 100)}); err != nil {
		t.Fatal(err)
	}

	res := e.SyncActivities(context.Background())
	if res.Err != nil {
		t.Fatalf("sync failed: %v", res.Err)
	}
	if res.Added != 2 {
		t.Errorf("Added = %d, want 2", res.Added)
	}
	if len(fb.calls) != 1 {
		t.Errorf("requested pages %v, want only page 1", fb.calls)
	}
	if got := labelIDs(loadActivities(t, st)); got != "C,A,B,D" {
		t.Errorf("stored order = %s, want C,A,B,D", got)
	}
}

func TestSyncActivities_FullPageContinues(t *testing.T) {
	fb := &fakeBackend{
		pages: map[int]*coros.ActivityPage{
			1: page(2, act(t, "E", 500), act(t, "D", 400)),
			2: page(2, act(t, "C", 300), act(t, "B", 200)),
		},
	}
	e, st := setupEngine(t, fb)
	if err := st.SaveActivities([]types.Activity{act(t, "A", 100)}); err != nil {
		t.Fatal(err)
	}

	res := e.SyncActivities(context.Background())
	if res.Err != nil {
		t.Fatalf("sync failed: %v", res.Err)
	}
	if fmt.Sprint(fb.calls) != "[1 2]" {
		t.Errorf("requested pages %v, want [1 2]", fb.calls)
	}
	if res.Pages != 2 || res.Added != 4 {
		t.Errorf("result = %+v", res)
	}
	if got := labelIDs(loadActivities(t, st)); got != "E,D,C,B,A" {
		t.Errorf("stored order = %s", got)
	}
}

func TestSyncActivities_StopConditions(t *testing.T) {
	tests := []struct {
		name      string
		pages     func(t *testing.T) map[int]*coros.ActivityPage
		wantCalls string
		wantAdded int
		wantErr   bool
	}{
		{
			name: "empty first page",
			pages: func(t *testing.T) map[int]*coros.ActivityPage {
				return map[int]*coros.ActivityPage{1: page(5)}
			},
			wantCalls: "[1]",
		},
		{
			name: "all known",
			pages: func(t *testing.T) map[int]*coros.ActivityPage {
				return map[int]*coros.ActivityPage{1: page(5, act(t, "K", 1))}
			},
			wantCalls: "[1]",
		},
		{
			name: "last page reached",
			pages: func(t *testing.T) map[int]*coros.ActivityPage {
				return map[int]*coros.ActivityPage{1: page(1, act(t, "N", 5))}
			},
			wantCalls: "[1]",
			wantAdded: 1,
		},
		{
			name: "total page zero treated as one",
			pages: func(t *testing.T) map[int]*coros.ActivityPage {
				return map[int]*coros.ActivityPage{1: page(0, act(t, "N", 5))}
			},
			wantCalls: "[1]",
			wantAdded: 1,
		},
		{
			name: "empty page ends pagination",
			pages: func(t *testing.T) map[int]*coros.ActivityPage {
				return map[int]*coros.ActivityPage{1: page(9, act(t, "N", 5)), 2: page(9)}
			},
			wantCalls: "[1 2]",
			wantAdded: 1,
		},
		{
			name: "record without labelId is not treated as known",
			pages: func(t *testing.T) map[int]*coros.ActivityPage {
				return map[int]*coros.ActivityPage{
					1: page(2, act(t, "A", 10), noID(t, 95), act(t, "B", 9)),
					2: page(2, act(t, "C", 8), act(t, "D", 7), act(t, "E", 6)),
				}
			},
			wantCalls: "[1 2]",
			wantAdded: 5,
			wantErr:   true,
		},
		{
			name: "page of records without labelId continues",
			pages: func(t *testing.T) map[int]*coros.ActivityPage {
				return map[int]*coros.ActivityPage{
					1: page(2, noID(t, 95)),
					2: page(2, act(t, "N", 5)),
				}
			},
			wantCalls: "[1 2]",
			wantAdded: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{pages: tt.pages(t)}
			e, st := setupEngine(t, fb)
			if err := st.SaveActivities([]types.Activity{act(t, "K", 1)}); err != nil {
				t.Fatal(err)
			}

			res := e.SyncActivities(context.Background())
			if (res.Err != nil) != tt.wantErr {
				t.Fatalf("Err = %v, wantErr %v", res.Err, tt.wantErr)
			}
			if got := fmt.Sprint(fb.calls); got != tt.wantCalls {
				t.Errorf("calls = %s, want %s", got, tt.wantCalls)
			}
			if res.Added != tt.wantAdded {
				t.Errorf("Added = %d, want %d", res.Added, tt.wantAdded)
			}
		})
	}
}

func TestSyncActivities_RecordWithoutLabelIDKeepsHistory(t *testing.T) {
	fb := &fakeBackend{pages: map[int]*coros.ActivityPage{
		1: page(2, act(t, "A", 10), noID(t, 95), act(t, "B", 9)),
		2: page(2, act(t, "C", 8), act(t, "D", 7), act(t, "E", 6)),
	}}
	e, st := setupEngine(t, fb)

	res := e.SyncActivities(context.Background())
	if res.Err == nil || !strings.Contains(res.Err.Error(), "without labelId") {
		t.Errorf("Err = %v, want skipped record reported", res.Err)
	}
	if !res.Written {
		t.Error("valid records should still be written")
	}
	if got := labelIDs(loadActivities(t, st)); got != "A,B,C,D,E" {
		t.Errorf("stored = %s, want A,B,C,D,E", got)
	}

	fb.calls = nil
	res = e.SyncActivities(context.Background())
	if res.Added != 0 {
		t.Errorf("second run Added = %d, want 0", res.Added)
	}
	if got := fmt.Sprint(fb.calls); got != "[1]" {
		t.Errorf("second run calls = %s, want [1]", got)
	}
}

func TestSyncActivities_DropsStoredDuplicates(t *testing.T) {
	tests := []struct {
		name      string
		remote    []types.Activity
		wantIDs   string
		wantAdded int
	}{
		{name: "with new records", remote: []types.Activity{act(t, "N", 11), act(t, "A", 10)}, wantIDs: "N,A,B", wantAdded: 1},
		{name: "nothing new", remote: []types.Activity{act(t, "A", 10)}, wantIDs: "A,B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{pages: map[int]*coros.ActivityPage{1: page(1, tt.remote...)}}
			e, st := setupEngine(t, fb)
			if err := st.SaveActivities([]types.Activity{act(t, "A", 10), act(t, "B", 9), act(t, "A", 10)}); err != nil {
				t.Fatal(err)
			}

			res := e.SyncActivities(context.Background())
			if res.Err != nil {
				t.Fatalf("sync failed: %v", res.Err)
			}
			if !res.Written {
				t.Error("document with duplicates should be rewritten")
			}
			if res.Added != tt.wantAdded {
				t.Errorf("Added = %d, want %d", res.Added, tt.wantAdded)
			}
			if got := labelIDs(loadActivities(t, st)); got != tt.wantIDs {
				t.Errorf("stored = %s, want %s", got, tt.wantIDs)
			}
		})
	}
}

func TestSyncActivities_NoDuplicatesAcrossPages(t *testing.T) {
	// The list shifted between requests, so page 2 repeats B.
	fb := &fakeBackend{
		pages: map[int]*coros.ActivityPage{
			1: page(3, act(t, "C", 300), act(t, "B", 200)),
			2: page(3, act(t, "B", 200), act(t, "A", 100)),
		},
	}
	e, st := setupEngine(t, fb)

	res := e.SyncActivities(context.Background())
	if res.Err != nil {
		t.Fatalf("sync failed: %v", res.Err)
	}
	acts := loadActivities(t, st)
	if got := labelIDs(acts); got != "C,B,A" {
		t.Errorf("stored = %s, want C,B,A", got)
	}

	// A second run against a store holding all three adds nothing.
	fb.calls = nil
	res = e.SyncActivities(context.Background())
	if res.Added != 0 || len(loadActivities(t, st)) != 3 {
		t.Errorf("second run = %+v", res)
	}
}

func TestSyncActivities_NumericLabelIDs(t *testing.T) {
	var numeric types.Activity
	if err := json.Unmarshal([]byte(`{"labelId":12345,"startTime":10}`), &numeric); err != nil {
		t.Fatal(err)
	}
	fb := &fakeBackend{pages: map[int]*coros.ActivityPage{1: page(1, numeric)}}
	e, st := setupEngine(t, fb)
	if err := st.SaveActivities([]types.Activity{act(t, "12345", 10)}); err != nil {
		t.Fatal(err)
	}

	res := e.SyncActivities(context.Background())
	if res.Added != 0 {
		t.Errorf("numeric and string forms of the same labelId should match, added %d", res.Added)
	}
}

func TestSyncActivities_PageFailureKeepsFetched(t *testing.T) {
	apiErr := &coros.APIError{Endpoint: "/activity/query", Code: "1019", Message: "busy"}
	fb := &fakeBackend{
		pages: map[int]*coros.ActivityPage{
			1: page(3, act(t, "C", 300), act(t, "B", 200)),
		},
		pageErrs: map[int]error{2: apiErr},
	}
	e, st := setupEngine(t, fb)

	res := e.SyncActivities(context.Background())
	if !errors.Is(res.Err, coros.ErrAPI) {
		t.Fatalf("Err = %v, want ErrAPI", res.Err)
	}
	if res.Added != 2 || !res.Written {
		t.Errorf("result = %+v, want 2 added and written", res)
	}
	if got := labelIDs(loadActivities(t, st)); got != "C,B" {
		t.Errorf("stored = %s", got)
	}
}

func TestSyncActivities_CanceledDuringDelay(t *testing.T) {
	fb := &fakeBackend{
		pages: map[int]*coros.ActivityPage{
			1: page(5, act(t, "B", 200), act(t, "A", 100)),
		},
	}
	st := store.New(t.TempDir())
	e := New(fb, st, Options{PageDelay: time.Hour, Logger: log.New(io.Discard, "", 0)})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := e.SyncActivities(ctx)
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want deadline exceeded", res.Err)
	}
	if len(loadActivities(t, st)) != 2 {
		t.Error("page fetched before cancellation should be stored")
	}
}

func TestSyncMetrics_Bootstrap(t *testing.T) {
	fb := &fakeBackend{
		analyse: bundle(t, `{"dayList":[{"happenDay":20250602},{"happenDay":20250601}],"weekList":[{"count":3}],"summaryInfo":{"x":1},"tlIntensity":{"y":2}}`),
	}
	e, st := setupEngine(t, fb)

	res := e.SyncMetrics(context.Background())
	if res.Err != nil {
		t.Fatalf("sync failed: %v", res.Err)
	}
	if !res.Bootstrapped || res.Added != 2 {
		t.Errorf("result = %+v", res)
	}

	got, err := st.LoadMetrics()
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"weekList", "summaryInfo", "tlIntensity"} {
		if _, ok := got.Rollups[key]; !ok {
			t.Errorf("rollup %s missing", key)
		}
	}
	if len(got.DayList) != 2 || got.DayList[0].HappenDay != 20250602 {
		t.Errorf("bootstrap should store the remote dayList as received: %+v", got.DayList)
	}
}

func TestSyncMetrics_KnownDaysImmutable(t *testing.T) {
	fb := &fakeBackend{
		analyse: bundle(t, `{"dayList":[{"happenDay":20250601,"vo2max":52},{"happenDay":20250603,"vo2max":53}],"weekList":[{"count":9}]}`),
	}
	e, st := setupEngine(t, fb)
	if err := st.SaveMetrics(bundle(t, `{"dayList":[{"happenDay":20250602,"vo2max":51},{"happenDay":20250601,"vo2max":50}],"weekList":[{"count":1}],"localOnly":true}`)); err != nil {
		t.Fatal(err)
	}

	res := e.SyncMetrics(context.Background())
	if res.Err != nil {
		t.Fatalf("sync failed: %v", res.Err)
	}
	if res.Added != 1 || res.Total != 3 {
		t.Errorf("result = %+v", res)
	}

	got, err := st.LoadMetrics()
	if err != nil {
		t.Fatal(err)
	}
	var days []int
	for _, d := range got.DayList {
		days = append(days, d.HappenDay)
	}
	if fmt.Sprint(days) != "[20250601 20250602 20250603]" {
		t.Errorf("days = %v, want ascending", days)
	}
	if got.DayList[0].Vo2max != 50 {
		t.Errorf("known day overwritten: vo2max = %v", got.DayList[0].Vo2max)
	}

	weeks, err := got.Weeks()
	if err != nil {
		t.Fatal(err)
	}
	if len(weeks) != 1 || weeks[0].Count != 9 {
		t.Errorf("weekList should be replaced by the remote value: %+v", weeks)
	}
	if _, ok := got.Rollups["localOnly"]; !ok {
		t.Error("local fields absent from the remote bundle should be kept")
	}
}

func TestSyncDashboard_FailureLeavesFile(t *testing.T) {
	fb := &fakeBackend{dashboard: types.Snapshot(`{"v":1}`)}
	e, st := setupEngine(t, fb)

	if res := e.SyncDashboard(context.Background()); res.Err != nil {
		t.Fatalf("first sync failed: %v", res.Err)
	}
	before, _ := os.ReadFile(st.Path(store.DashboardFile))

	fb.dashboardErr = &coros.HTTPError{Endpoint: "/dashboard/detail/query", StatusCode: 502}
	res := e.SyncDashboard(context.Background())
	if !errors.Is(res.Err, coros.ErrHTTP) {
		t.Fatalf("Err = %v, want ErrHTTP", res.Err)
	}
	after, _ := os.ReadFile(st.Path(store.DashboardFile))
	if string(before) != string(after) {
		t.Error("dashboard.json changed after a failed fetch")
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	fb := &fakeBackend{
		pages:   map[int]*coros.ActivityPage{1: page(1, act(t, "A", 1))},
		panicOn: ResourceMetrics,
	}
	e, st := setupEngine(t, fb)

	report := e.Run(context.Background())

	failed := report.Failed()
	if len(failed) != 1 || failed[0].Resource != ResourceMetrics {
		t.Fatalf("failed = %+v, want only analyse", failed)
	}
	if !strings.Contains(failed[0].Err.Error(), "panic") {
		t.Errorf("Err = %v", failed[0].Err)
	}
	if dash, ok := report.Result(ResourceDashboard); !ok || !dash.OK() {
		t.Errorf("dashboard should still run: %+v", dash)
	}
	if report.Err() == nil {
		t.Error("Report.Err() should report the failure")
	}

	meta, err := st.LoadMeta()
	if err != nil {
		t.Fatal(err)
	}
	if meta.LastFetch != nil {
		t.Error("last_fetch should not advance after a failed run")
	}
	if meta.LastAttempt == nil || meta.Resources["analyse"].OK {
		t.Errorf("meta = %+v", meta)
	}
}

func TestRun_MissingLocalStateBootstraps(t *testing.T) {
	fb := &fakeBackend{
		pages:   map[int]*coros.ActivityPage{1: page(1, act(t, "A", 1))},
		analyse: bundle(t, `{"dayList":[{"happenDay":20250601}]}`),
	}
	e, _ := setupEngine(t, fb)

	report := e.Run(context.Background())
	for _, res := range []Resource{ResourceActivities, ResourceMetrics} {
		r, _ := report.Result(res)
		if !r.Bootstrapped {
			t.Errorf("%s should be bootstrapped: %+v", res, r)
		}
	}
}

func TestTryRun_Busy(t *testing.T) {
	e, _ := setupEngine(t, &fakeBackend{})

	e.mu.Lock()
	if _, ok := e.TryRun(context.Background()); ok {
		t.Error("TryRun should refuse while a run holds the lock")
	}
	e.mu.Unlock()

	if _, ok := e.TryRun(context.Background()); !ok {
		t.Error("TryRun should run when idle")
	}
}

type countingObserver struct {
	pages   int
	results []Result
}

func (c *countingObserver) PageFetched(Resource) { c.pages++ }
func (c *countingObserver) ResourceDone(_ string, r Result) {
	c.results = append(c.results, r)
}

func TestRun_ObserverAndHooks(t *testing.T) {
	fb := &fakeBackend{
		pages: map[int]*coros.ActivityPage{
			1: page(2, act(t, "B", 2)),
			2: page(2, act(t, "A", 1)),
		},
	}
	obs := &countingObserver{}
	st := store.New(t.TempDir())
	e := New(fb, st, Options{PageSize: 1, Logger: log.New(io.Discard, "", 0), Observer: Observers{obs, nil}})

	var hooked *Report
	e.OnComplete(func(r *Report) { hooked = r })

	report := e.Run(context.Background())
	if obs.pages != 2 {
		t.Errorf("pages observed = %d, want 2", obs.pages)
	}
	if len(obs.results) != 3 {
		t.Errorf("results observed = %d, want 3", len(obs.results))
	}
	if hooked != report {
		t.Error("completion hook not called with the report")
	}
}
