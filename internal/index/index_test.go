package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nametoa/ai-sport-training/internal/store"
	"github.com/nametoa/ai-sport-training/internal/types"
)

// openTestIndex returns an initialized index in a temp directory.
func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := idx.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return idx
}

func sampleActivities() []types.Activity {
	return []types.Activity{
		{LabelID: "a", Date: 20250602, StartTime: 1748854800, SportType: types.SportRun, Distance: 10000, TotalTime: 3000, AvgHr: 140, TrainingLoad: 80},
		{LabelID: "b", Date: 20250608, StartTime: 1749373200, SportType: types.SportRun, Distance: 5000, TotalTime: 1500, AvgHr: 150, TrainingLoad: 50},
		{LabelID: "c", Date: 20250609, StartTime: 1749459600, SportType: types.SportBike, Distance: 30000, TotalTime: 3600, AvgHr: 130, TrainingLoad: 60},
		{LabelID: "d", StartTime: 1749546000, SportType: types.SportStrength, TotalTime: 1800},
	}
}

func sampleBundle() *types.MetricsBundle {
	return &types.MetricsBundle{DayList: []types.DailyMetric{
		{HappenDay: 20250601, Rhr: 50, AvgSleepHrv: 60, Vo2max: 52, Lthr: 170},
		{HappenDay: 20250602, Rhr: 48, AvgSleepHrv: 0, Vo2max: 0},
		{HappenDay: 20250603},
	}}
}

func TestInitSchema_Idempotent(t *testing.T) {
	idx := openTestIndex(t)
	if err := idx.InitSchema(); err != nil {
		t.Fatalf("second InitSchema() failed: %v", err)
	}

	for _, table := range []string{"activities", "days", "index_meta"} {
		var count int
		err := idx.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestRebuild_Counts(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.Rebuild(sampleActivities(), sampleBundle()); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	c, err := idx.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if c.Activities != 4 || c.Days != 3 {
		t.Errorf("Counts() = %+v, want 4 activities and 3 days", c)
	}

	at, err := idx.RebuiltAt(ctx)
	if err != nil {
		t.Fatalf("RebuiltAt() failed: %v", err)
	}
	if at.IsZero() {
		t.Error("RebuiltAt() is zero after a rebuild")
	}
}

func TestRebuild_ReplacesRows(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.Rebuild(sampleActivities(), sampleBundle()); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	if err := idx.Rebuild(sampleActivities()[:1], nil); err != nil {
		t.Fatalf("second Rebuild() failed: %v", err)
	}
	c, err := idx.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if c.Activities != 1 || c.Days != 0 {
		t.Errorf("Counts() = %+v, want 1 activity and 0 days", c)
	}
}

func TestRebuild_DuplicateLabelIDs(t *testing.T) {
	idx := openTestIndex(t)
	acts := append(sampleActivities(), types.Activity{LabelID: "a", Date: 20250602, StartTime: 1748854800, SportType: types.SportRun, Distance: 12000})

	if err := idx.Rebuild(acts, nil); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	rows, err := idx.RecentActivities(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentActivities() failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}
}

func TestRecentActivities(t *testing.T) {
	idx := openTestIndex(t)
	if err := idx.Rebuild(sampleActivities(), nil); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}

	rows, err := idx.RecentActivities(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentActivities() failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].LabelID != "d" || rows[1].LabelID != "c" {
		t.Errorf("order = %s,%s, want d,c", rows[0].LabelID, rows[1].LabelID)
	}
	if rows[0].Sport != "Strength" {
		t.Errorf("Sport = %q, want Strength", rows[0].Sport)
	}
	// d has no date; it is derived from the start time.
	if rows[0].Date != 20250610 {
		t.Errorf("Date = %d, want 20250610", rows[0].Date)
	}
}

func TestSportTotals(t *testing.T) {
	idx := openTestIndex(t)
	if err := idx.Rebuild(sampleActivities(), nil); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}

	totals, err := idx.SportTotals(context.Background())
	if err != nil {
		t.Fatalf("SportTotals() failed: %v", err)
	}
	if len(totals) != 3 {
		t.Fatalf("got %d sports, want 3", len(totals))
	}
	run := totals[0]
	if run.SportType != types.SportRun || run.Count != 2 || run.Distance != 15000 || run.Duration != 4500 {
		t.Errorf("run totals = %+v", run)
	}
}

func TestWeeklyVolume(t *testing.T) {
	idx := openTestIndex(t)
	if err := idx.Rebuild(sampleActivities(), nil); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}

	weeks, err := idx.WeeklyVolume(context.Background(), 0)
	if err != nil {
		t.Fatalf("WeeklyVolume() failed: %v", err)
	}
	if len(weeks) != 2 {
		t.Fatalf("got %d weeks, want 2: %+v", len(weeks), weeks)
	}
	if weeks[0].WeekStart != "2025-06-09" || weeks[0].Count != 2 {
		t.Errorf("latest week = %+v, want 2025-06-09 with 2 activities", weeks[0])
	}
	// Monday 2 June and Sunday 8 June share a week.
	if weeks[1].WeekStart != "2025-06-02" || weeks[1].Count != 2 || weeks[1].Distance != 15000 {
		t.Errorf("earlier week = %+v, want 2025-06-02 with 2 runs", weeks[1])
	}

	limited, err := idx.WeeklyVolume(context.Background(), 1)
	if err != nil {
		t.Fatalf("WeeklyVolume(1) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("got %d weeks, want 1", len(limited))
	}
}

func TestLatestVitals_SkipsZeroDays(t *testing.T) {
	idx := openTestIndex(t)
	if err := idx.Rebuild(nil, sampleBundle()); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}

	v, err := idx.LatestVitals(context.Background())
	if err != nil {
		t.Fatalf("LatestVitals() failed: %v", err)
	}
	if v.Rhr == nil || v.Rhr.Value != 48 || v.Rhr.Day != 20250602 {
		t.Errorf("Rhr = %+v, want 48 on 20250602", v.Rhr)
	}
	if v.Hrv == nil || v.Hrv.Value != 60 || v.Hrv.Day != 20250601 {
		t.Errorf("Hrv = %+v, want 60 on 20250601", v.Hrv)
	}
	if v.Lthr == nil || v.Lthr.Value != 170 {
		t.Errorf("Lthr = %+v, want 170", v.Lthr)
	}
	if v.Ltsp != nil {
		t.Errorf("Ltsp = %+v, want nil", v.Ltsp)
	}
}

func TestRebuildFromStore_MissingDocuments(t *testing.T) {
	st := store.New(t.TempDir())
	idx, err := OpenStore(st)
	if err != nil {
		t.Fatalf("OpenStore() failed: %v", err)
	}
	defer idx.Close()

	if err := idx.RebuildFromStore(context.Background(), st); err != nil {
		t.Fatalf("RebuildFromStore() failed: %v", err)
	}
	c, err := idx.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if c != (Counts{}) {
		t.Errorf("Counts() = %+v, want zero", c)
	}
}

func TestRebuildFromStore(t *testing.T) {
	st := store.New(t.TempDir())
	if err := st.SaveActivities(sampleActivities()); err != nil {
		t.Fatalf("SaveActivities() failed: %v", err)
	}
	if err := st.SaveMetrics(sampleBundle()); err != nil {
		t.Fatalf("SaveMetrics() failed: %v", err)
	}

	idx, err := OpenStore(st)
	if err != nil {
		t.Fatalf("OpenStore() failed: %v", err)
	}
	defer idx.Close()

	if err := idx.RebuildFromStore(context.Background(), st); err != nil {
		t.Fatalf("RebuildFromStore() failed: %v", err)
	}
	c, err := idx.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if c.Activities != 4 || c.Days != 3 {
		t.Errorf("Counts() = %+v, want 4 activities and 3 days", c)
	}
}
