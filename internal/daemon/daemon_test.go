package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nametoa/ai-sport-training/internal/store"
	trainsync "github.com/nametoa/ai-sport-training/internal/sync"
)

// fakeSyncer counts runs and signals each one on ran.
type fakeSyncer struct {
	mu   sync.Mutex
	runs int
	ran  chan struct{}
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{ran: make(chan struct{}, 100)}
}

func (f *fakeSyncer) Run(ctx context.Context) *trainsync.Report {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	f.ran <- struct{}{}
	return &trainsync.Report{RunID: "test"}
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func testConfig(interval time.Duration) *Config {
	return &Config{
		Interval:         interval,
		DebounceInterval: 50 * time.Millisecond,
		Files:            []string{store.ActivitiesFile, store.AnalyseFile, store.DashboardFile},
		Logger:           log.New(io.Discard, "", 0),
	}
}

// startDaemon runs d in the background and stops it at test cleanup.
func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Start() returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
	waitRunning(t, d)
}

func waitRunning(t *testing.T, d *Daemon) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !d.watcher.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitRun(t *testing.T, f *fakeSyncer) {
	t.Helper()
	select {
	case <-f.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sync run")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		syncer  Syncer
		dataDir string
	}{
		{"nil syncer", nil, t.TempDir()},
		{"empty dir", newFakeSyncer(), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.syncer, tt.dataDir); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}
}

func TestNewWithConfig_FillsDefaults(t *testing.T) {
	d, err := NewWithConfig(newFakeSyncer(), t.TempDir(), &Config{})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	defer d.Stop()

	if d.config.DebounceInterval != DefaultConfig().DebounceInterval {
		t.Errorf("DebounceInterval = %v", d.config.DebounceInterval)
	}
	if len(d.config.Files) != 3 {
		t.Errorf("Files = %v, want the three data documents", d.config.Files)
	}
	if d.config.Logger == nil {
		t.Error("Logger is nil")
	}
}

func TestDaemon_SyncsAtStartAndOnInterval(t *testing.T) {
	f := newFakeSyncer()
	d, err := NewWithConfig(f, t.TempDir(), testConfig(100*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	startDaemon(t, d)

	waitRun(t, f)
	waitRun(t, f)
	if f.count() < 2 {
		t.Errorf("runs = %d, want at least 2", f.count())
	}
}

func TestDaemon_ZeroIntervalDisablesSync(t *testing.T) {
	f := newFakeSyncer()
	d, err := NewWithConfig(f, t.TempDir(), testConfig(0))
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	startDaemon(t, d)

	time.Sleep(100 * time.Millisecond)
	if n := f.count(); n != 0 {
		t.Errorf("runs = %d, want 0", n)
	}
}

func TestDaemon_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	d, err := NewWithConfig(newFakeSyncer(), dir, testConfig(0))
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	batches := make(chan []string, 10)
	d.OnChange(func(ctx context.Context, names []string) {
		batches <- names
	})
	startDaemon(t, d)

	st := store.New(dir)
	if err := st.SaveDashboard([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("SaveDashboard() failed: %v", err)
	}
	if err := st.SaveDashboard([]byte(`{"a":2}`)); err != nil {
		t.Fatalf("SaveDashboard() failed: %v", err)
	}
	if err := st.SaveActivities(nil); err != nil {
		t.Fatalf("SaveActivities() failed: %v", err)
	}
	// Not a watched document.
	if err := st.SaveMeta(store.NewMeta()); err != nil {
		t.Fatalf("SaveMeta() failed: %v", err)
	}

	select {
	case got := <-batches:
		want := []string{store.ActivitiesFile, store.DashboardFile}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("batch = %v, want %v", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change batch")
	}

	select {
	case extra := <-batches:
		t.Errorf("unexpected second batch %v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTakeSettled_WaitsForQuiet(t *testing.T) {
	d, err := NewWithConfig(newFakeSyncer(), t.TempDir(), testConfig(0))
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	defer d.Stop()

	now := time.Now()
	d.changeQueue[store.AnalyseFile] = now.Add(-time.Second)
	d.changeQueue[store.DashboardFile] = now

	if got := d.takeSettled(now); got != nil {
		t.Errorf("takeSettled() = %v while a document is still changing", got)
	}
	got := d.takeSettled(now.Add(time.Second))
	want := []string{store.AnalyseFile, store.DashboardFile}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("takeSettled() = %v, want %v", got, want)
	}
	if len(d.changeQueue) != 0 {
		t.Errorf("queue not drained: %v", d.changeQueue)
	}
}

func TestDaemon_StopIsIdempotent(t *testing.T) {
	d, err := NewWithConfig(newFakeSyncer(), filepath.Join(t.TempDir(), "data"), testConfig(0))
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	waitRunning(t, d)

	if _, err := os.Stat(d.dataDir); err != nil {
		t.Errorf("data directory not created: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}
