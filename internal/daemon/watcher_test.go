package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nametoa/ai-sport-training/internal/store"
)

func startWatcher(t *testing.T, dir string) *FileWatcher {
	t.Helper()
	fw, err := NewFileWatcher(store.ActivitiesFile, store.AnalyseFile)
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	t.Cleanup(func() { _ = fw.Stop() })
	if err := fw.Start(dir); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return fw
}

// waitEvent returns the first event for name, skipping others.
func waitEvent(t *testing.T, fw *FileWatcher, name string) FileEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-fw.Events():
			if ev.Name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event on %s", name)
		}
	}
}

func TestNewFileWatcher_RequiresNames(t *testing.T) {
	if _, err := NewFileWatcher(); err == nil {
		t.Error("NewFileWatcher() with no names succeeded, want error")
	}
}

func TestFileWatcher_StartStop(t *testing.T) {
	fw, err := NewFileWatcher(store.ActivitiesFile)
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("newly created watcher should not be running")
	}
	if err := fw.Start(t.TempDir()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !fw.IsRunning() {
		t.Error("watcher should be running after Start()")
	}
	if err := fw.Start(t.TempDir()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("watcher should not be running after Stop()")
	}
	if _, ok := <-fw.Events(); ok {
		t.Error("Events() should be closed after Stop()")
	}
}

func TestFileWatcher_MissingDirectory(t *testing.T) {
	fw, err := NewFileWatcher(store.ActivitiesFile)
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()
	if err := fw.Start(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Start() on a missing directory succeeded, want error")
	}
}

func TestFileWatcher_AtomicWriteReportsCreate(t *testing.T) {
	dir := t.TempDir()
	fw := startWatcher(t, dir)

	if err := store.New(dir).SaveActivities(nil); err != nil {
		t.Fatalf("SaveActivities() failed: %v", err)
	}
	ev := waitEvent(t, fw, store.ActivitiesFile)
	if ev.Op != OpCreate {
		t.Errorf("Op = %s, want create", ev.Op)
	}
}

func TestFileWatcher_ModifyAndDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, store.AnalyseFile)
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	fw := startWatcher(t, dir)

	if err := os.WriteFile(path, []byte(`{"dayList":[]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if ev := waitEvent(t, fw, store.AnalyseFile); ev.Op != OpModify {
		t.Errorf("Op = %s, want modify", ev.Op)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	for {
		ev := waitEvent(t, fw, store.AnalyseFile)
		if ev.Op == OpDelete {
			break
		}
	}
}

func TestClassify_Filters(t *testing.T) {
	dir := t.TempDir()
	fw := startWatcher(t, dir)

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
		op    EventOp
	}{
		{"watched create", fsnotify.Event{Name: filepath.Join(dir, store.ActivitiesFile), Op: fsnotify.Create}, true, OpCreate},
		{"watched rename", fsnotify.Event{Name: filepath.Join(dir, store.AnalyseFile), Op: fsnotify.Rename}, true, OpDelete},
		{"temp file", fsnotify.Event{Name: filepath.Join(dir, store.ActivitiesFile+".tmp"), Op: fsnotify.Create}, false, ""},
		{"unwatched document", fsnotify.Event{Name: filepath.Join(dir, store.MetaFile), Op: fsnotify.Write}, false, ""},
		{"other directory", fsnotify.Event{Name: filepath.Join(dir, "sub", store.ActivitiesFile), Op: fsnotify.Write}, false, ""},
		{"chmod", fsnotify.Event{Name: filepath.Join(dir, store.ActivitiesFile), Op: fsnotify.Chmod}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := fw.classify(tt.event)
			if ok != tt.want {
				t.Fatalf("classify() ok = %v, want %v", ok, tt.want)
			}
			if ok && ev.Op != tt.op {
				t.Errorf("Op = %s, want %s", ev.Op, tt.op)
			}
		})
	}
}

func TestFileWatcher_StopTwice(t *testing.T) {
	fw := startWatcher(t, t.TempDir())
	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := fw.Stop(); err != nil {
		t.Errorf("second Stop() = %v, want nil", err)
	}
	if err := fw.Start(t.TempDir()); err == nil {
		t.Error("Start() after Stop() should fail")
	}
}
