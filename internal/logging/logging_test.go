package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetup_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trainsync.log")
	Setup(path)
	t.Cleanup(func() { _ = Close() })

	New("sync").Printf("added %d records", 3)

	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(data), "[sync] ") || !strings.Contains(string(data), "added 3 records") {
		t.Errorf("log file content = %q", data)
	}
}

func TestSetup_EmptyPath(t *testing.T) {
	Setup("")
	if file != nil {
		t.Error("expected no log file")
	}
	if New("x").Prefix() != "[x] " {
		t.Errorf("prefix = %q", New("x").Prefix())
	}
}
