// Package store reads and writes the synchronized JSON documents.
//
// The data directory holds four documents:
//
//	activities.json   array of activities, newest first
//	analyse.json      daily-metrics bundle (dayList plus rollups)
//	dashboard.json    latest dashboard snapshot
//	fetch_meta.json   sync metadata
//
// Writes go through a temp file and a rename, so a concurrent reader sees
// either the previous or the new document, never a partial one.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nametoa/ai-sport-training/internal/types"
)

// Document file names.
const (
	ActivitiesFile = "activities.json"
	AnalyseFile    = "analyse.json"
	DashboardFile  = "dashboard.json"
	MetaFile       = "fetch_meta.json"
)

// ErrNotFound is returned by loaders when the document does not exist yet.
var ErrNotFound = errors.New("document not found")

// Store is a data directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute-or-relative path of a document.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// ModTime returns the modification time of a document, or the zero time
// when it does not exist.
func (s *Store) ModTime(name string) time.Time {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// LoadActivities reads the activity collection.
func (s *Store) LoadActivities() ([]types.Activity, error) {
	var acts []types.Activity
	if err := s.readJSON(ActivitiesFile, &acts); err != nil {
		return nil, err
	}
	return acts, nil
}

// SaveActivities replaces the activity collection.
func (s *Store) SaveActivities(acts []types.Activity) error {
	if acts == nil {
		acts = []types.Activity{}
	}
	return s.writeJSON(ActivitiesFile, acts)
}

// LoadMetrics reads the daily-metrics bundle.
func (s *Store) LoadMetrics() (*types.MetricsBundle, error) {
	var b types.MetricsBundle
	if err := s.readJSON(AnalyseFile, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveMetrics replaces the daily-metrics bundle.
func (s *Store) SaveMetrics(b *types.MetricsBundle) error {
	return s.writeJSON(AnalyseFile, b)
}

// LoadDashboard reads the dashboard snapshot.
func (s *Store) LoadDashboard() (types.Snapshot, error) {
	var snap types.Snapshot
	if err := s.readJSON(DashboardFile, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// SaveDashboard replaces the dashboard snapshot.
func (s *Store) SaveDashboard(snap types.Snapshot) error {
	return s.writeJSON(DashboardFile, snap)
}

// LoadMeta reads the sync metadata. A missing file yields an empty record.
func (s *Store) LoadMeta() (*Meta, error) {
	m := NewMeta()
	if err := s.readJSON(MetaFile, m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return NewMeta(), nil
		}
		return nil, err
	}
	if m.KnownLabelIDs == nil {
		m.KnownLabelIDs = []types.LabelID{}
	}
	return m, nil
}

// SaveMeta replaces the sync metadata.
func (s *Store) SaveMeta(m *Meta) error {
	return s.writeJSON(MetaFile, m)
}

// readJSON decodes a document. It wraps ErrNotFound when the file is absent.
func (s *Store) readJSON(name string, v any) error {
	path := s.Path(name)
	// #nosec G304 - path is confined to the data directory
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// writeJSON encodes v with two-space indentation and no HTML escaping,
// then atomically replaces the document.
func (s *Store) writeJSON(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := s.Path(name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
