// Package index maintains a SQLite query index over the synced documents.
//
// The JSON documents in the data directory stay the source of truth. The
// index is derived from them and can be dropped and rebuilt at any time; it
// exists so the dashboard, status command, and knowledge export can answer
// aggregate questions without decoding every activity.
//
// Architecture:
//   - Database file: data/index.db
//   - WAL mode: readers keep working while a rebuild commits
//   - Schema: activities, days, index_meta tables
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/nametoa/ai-sport-training/internal/store"
	"github.com/nametoa/ai-sport-training/internal/types"
)

// FileName is the index database name inside the data directory.
const FileName = "index.db"

// Index wraps the SQLite connection.
type Index struct {
	conn *sql.DB
	path string
}

// Open creates or opens the index database at path.
//
// The caller MUST call Close when done.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping index: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	idx := &Index{conn: conn, path: path}

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}
	return idx, nil
}

// Path returns the database file path.
func (idx *Index) Path() string {
	return idx.path
}

// Close checkpoints the WAL and closes the connection.
func (idx *Index) Close() error {
	if idx.conn == nil {
		return nil
	}
	if _, err := idx.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := idx.conn.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	idx.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Safe to call repeatedly.
func (idx *Index) InitSchema() error {
	return idx.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the tables with context support.
func (idx *Index) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS activities (
		label_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		date INTEGER NOT NULL,
		day TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		sport_type INTEGER NOT NULL,
		distance REAL NOT NULL DEFAULT 0,
		total_time REAL NOT NULL DEFAULT 0,
		avg_hr REAL NOT NULL DEFAULT 0,
		training_load REAL NOT NULL DEFAULT 0,
		adjusted_pace REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS days (
		happen_day INTEGER PRIMARY KEY,
		rhr REAL NOT NULL DEFAULT 0,
		test_rhr REAL NOT NULL DEFAULT 0,
		avg_sleep_hrv REAL NOT NULL DEFAULT 0,
		sleep_hrv_base REAL NOT NULL DEFAULT 0,
		vo2max REAL NOT NULL DEFAULT 0,
		stamina_level REAL NOT NULL DEFAULT 0,
		training_load REAL NOT NULL DEFAULT 0,
		tired_rate_new REAL NOT NULL DEFAULT 0,
		lthr REAL NOT NULL DEFAULT 0,
		ltsp REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_start ON activities(start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_activities_sport ON activities(sport_type);
	CREATE INDEX IF NOT EXISTS idx_activities_day ON activities(day);
	`
	if _, err := idx.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Rebuild replaces the indexed rows with acts and bundle's days.
func (idx *Index) Rebuild(acts []types.Activity, bundle *types.MetricsBundle) error {
	return idx.RebuildContext(context.Background(), acts, bundle)
}

// RebuildContext replaces the indexed rows in a single transaction, so
// readers see either the previous or the new contents. A nil bundle clears
// the days table.
func (idx *Index) RebuildContext(ctx context.Context, acts []types.Activity, bundle *types.MetricsBundle) error {
	tx, err := idx.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"activities", "days"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	actStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO activities (
		label_id, name, date, day, start_time, sport_type,
		distance, total_time, avg_hr, training_load, adjusted_pace
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(label_id) DO UPDATE SET
		name = excluded.name,
		date = excluded.date,
		day = excluded.day,
		start_time = excluded.start_time,
		sport_type = excluded.sport_type,
		distance = excluded.distance,
		total_time = excluded.total_time,
		avg_hr = excluded.avg_hr,
		training_load = excluded.training_load,
		adjusted_pace = excluded.adjusted_pace
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare activity insert: %w", err)
	}
	defer actStmt.Close()

	for _, a := range acts {
		if a.LabelID == "" {
			continue
		}
		date := activityDate(a)
		_, err := actStmt.ExecContext(ctx,
			a.LabelID.String(),
			a.Name,
			date,
			isoDay(date),
			a.StartTime,
			a.SportType,
			a.Distance,
			a.TotalTime,
			a.AvgHr,
			a.TrainingLoad,
			a.AdjustedPace,
		)
		if err != nil {
			return fmt.Errorf("failed to index activity %s: %w", a.LabelID, err)
		}
	}

	if bundle != nil {
		dayStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO days (
			happen_day, rhr, test_rhr, avg_sleep_hrv, sleep_hrv_base, vo2max,
			stamina_level, training_load, tired_rate_new, lthr, ltsp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(happen_day) DO UPDATE SET
			rhr = excluded.rhr,
			test_rhr = excluded.test_rhr,
			avg_sleep_hrv = excluded.avg_sleep_hrv,
			sleep_hrv_base = excluded.sleep_hrv_base,
			vo2max = excluded.vo2max,
			stamina_level = excluded.stamina_level,
			training_load = excluded.training_load,
			tired_rate_new = excluded.tired_rate_new,
			lthr = excluded.lthr,
			ltsp = excluded.ltsp
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare day insert: %w", err)
		}
		defer dayStmt.Close()

		for _, d := range bundle.DayList {
			if d.HappenDay == 0 {
				continue
			}
			_, err := dayStmt.ExecContext(ctx,
				d.HappenDay,
				d.Rhr,
				d.TestRhr,
				d.AvgSleepHrv,
				d.SleepHrvBase,
				d.Vo2max,
				d.StaminaLevel,
				d.TrainingLoad,
				d.TiredRateNew,
				d.Lthr,
				d.Ltsp,
			)
			if err != nil {
				return fmt.Errorf("failed to index day %d: %w", d.HappenDay, err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO index_meta (key, value) VALUES ('rebuilt_at', ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record rebuild time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rebuild: %w", err)
	}
	return nil
}

// RebuiltAt returns when the index was last rebuilt, or the zero time if it
// never was.
func (idx *Index) RebuiltAt(ctx context.Context) (time.Time, error) {
	var value string
	err := idx.conn.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'rebuilt_at'`).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read rebuild time: %w", err)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid rebuild time %q: %w", value, err)
	}
	return t, nil
}

// activityDate returns the YYYYMMDD date of a, falling back to its start
// time in UTC when the vendor left date empty.
func activityDate(a types.Activity) int {
	if a.Date > 0 {
		return a.Date
	}
	if a.StartTime <= 0 {
		return 0
	}
	t := time.Unix(a.StartTime, 0).UTC()
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// isoDay converts a YYYYMMDD integer to YYYY-MM-DD.
func isoDay(date int) string {
	if date <= 0 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", date/10000, date/100%100, date%100)
}

// RebuildFromStore rebuilds the index from the documents in st. Missing
// documents index as empty.
func (idx *Index) RebuildFromStore(ctx context.Context, st *store.Store) error {
	acts, err := st.LoadActivities()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load activities: %w", err)
	}
	bundle, err := st.LoadMetrics()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load daily metrics: %w", err)
	}
	return idx.RebuildContext(ctx, acts, bundle)
}

// OpenStore opens the index that lives in st's data directory and makes
// sure its schema exists.
func OpenStore(st *store.Store) (*Index, error) {
	idx, err := Open(st.Path(FileName))
	if err != nil {
		return nil, err
	}
	if err := idx.InitSchema(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}
