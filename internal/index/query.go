package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nametoa/ai-sport-training/internal/types"
)

// Counts holds row counts of the index tables.
type Counts struct {
	Activities int `json:"activities"`
	Days       int `json:"days"`
}

// Counts returns the number of indexed activities and days.
func (idx *Index) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := idx.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM activities").Scan(&c.Activities); err != nil {
		return c, fmt.Errorf("failed to count activities: %w", err)
	}
	if err := idx.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM days").Scan(&c.Days); err != nil {
		return c, fmt.Errorf("failed to count days: %w", err)
	}
	return c, nil
}

// ActivityRow is one indexed activity.
type ActivityRow struct {
	LabelID      string  `json:"labelId"`
	Name         string  `json:"name"`
	Date         int     `json:"date"`
	StartTime    int64   `json:"startTime"`
	SportType    int     `json:"sportType"`
	Sport        string  `json:"sport"`
	Distance     float64 `json:"distance"`
	TotalTime    float64 `json:"totalTime"`
	AvgHr        float64 `json:"avgHr"`
	TrainingLoad float64 `json:"trainingLoad"`
	AdjustedPace float64 `json:"adjustedPace"`
}

// RecentActivities returns up to limit activities, newest first.
// A limit of 0 returns all of them.
func (idx *Index) RecentActivities(ctx context.Context, limit int) ([]ActivityRow, error) {
	query := `
		SELECT label_id, name, date, start_time, sport_type,
		       distance, total_time, avg_hr, training_load, adjusted_pace
		FROM activities
		ORDER BY start_time DESC, label_id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := idx.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent activities: %w", err)
	}
	defer rows.Close()

	var out []ActivityRow
	for rows.Next() {
		var r ActivityRow
		err := rows.Scan(
			&r.LabelID,
			&r.Name,
			&r.Date,
			&r.StartTime,
			&r.SportType,
			&r.Distance,
			&r.TotalTime,
			&r.AvgHr,
			&r.TrainingLoad,
			&r.AdjustedPace,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		r.Sport = types.SportName(r.SportType)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return out, nil
}

// SportTotal aggregates activities of one sport type.
type SportTotal struct {
	SportType    int     `json:"sportType"`
	Sport        string  `json:"sport"`
	Count        int     `json:"count"`
	Distance     float64 `json:"distance"`
	Duration     float64 `json:"duration"`
	TrainingLoad float64 `json:"trainingLoad"`
}

// SportTotals returns per-sport totals, most frequent sport first.
func (idx *Index) SportTotals(ctx context.Context) ([]SportTotal, error) {
	rows, err := idx.conn.QueryContext(ctx, `
		SELECT sport_type, COUNT(*), SUM(distance), SUM(total_time), SUM(training_load)
		FROM activities
		GROUP BY sport_type
		ORDER BY COUNT(*) DESC, sport_type ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sport totals: %w", err)
	}
	defer rows.Close()

	var out []SportTotal
	for rows.Next() {
		var s SportTotal
		if err := rows.Scan(&s.SportType, &s.Count, &s.Distance, &s.Duration, &s.TrainingLoad); err != nil {
			return nil, fmt.Errorf("failed to scan sport total: %w", err)
		}
		s.Sport = types.SportName(s.SportType)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sport totals: %w", err)
	}
	return out, nil
}

// WeekVolume aggregates the activities of one Monday-based week.
type WeekVolume struct {
	WeekStart    string  `json:"weekStart"` // YYYY-MM-DD, a Monday
	Count        int     `json:"count"`
	Distance     float64 `json:"distance"`
	Duration     float64 `json:"duration"`
	TrainingLoad float64 `json:"trainingLoad"`
}

// WeeklyVolume returns the most recent weeks that have activities, newest
// first. A weeks value of 0 returns every week.
func (idx *Index) WeeklyVolume(ctx context.Context, weeks int) ([]WeekVolume, error) {
	query := `
		SELECT date(day, 'weekday 0', '-6 days') AS week_start,
		       COUNT(*), SUM(distance), SUM(total_time), SUM(training_load)
		FROM activities
		WHERE day != ''
		GROUP BY week_start
		ORDER BY week_start DESC
	`
	var args []interface{}
	if weeks > 0 {
		query += " LIMIT ?"
		args = append(args, weeks)
	}

	rows, err := idx.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly volume: %w", err)
	}
	defer rows.Close()

	var out []WeekVolume
	for rows.Next() {
		var w WeekVolume
		if err := rows.Scan(&w.WeekStart, &w.Count, &w.Distance, &w.Duration, &w.TrainingLoad); err != nil {
			return nil, fmt.Errorf("failed to scan week: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weeks: %w", err)
	}
	return out, nil
}

// Reading is the most recent non-zero value of one daily metric.
type Reading struct {
	Value float64 `json:"value"`
	Day   int     `json:"day"`
}

// Vitals holds the latest non-zero reading of each tracked metric. A nil
// field means the metric was never recorded.
type Vitals struct {
	Rhr          *Reading `json:"rhr,omitempty"`
	Hrv          *Reading `json:"hrv,omitempty"`
	HrvBase      *Reading `json:"hrvBase,omitempty"`
	Vo2max       *Reading `json:"vo2max,omitempty"`
	StaminaLevel *Reading `json:"staminaLevel,omitempty"`
	TiredRateNew *Reading `json:"tiredRateNew,omitempty"`
	Lthr         *Reading `json:"lthr,omitempty"`
	Ltsp         *Reading `json:"ltsp,omitempty"`
}

// LatestVitals returns the latest non-zero reading of each metric. Days on
// which the watch recorded nothing for a metric are skipped for it.
func (idx *Index) LatestVitals(ctx context.Context) (Vitals, error) {
	var v Vitals
	columns := []struct {
		name string
		dst  **Reading
	}{
		{"rhr", &v.Rhr},
		{"avg_sleep_hrv", &v.Hrv},
		{"sleep_hrv_base", &v.HrvBase},
		{"vo2max", &v.Vo2max},
		{"stamina_level", &v.StaminaLevel},
		{"tired_rate_new", &v.TiredRateNew},
		{"lthr", &v.Lthr},
		{"ltsp", &v.Ltsp},
	}
	for _, c := range columns {
		var r Reading
		err := idx.conn.QueryRowContext(ctx,
			"SELECT "+c.name+", happen_day FROM days WHERE "+c.name+" > 0 ORDER BY happen_day DESC LIMIT 1",
		).Scan(&r.Value, &r.Day)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return v, fmt.Errorf("failed to query latest %s: %w", c.name, err)
		}
		*c.dst = &r
	}
	return v, nil
}
