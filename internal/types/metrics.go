package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// DailyMetric is one calendar day's physiological summary.
type DailyMetric struct {
	HappenDay    int     `json:"happenDay"` // YYYYMMDD
	Rhr          float64 `json:"rhr"`
	TestRhr      float64 `json:"testRhr"`
	AvgSleepHrv  float64 `json:"avgSleepHrv"`
	SleepHrvBase float64 `json:"sleepHrvBase"`
	Vo2max       float64 `json:"vo2max"`
	StaminaLevel float64 `json:"staminaLevel"`
	TrainingLoad float64 `json:"trainingLoad"`
	TiredRateNew float64 `json:"tiredRateNew"`
	Lthr         float64 `json:"lthr"`
	Ltsp         float64 `json:"ltsp"`
	T7d          float64 `json:"t7d"`
	T28d         float64 `json:"t28d"`

	raw map[string]json.RawMessage
}

// UnmarshalJSON decodes the typed view and keeps the raw object.
// Vendor fields that are null decode as zero.
func (d *DailyMetric) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid daily metric: %w", err)
	}
	out := DailyMetric{raw: raw}
	fields := map[string]*float64{
		"rhr":          &out.Rhr,
		"testRhr":      &out.TestRhr,
		"avgSleepHrv":  &out.AvgSleepHrv,
		"sleepHrvBase": &out.SleepHrvBase,
		"vo2max":       &out.Vo2max,
		"staminaLevel": &out.StaminaLevel,
		"trainingLoad": &out.TrainingLoad,
		"tiredRateNew": &out.TiredRateNew,
		"lthr":         &out.Lthr,
		"ltsp":         &out.Ltsp,
		"t7d":          &out.T7d,
		"t28d":         &out.T28d,
	}
	for name, dst := range fields {
		v, ok := raw[name]
		if !ok {
			continue
		}
		n, err := decodeNumber(v)
		if err != nil {
			return fmt.Errorf("invalid daily metric field %s: %w", name, err)
		}
		*dst = n
	}
	if v, ok := raw["happenDay"]; ok {
		n, err := decodeNumber(v)
		if err != nil {
			return fmt.Errorf("invalid daily metric field happenDay: %w", err)
		}
		out.HappenDay = int(n)
	}
	*d = out
	return nil
}

// MarshalJSON emits the raw vendor object when one is present.
func (d DailyMetric) MarshalJSON() ([]byte, error) {
	if d.raw != nil {
		return marshal(d.raw)
	}
	type plain DailyMetric
	return marshal(plain(d))
}

// Raw returns the value of a vendor field by name, or nil.
func (d *DailyMetric) Raw(field string) json.RawMessage {
	return d.raw[field]
}

// decodeNumber accepts a JSON number, a numeric string, or null.
func decodeNumber(v json.RawMessage) (float64, error) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return 0, nil
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, err
		}
		if s == "" {
			return 0, nil
		}
		v = []byte(s)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, err
	}
	return n.Float64()
}

// SortDays orders days by ascending happenDay.
func SortDays(days []DailyMetric) {
	sort.SliceStable(days, func(i, j int) bool {
		return days[i].HappenDay < days[j].HappenDay
	})
}

// WeekSummary is the typed view of one weekList rollup entry.
type WeekSummary struct {
	FirstDayOfWeek int     `json:"firstDayOfWeek"`
	LastDayInWeek  int     `json:"lastDayInWeek"`
	Distance       float64 `json:"distance"`
	Duration       float64 `json:"duration"`
	TrainingLoad   float64 `json:"trainingLoad"`
	Count          int     `json:"count"`
}

// MetricsBundle is the daily-metrics document: the day-keyed list plus
// vendor rollups (weekList, summaryInfo, ...) kept as opaque values.
type MetricsBundle struct {
	DayList []DailyMetric
	Rollups map[string]json.RawMessage

	// Shape of dayList as decoded, so an empty list is written back the
	// way it was received: absent, null or [].
	hasDayList  bool
	nullDayList bool
}

const dayListKey = "dayList"

// UnmarshalJSON splits the object into dayList and rollups.
func (b *MetricsBundle) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid metrics bundle: %w", err)
	}
	out := MetricsBundle{Rollups: make(map[string]json.RawMessage, len(obj))}
	for k, v := range obj {
		if k == dayListKey {
			out.hasDayList = true
			if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				out.nullDayList = true
				continue
			}
			if err := json.Unmarshal(v, &out.DayList); err != nil {
				return fmt.Errorf("invalid dayList: %w", err)
			}
			continue
		}
		out.Rollups[k] = v
	}
	*b = out
	return nil
}

// MarshalJSON emits the rollups and dayList as one object. An empty
// dayList keeps the form it was decoded with; a bundle that never carried
// one gets none.
func (b MetricsBundle) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(b.Rollups)+1)
	for k, v := range b.Rollups {
		obj[k] = v
	}
	switch {
	case len(b.DayList) > 0:
		obj[dayListKey] = b.DayList
	case b.nullDayList:
		obj[dayListKey] = nil
	case b.hasDayList:
		obj[dayListKey] = []DailyMetric{}
	}
	return marshal(obj)
}

// Weeks decodes the weekList rollup. A missing rollup yields nil.
func (b *MetricsBundle) Weeks() ([]WeekSummary, error) {
	v, ok := b.Rollups["weekList"]
	if !ok {
		return nil, nil
	}
	var weeks []WeekSummary
	if err := json.Unmarshal(v, &weeks); err != nil {
		return nil, fmt.Errorf("invalid weekList: %w", err)
	}
	return weeks, nil
}

// LatestDay returns the largest happenDay in the bundle, or 0.
func (b *MetricsBundle) LatestDay() int {
	latest := 0
	for _, d := range b.DayList {
		if d.HappenDay > latest {
			latest = d.HappenDay
		}
	}
	return latest
}

// LatestWith returns the most recent day for which pick reports a non-zero value.
func (b *MetricsBundle) LatestWith(pick func(DailyMetric) float64) (DailyMetric, bool) {
	var best DailyMetric
	found := false
	for _, d := range b.DayList {
		if pick(d) == 0 {
			continue
		}
		if !found || d.HappenDay > best.HappenDay {
			best = d
			found = true
		}
	}
	return best, found
}
