package types

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the dashboard document. It is stored exactly as the vendor
// returned it; Summary decodes the few fields consumers read.
type Snapshot json.RawMessage

// MarshalJSON emits the stored document.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return []byte(s), nil
}

// UnmarshalJSON stores a copy of data.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	*s = append((*s)[0:0], data...)
	return nil
}

// WeekRecord is one progress-against-target entry of the current week.
type WeekRecord struct {
	TotalValue  float64 `json:"totalValue"`
	TotalTarget float64 `json:"totalTarget"`
	Percentage  float64 `json:"percentage"`
}

// SnapshotSummary is the typed read view of a dashboard snapshot.
type SnapshotSummary struct {
	SummaryInfo struct {
		TrainingLoadRatio      float64 `json:"trainingLoadRatio"`
		TrainingLoadRatioState int     `json:"trainingLoadRatioState"`
		TiredRateNewState      int     `json:"tiredRateNewState"`
		ATI                    float64 `json:"ati"`
		CTI                    float64 `json:"cti"`
	} `json:"summaryInfo"`
	CurrentWeekRecord struct {
		Distance WeekRecord `json:"distanceRecord"`
		Duration WeekRecord `json:"durationRecord"`
		Load     WeekRecord `json:"tlRecord"`
	} `json:"currentWeekRecord"`
}

// Summary decodes the typed view of the snapshot. Fields of an unexpected
// shape are left zero.
func (s Snapshot) Summary() (*SnapshotSummary, error) {
	var sum SnapshotSummary
	if len(s) == 0 {
		return &sum, nil
	}
	var env struct {
		SummaryInfo       json.RawMessage `json:"summaryInfo"`
		CurrentWeekRecord json.RawMessage `json:"currentWeekRecord"`
	}
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, fmt.Errorf("invalid dashboard snapshot: %w", err)
	}
	if len(env.SummaryInfo) > 0 {
		_ = json.Unmarshal(env.SummaryInfo, &sum.SummaryInfo)
	}
	if len(env.CurrentWeekRecord) > 0 {
		_ = json.Unmarshal(env.CurrentWeekRecord, &sum.CurrentWeekRecord)
	}
	return &sum, nil
}

var tlRatioLabels = map[int]string{
	1: "Far too low",
	2: "Too low",
	3: "Maintaining",
	4: "Productive",
	5: "Overreaching",
}

var fatigueLabels = map[int]string{
	1: "Very fresh",
	2: "Fresh",
	3: "Moderate",
	4: "Tired",
	5: "Very tired",
}

// TrainingLoadRatioLabel describes a vendor load-ratio state code.
func TrainingLoadRatioLabel(state int) string {
	if l, ok := tlRatioLabels[state]; ok {
		return l
	}
	return "Unknown"
}

// FatigueLabel describes a vendor fatigue state code.
func FatigueLabel(state int) string {
	if l, ok := fatigueLabels[state]; ok {
		return l
	}
	return "Unknown"
}
