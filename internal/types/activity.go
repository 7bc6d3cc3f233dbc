// Package types provides data structures for the synchronized training documents.
//
// Every record keeps the raw vendor object it was decoded from. Typed fields are a
// read view over that object; writing a record back out emits the raw object, so
// vendor attributes this package does not know about survive any number of
// load/save cycles unchanged.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// LabelID is the vendor-assigned identity of an activity.
// The vendor emits it either as a JSON string or as a JSON number; both decode
// to the same textual form so that set membership is stable across payloads.
type LabelID string

// UnmarshalJSON accepts a JSON string or a JSON number.
func (id *LabelID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid labelId: %w", err)
		}
		*id = LabelID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid labelId %s: %w", string(data), err)
	}
	*id = LabelID(n.String())
	return nil
}

// String returns the textual form of the ID.
func (id LabelID) String() string {
	return string(id)
}

// Sport type codes reported by the vendor.
const (
	SportRun       = 100
	SportTrailRun  = 102
	SportBike      = 200
	SportSwim      = 300
	SportStrength  = 402
	SportStrength2 = 401
	SportWalk      = 10100
	SportYoga      = 10300
)

var sportNames = map[int]string{
	SportRun:       "Run",
	SportTrailRun:  "Trail Run",
	SportBike:      "Bike",
	SportSwim:      "Swim",
	SportStrength:  "Strength",
	SportStrength2: "Strength",
	SportWalk:      "Walk",
	SportYoga:      "Yoga",
}

// SportName returns a display name for a sport type code.
func SportName(sportType int) string {
	if name, ok := sportNames[sportType]; ok {
		return name
	}
	return "Other(" + strconv.Itoa(sportType) + ")"
}

// IsRunning reports whether the sport type is a running discipline.
func IsRunning(sportType int) bool {
	return sportType == SportRun || sportType == SportTrailRun
}

// Activity is one recorded exercise session.
type Activity struct {
	LabelID      LabelID `json:"labelId"`
	Name         string  `json:"name,omitempty"`
	Date         int     `json:"date"`      // YYYYMMDD
	StartTime    int64   `json:"startTime"` // epoch seconds
	SportType    int     `json:"sportType"`
	Distance     float64 `json:"distance"`  // meters
	TotalTime    float64 `json:"totalTime"` // seconds
	AvgHr        float64 `json:"avgHr"`
	TrainingLoad float64 `json:"trainingLoad"`
	AdjustedPace float64 `json:"adjustedPace"` // seconds per km

	raw map[string]json.RawMessage
}

// UnmarshalJSON decodes the typed view and keeps the raw object.
func (a *Activity) UnmarshalJSON(data []byte) error {
	type plain Activity
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid activity: %w", err)
	}
	if err := json.Unmarshal(data, &p.raw); err != nil {
		return fmt.Errorf("invalid activity: %w", err)
	}
	*a = Activity(p)
	return nil
}

// MarshalJSON emits the raw vendor object when one is present.
func (a Activity) MarshalJSON() ([]byte, error) {
	if a.raw != nil {
		return marshal(a.raw)
	}
	type plain Activity
	return marshal(plain(a))
}

// Validate checks that the activity carries an identity.
func (a *Activity) Validate() error {
	if a.LabelID == "" {
		return fmt.Errorf("labelId is required")
	}
	return nil
}

// Raw returns the value of a vendor field by name, or nil.
func (a *Activity) Raw(field string) json.RawMessage {
	return a.raw[field]
}

// DurationMinutes returns the total time in minutes.
func (a *Activity) DurationMinutes() float64 {
	return a.TotalTime / 60
}

// SortActivities orders activities by descending start time.
// The sort is stable so records sharing a start time keep their relative order.
func SortActivities(acts []Activity) {
	sort.SliceStable(acts, func(i, j int) bool {
		return acts[i].StartTime > acts[j].StartTime
	})
}

// LabelIDSet returns the set of label IDs present in acts.
func LabelIDSet(acts []Activity) map[LabelID]struct{} {
	set := make(map[LabelID]struct{}, len(acts))
	for _, a := range acts {
		set[a.LabelID] = struct{}{}
	}
	return set
}

// marshal encodes v without HTML escaping so vendor strings are written
// back exactly as received.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
