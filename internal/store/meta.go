package store

import (
	"time"

	"github.com/nametoa/ai-sport-training/internal/types"
)

// MaxKnownLabelIDs bounds the diagnostic label ID sample kept in the metadata.
const MaxKnownLabelIDs = 50

// Meta is the sync metadata document. It is diagnostic only; merges derive
// their state from the documents themselves.
type Meta struct {
	LastFetch       *time.Time      `json:"last_fetch"`
	KnownLabelIDs   []types.LabelID `json:"known_label_ids"`
	LatestHappenDay *int            `json:"latest_happen_day"`

	LastAttempt *time.Time                `json:"last_attempt,omitempty"`
	RunID       string                    `json:"run_id,omitempty"`
	Resources   map[string]ResourceStatus `json:"resources,omitempty"`
}

// ResourceStatus is the outcome of the last run for one resource.
type ResourceStatus struct {
	OK    bool      `json:"ok"`
	Added int       `json:"added"`
	Pages int       `json:"pages,omitempty"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// NewMeta returns an empty metadata record.
func NewMeta() *Meta {
	return &Meta{KnownLabelIDs: []types.LabelID{}}
}

// SampleLabelIDs returns the first MaxKnownLabelIDs label IDs of acts.
func SampleLabelIDs(acts []types.Activity) []types.LabelID {
	n := len(acts)
	if n > MaxKnownLabelIDs {
		n = MaxKnownLabelIDs
	}
	ids := make([]types.LabelID, 0, n)
	for _, a := range acts[:n] {
		ids = append(ids, a.LabelID)
	}
	return ids
}
