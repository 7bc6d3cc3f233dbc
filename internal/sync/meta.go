package sync

import (
	"errors"
	"fmt"

	"github.com/nametoa/ai-sport-training/internal/store"
)

// updateMeta rewrites the metadata document after a run.
//
// The label ID sample and latest day are read back from the stored
// documents, so they describe what is on disk rather than what the run saw.
// last_fetch only advances when every resource succeeded.
func (e *Engine) updateMeta(report *Report) error {
	meta, err := e.store.LoadMeta()
	if err != nil {
		e.logger.Printf("WARNING: unreadable sync metadata, starting fresh: %v", err)
		meta = store.NewMeta()
	}

	finished := report.Finished
	meta.LastAttempt = &finished
	meta.RunID = report.RunID
	if len(report.Failed()) == 0 {
		meta.LastFetch = &finished
	}

	acts, err := e.store.LoadActivities()
	switch {
	case err == nil:
		meta.KnownLabelIDs = store.SampleLabelIDs(acts)
	case errors.Is(err, store.ErrNotFound):
		meta.KnownLabelIDs = store.SampleLabelIDs(nil)
	default:
		return fmt.Errorf("failed to read activities for metadata: %w", err)
	}

	metrics, err := e.store.LoadMetrics()
	switch {
	case err == nil:
		if day := metrics.LatestDay(); day > 0 {
			meta.LatestHappenDay = &day
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("failed to read daily metrics for metadata: %w", err)
	}

	if meta.Resources == nil {
		meta.Resources = make(map[string]store.ResourceStatus, len(report.Results))
	}
	for _, r := range report.Results {
		status := store.ResourceStatus{
			OK:    r.OK(),
			Added: r.Added,
			Pages: r.Pages,
			At:    finished,
		}
		if r.Err != nil {
			status.Error = r.Err.Error()
		}
		meta.Resources[string(r.Resource)] = status
	}

	if err := e.store.SaveMeta(meta); err != nil {
		return fmt.Errorf("failed to save sync metadata: %w", err)
	}
	return nil
}
