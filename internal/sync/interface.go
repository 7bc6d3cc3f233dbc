package sync

import (
	"context"

	"github.com/nametoa/ai-sport-training/internal/coros"
	"github.com/nametoa/ai-sport-training/internal/types"
)

// Backend fetches the three remote resources.
//
// *coros.Client implements Backend. Tests substitute a scripted fake.
type Backend interface {
	// QueryActivities returns one page of activities, newest first.
	// Pages are numbered from 1.
	QueryActivities(ctx context.Context, size, page int) (*coros.ActivityPage, error)

	// QueryAnalyse returns the complete daily-metrics bundle.
	QueryAnalyse(ctx context.Context) (*types.MetricsBundle, error)

	// QueryDashboard returns the dashboard snapshot.
	QueryDashboard(ctx context.Context) (types.Snapshot, error)
}

// Observer receives progress notifications from the engine.
//
// Implementations must be safe to call from the goroutine running the sync
// and must not block.
type Observer interface {
	// PageFetched is called after each successfully fetched activity page.
	PageFetched(resource Resource)

	// ResourceDone is called once per resource per run.
	ResourceDone(runID string, result Result)
}

// Observers fans notifications out to several observers.
type Observers []Observer

// PageFetched implements Observer.
func (o Observers) PageFetched(resource Resource) {
	for _, obs := range o {
		if obs != nil {
			obs.PageFetched(resource)
		}
	}
}

// ResourceDone implements Observer.
func (o Observers) ResourceDone(runID string, result Result) {
	for _, obs := range o {
		if obs != nil {
			obs.ResourceDone(runID, result)
		}
	}
}

type nopObserver struct{}

func (nopObserver) PageFetched(Resource)        {}
func (nopObserver) ResourceDone(string, Result) {}
