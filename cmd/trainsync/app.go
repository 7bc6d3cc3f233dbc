package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/nametoa/ai-sport-training/internal/coros"
	"github.com/nametoa/ai-sport-training/internal/index"
	"github.com/nametoa/ai-sport-training/internal/knowledge"
	"github.com/nametoa/ai-sport-training/internal/logging"
	"github.com/nametoa/ai-sport-training/internal/observability"
	"github.com/nametoa/ai-sport-training/internal/store"
	"github.com/nametoa/ai-sport-training/internal/sync"
	"github.com/nametoa/ai-sport-training/internal/types"
)

// openStore returns the document store in the configured data directory.
func openStore() *store.Store {
	return store.New(cfg.DataDir)
}

// newEngine builds a sync engine with the COROS client and the metrics and
// Sentry observers.
func newEngine(st *store.Store) (*sync.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clientCfg := cfg.Client()
	clientCfg.Logger = logging.New("coros")
	client, err := coros.NewClient(clientCfg)
	if err != nil {
		return nil, err
	}

	return sync.New(client, st, sync.Options{
		PageSize:  cfg.PageSize,
		PageDelay: cfg.PageDelay,
		Logger:    logging.New("sync"),
		Observer: sync.Observers{
			observability.NewSyncMetrics(),
			observability.NewSentryReporter(),
		},
	}), nil
}

// rebuildIndex refreshes the SQLite index from the documents.
func rebuildIndex(ctx context.Context, st *store.Store) error {
	idx, err := index.OpenStore(st)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer idx.Close()
	return idx.RebuildFromStore(ctx, st)
}

// newExporter returns the knowledge exporter for the configured
// directories. The coach prompt is looked up next to the data directory.
func newExporter(st *store.Store) *knowledge.Exporter {
	return knowledge.NewExporter(st, knowledge.Options{
		OutDir:     cfg.KnowledgeDir,
		PromptFile: filepath.Join(filepath.Dir(filepath.Clean(cfg.DataDir)), knowledge.DefaultPromptFile),
		Logger:     logging.New("knowledge"),
	})
}

// latestLTHR returns the most recent lactate threshold heart rate, or 0.
func latestLTHR(st *store.Store) (float64, error) {
	bundle, err := st.LoadMetrics()
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	day, ok := bundle.LatestWith(func(d types.DailyMetric) float64 { return d.Lthr })
	if !ok {
		return 0, nil
	}
	return day.Lthr, nil
}
