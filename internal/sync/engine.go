package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/nametoa/ai-sport-training/internal/store"
	"github.com/nametoa/ai-sport-training/internal/types"
)

// Options configures an Engine.
type Options struct {
	// PageSize is the number of activities requested per page (default 20).
	PageSize int
	// PageDelay is the pause between activity page requests.
	PageDelay time.Duration
	// Logger defaults to a stderr logger prefixed "[sync] ".
	Logger   *log.Logger
	Observer Observer

	// Now and NewRunID are replaced in tests.
	Now      func() time.Time
	NewRunID func() string
}

// Engine merges remote resources into the local store.
//
// Run and TryRun never overlap: a run holds the engine lock for its whole
// duration, so the periodic daemon and on-demand triggers share one writer.
type Engine struct {
	backend  Backend
	store    *store.Store
	pageSize int
	delay    time.Duration
	logger   *log.Logger
	observer Observer
	now      func() time.Time
	newRunID func() string

	mu      gosync.Mutex
	lastMu  gosync.RWMutex
	last    *Report
	hooksMu gosync.Mutex
	hooks   []func(*Report)
}

// New creates an engine over backend and st.
func New(backend Backend, st *store.Store, opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.PageDelay < 0 {
		opts.PageDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return uuid.NewString() }
	}
	return &Engine{
		backend:  backend,
		store:    st,
		pageSize: opts.PageSize,
		delay:    opts.PageDelay,
		logger:   opts.Logger,
		observer: opts.Observer,
		now:      opts.Now,
		newRunID: opts.NewRunID,
	}
}

// Store returns the store the engine writes to.
func (e *Engine) Store() *store.Store {
	return e.store
}

// OnComplete registers fn to be called after every run.
func (e *Engine) OnComplete(fn func(*Report)) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks = append(e.hooks, fn)
}

// LastReport returns the report of the most recent run, or nil.
func (e *Engine) LastReport() *Report {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	return e.last
}

// Run synchronizes activities, then daily metrics, then the dashboard, and
// finally rewrites the metadata document.
//
// A failure in one resource is recorded in its Result and does not prevent
// the others from running. Run blocks while another run is in progress.
func (e *Engine) Run(ctx context.Context) *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run(ctx)
}

// TryRun is Run without waiting: it returns false when a run is already in
// progress.
func (e *Engine) TryRun(ctx context.Context) (*Report, bool) {
	if !e.mu.TryLock() {
		return nil, false
	}
	defer e.mu.Unlock()
	return e.run(ctx), true
}

func (e *Engine) run(ctx context.Context) *Report {
	report := &Report{
		RunID:   e.newRunID(),
		Started: e.now(),
	}
	e.logger.Printf("Starting sync run %s", report.RunID)

	steps := []struct {
		resource Resource
		fn       func(context.Context) Result
	}{
		{ResourceActivities, e.SyncActivities},
		{ResourceMetrics, e.SyncMetrics},
		{ResourceDashboard, e.SyncDashboard},
	}
	for _, step := range steps {
		res := e.guard(ctx, step.resource, step.fn)
		if res.Err != nil {
			e.logger.Printf("WARNING: %s sync failed: %v", res.Resource, res.Err)
		}
		e.observer.ResourceDone(report.RunID, res)
		report.Results = append(report.Results, res)
	}

	report.Finished = e.now()
	if err := e.updateMeta(report); err != nil {
		e.logger.Printf("WARNING: failed to update sync metadata: %v", err)
		report.MetaErr = err
	}

	e.logger.Printf("Sync run %s complete: %d added, %d failed, %v",
		report.RunID, report.Added(), len(report.Failed()), report.Duration().Round(time.Millisecond))

	e.lastMu.Lock()
	e.last = report
	e.lastMu.Unlock()

	e.hooksMu.Lock()
	hooks := append([]func(*Report){}, e.hooks...)
	e.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(report)
	}
	return report
}

// guard runs one resource step, converting a panic into the step's error.
func (e *Engine) guard(ctx context.Context, resource Resource, fn func(context.Context) Result) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Resource: resource, Err: fmt.Errorf("panic during %s sync: %v", resource, r)}
		}
		res.Resource = resource
		res.Duration = time.Since(start)
	}()
	return fn(ctx)
}

// SyncActivities fetches activity pages newest-first until it reaches
// records that are already stored, then merges the new ones.
//
// Pagination stops when a page is empty, when a page holds no new record,
// when a page is only partly new, or when the last page has been read.
// Records without a labelId are skipped and reported in Result.Err. The
// document is rewritten only if a record was added or a stored duplicate
// was dropped.
func (e *Engine) SyncActivities(ctx context.Context) Result {
	res := Result{Resource: ResourceActivities}

	existing, err := e.store.LoadActivities()
	switch {
	case errors.Is(err, store.ErrNotFound):
		res.Bootstrapped = true
	case err != nil:
		res.Err = fmt.Errorf("failed to load local activities: %w", err)
		return res
	}
	known := types.LabelIDSet(existing)
	e.logger.Printf("Activities: %d existing records, %d known IDs", len(existing), len(known))

	var (
		buffered []types.Activity
		seen     = make(map[types.LabelID]struct{})
		skipped  int
		fetchErr error
	)

	for page := 1; ; page++ {
		p, err := e.backend.QueryActivities(ctx, e.pageSize, page)
		if err != nil {
			fetchErr = fmt.Errorf("failed to fetch activity page %d: %w", page, err)
			break
		}
		res.Pages++
		e.observer.PageFetched(ResourceActivities)

		if len(p.DataList) == 0 {
			e.logger.Printf("Page %d: empty, stopping", page)
			break
		}

		// Records without an identity are neither new nor known; only
		// valid records decide whether the overlap has been reached.
		validOnPage, newOnPage := 0, 0
		for _, a := range p.DataList {
			if err := a.Validate(); err != nil {
				e.logger.Printf("WARNING: skipping activity on page %d: %v", page, err)
				skipped++
				continue
			}
			validOnPage++
			if _, ok := known[a.LabelID]; ok {
				continue
			}
			if _, ok := seen[a.LabelID]; ok {
				continue
			}
			seen[a.LabelID] = struct{}{}
			buffered = append(buffered, a)
			newOnPage++
		}

		if validOnPage > 0 && newOnPage == 0 {
			e.logger.Printf("Page %d: all %d items already known, stopping", page, validOnPage)
			break
		}
		e.logger.Printf("Page %d: %d new / %d valid / %d total on page", page, newOnPage, validOnPage, len(p.DataList))
		if newOnPage < validOnPage {
			break
		}

		totalPages := p.TotalPage
		if totalPages <= 0 {
			totalPages = 1
		}
		if page >= totalPages {
			break
		}

		if err := sleep(ctx, e.delay); err != nil {
			fetchErr = fmt.Errorf("activity pagination interrupted after page %d: %w", page, err)
			break
		}
	}

	res.Added = len(buffered)
	res.Total = len(existing)
	res.Err = fetchErr
	if skipped > 0 {
		res.Err = errors.Join(fetchErr, fmt.Errorf("skipped %d activities without labelId", skipped))
	}

	// The stored list may predate deduplication; the first copy of each
	// labelId wins.
	merged := make([]types.Activity, 0, len(buffered)+len(existing))
	merged = append(merged, buffered...)
	stored := make(map[types.LabelID]struct{}, len(existing))
	dropped := 0
	for _, a := range existing {
		if a.LabelID != "" {
			if _, ok := stored[a.LabelID]; ok {
				dropped++
				continue
			}
			stored[a.LabelID] = struct{}{}
		}
		merged = append(merged, a)
	}

	if len(buffered) == 0 && dropped == 0 {
		e.logger.Printf("Activities: no new records")
		return res
	}
	if dropped > 0 {
		e.logger.Printf("Activities: dropping %d duplicate stored records", dropped)
	}
	types.SortActivities(merged)

	if err := e.store.SaveActivities(merged); err != nil {
		res.Added = 0
		res.Err = errors.Join(res.Err, fmt.Errorf("failed to save activities: %w", err))
		return res
	}
	res.Written = true
	res.Total = len(merged)
	e.logger.Printf("Activities: added %d new records (total %d)", len(buffered), len(merged))
	return res
}

// SyncMetrics fetches the daily-metrics bundle and merges it by day.
//
// Days already stored are never replaced. Every other top-level field of
// the remote bundle replaces the stored one. Without a stored bundle the
// remote one is written as is.
func (e *Engine) SyncMetrics(ctx context.Context) Result {
	res := Result{Resource: ResourceMetrics}

	remote, err := e.backend.QueryAnalyse(ctx)
	if err != nil {
		res.Err = fmt.Errorf("failed to fetch daily metrics: %w", err)
		return res
	}

	existing, err := e.store.LoadMetrics()
	if errors.Is(err, store.ErrNotFound) {
		if err := e.store.SaveMetrics(remote); err != nil {
			res.Err = fmt.Errorf("failed to save daily metrics: %w", err)
			return res
		}
		res.Bootstrapped = true
		res.Written = true
		res.Added = len(remote.DayList)
		res.Total = len(remote.DayList)
		e.logger.Printf("Analyse: initial save, %d days of data", len(remote.DayList))
		return res
	}
	if err != nil {
		res.Err = fmt.Errorf("failed to load local daily metrics: %w", err)
		return res
	}

	byDay := make(map[int]types.DailyMetric, len(existing.DayList))
	for _, d := range existing.DayList {
		byDay[d.HappenDay] = d
	}
	for _, d := range remote.DayList {
		if d.HappenDay == 0 {
			e.logger.Printf("WARNING: skipping remote day without happenDay")
			continue
		}
		if _, ok := byDay[d.HappenDay]; ok {
			continue
		}
		byDay[d.HappenDay] = d
		res.Added++
	}

	days := make([]types.DailyMetric, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, d)
	}
	types.SortDays(days)
	existing.DayList = days

	if existing.Rollups == nil {
		existing.Rollups = make(map[string]json.RawMessage, len(remote.Rollups))
	}
	for k, v := range remote.Rollups {
		existing.Rollups[k] = v
	}

	if err := e.store.SaveMetrics(existing); err != nil {
		res.Added = 0
		res.Err = fmt.Errorf("failed to save daily metrics: %w", err)
		return res
	}
	res.Written = true
	res.Total = len(days)
	e.logger.Printf("Analyse: %d new days added (total %d days)", res.Added, len(days))
	return res
}

// SyncDashboard replaces the stored dashboard snapshot.
// A failed fetch leaves the stored snapshot untouched.
func (e *Engine) SyncDashboard(ctx context.Context) Result {
	res := Result{Resource: ResourceDashboard}

	snap, err := e.backend.QueryDashboard(ctx)
	if err != nil {
		res.Err = fmt.Errorf("failed to fetch dashboard: %w", err)
		return res
	}
	if err := e.store.SaveDashboard(snap); err != nil {
		res.Err = fmt.Errorf("failed to save dashboard: %w", err)
		return res
	}
	res.Written = true
	e.logger.Printf("Dashboard: refreshed")
	return res
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
