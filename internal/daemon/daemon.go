// Package daemon runs the periodic sync loop and watches the data directory.
//
// The daemon:
//  1. Runs a sync immediately, then once per Interval
//  2. Watches the synced documents for changes, whoever wrote them
//  3. Debounces bursts of changes into one batch
//  4. Hands each batch to the registered change handlers
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/nametoa/ai-sport-training/internal/store"
	trainsync "github.com/nametoa/ai-sport-training/internal/sync"
)

// Syncer runs one sync. *sync.Engine satisfies it.
type Syncer interface {
	Run(ctx context.Context) *trainsync.Report
}

// ChangeFunc handles a debounced batch of changed document names.
type ChangeFunc func(ctx context.Context, names []string)

// Config holds configuration for the daemon.
type Config struct {
	// Interval is the time between syncs. Zero disables periodic syncing;
	// the directory is still watched.
	Interval time.Duration

	// DebounceInterval is how long a document must stay quiet before its
	// change is handled. This batches the writes of one sync run together.
	DebounceInterval time.Duration

	// Files are the document names to watch in the data directory.
	Files []string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         6 * time.Hour,
		DebounceInterval: 500 * time.Millisecond,
		Files:            []string{store.ActivitiesFile, store.AnalyseFile, store.DashboardFile},
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates periodic syncs and data directory watching.
type Daemon struct {
	syncer  Syncer
	dataDir string
	config  *Config

	watcher       *FileWatcher
	changeQueue   map[string]time.Time // document name -> last event
	changeQueueMu sync.Mutex
	handlers      []ChangeFunc
	handlersMu    sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon with the default configuration.
//
// Use Start to begin syncing and watching.
func New(syncer Syncer, dataDir string) (*Daemon, error) {
	return NewWithConfig(syncer, dataDir, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration. Zero fields of
// config fall back to the defaults, except Interval.
func NewWithConfig(syncer Syncer, dataDir string, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if dataDir == "" {
		return nil, fmt.Errorf("dataDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaults.DebounceInterval
	}
	if len(config.Files) == 0 {
		config.Files = defaults.Files
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	watcher, err := NewFileWatcher(config.Files...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		syncer:      syncer,
		dataDir:     dataDir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// OnChange registers fn to receive debounced batches of changed documents.
// Handlers run sequentially on the daemon's goroutine.
func (d *Daemon) OnChange(fn ChangeFunc) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.handlers = append(d.handlers, fn)
}

// Start begins the daemon's operation.
//
// The daemon will:
//  1. Start watching the data directory
//  2. Run a sync immediately and then once per Interval
//  3. Process document changes with debouncing
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := os.MkdirAll(d.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := d.watcher.Start(d.dataDir); err != nil {
		return err
	}
	d.config.Logger.Printf("Watching: %s", d.dataDir)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()
	if d.config.Interval > 0 {
		d.wg.Add(1)
		go d.syncLoop()
	} else {
		d.config.Logger.Println("Periodic sync disabled")
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. A sync in progress is cancelled.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()
		if e := d.watcher.Stop(); e != nil {
			d.config.Logger.Printf("Error closing watcher: %v", e)
			err = e
		}
		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return err
}

// syncLoop runs a sync at start and then on every tick.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	d.runSync()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runSync()
		}
	}
}

func (d *Daemon) runSync() {
	report := d.syncer.Run(d.ctx)
	if report == nil {
		return
	}
	if err := report.Err(); err != nil {
		d.config.Logger.Printf("Sync %s finished with errors: %v", report.RunID, err)
		return
	}
	d.config.Logger.Printf("Sync %s finished: %d new records", report.RunID, report.Added())
}

// watchFileEvents queues document changes reported by the watcher.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) queueChange(name string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	d.changeQueue[name] = time.Now()
}

// processChangeQueue hands settled changes to the handlers.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if names := d.takeSettled(time.Now()); len(names) > 0 {
				d.dispatch(names)
			}
		}
	}
}

// takeSettled removes and returns, in name order, the documents whose last
// event is at least DebounceInterval old. Nothing is returned while any
// queued document is still changing, so a sync run yields one batch.
func (d *Daemon) takeSettled(now time.Time) []string {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	for _, at := range d.changeQueue {
		if now.Sub(at) < d.config.DebounceInterval {
			return nil
		}
	}
	names := make([]string, 0, len(d.changeQueue))
	for name := range d.changeQueue {
		names = append(names, name)
		delete(d.changeQueue, name)
	}
	sort.Strings(names)
	return names
}

func (d *Daemon) dispatch(names []string) {
	d.config.Logger.Printf("Processing changes: %v", names)

	d.handlersMu.Lock()
	handlers := append([]ChangeFunc(nil), d.handlers...)
	d.handlersMu.Unlock()

	for _, fn := range handlers {
		fn(d.ctx, names)
	}
}
