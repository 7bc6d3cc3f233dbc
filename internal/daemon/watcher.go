package daemon

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp is the kind of change made to a document.
type EventOp string

const (
	// OpCreate: written through a rename into place, or created.
	OpCreate EventOp = "create"
	// OpModify: written in place.
	OpModify EventOp = "modify"
	// OpDelete: removed or renamed away.
	OpDelete EventOp = "delete"
)

// FileEvent is a change to one watched document.
type FileEvent struct {
	Path string
	// Name is the document's base name, e.g. "activities.json".
	Name string
	Op   EventOp
}

// FileWatcher reports changes to a fixed set of documents in one data
// directory. The store writes documents through a temporary file and a
// rename, which fsnotify reports as a Create of the final name; the
// temporary files are not in the set and are dropped.
type FileWatcher struct {
	fs    *fsnotify.Watcher
	docs  map[string]bool
	dir   string
	out   chan FileEvent
	errs  chan error
	quit  chan struct{}
	loops sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewFileWatcher creates a watcher for the documents called names. Nothing
// is reported until Start.
func NewFileWatcher(names ...string) (*FileWatcher, error) {
	if len(names) == 0 {
		return nil, errors.New("no documents to watch")
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	docs := make(map[string]bool, len(names))
	for _, n := range names {
		docs[n] = true
	}
	return &FileWatcher{
		fs:   fs,
		docs: docs,
		out:  make(chan FileEvent, 64),
		errs: make(chan error, 8),
		quit: make(chan struct{}),
	}, nil
}

// Start begins watching dir, which must exist.
func (fw *FileWatcher) Start(dir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.started || fw.stopped {
		return errors.New("watcher already started")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory %s: %w", dir, err)
	}
	if err := fw.fs.Add(abs); err != nil {
		return fmt.Errorf("failed to watch data directory %s: %w", dir, err)
	}
	fw.dir = abs
	fw.started = true

	fw.loops.Add(1)
	go fw.forward()
	return nil
}

// Stop ends watching, waits for the forwarding loop and closes Events and
// Errors. It is safe on a watcher that never started.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return nil
	}
	started := fw.started
	fw.stopped = true
	fw.started = false
	fw.mu.Unlock()

	close(fw.quit)
	err := fw.fs.Close()
	if started {
		fw.loops.Wait()
	}
	close(fw.out)
	close(fw.errs)
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Events returns the document changes. It is closed by Stop.
func (fw *FileWatcher) Events() <-chan FileEvent { return fw.out }

// Errors returns errors from the underlying watcher. It is closed by Stop.
func (fw *FileWatcher) Errors() <-chan error { return fw.errs }

// IsRunning reports whether the watcher is between Start and Stop.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.started
}

// forward relays matching fsnotify events until Stop.
func (fw *FileWatcher) forward() {
	defer fw.loops.Done()
	for {
		select {
		case <-fw.quit:
			return
		case ev, ok := <-fw.fs.Events:
			if !ok {
				return
			}
			fe, match := fw.classify(ev)
			if !match {
				continue
			}
			select {
			case fw.out <- fe:
			case <-fw.quit:
				return
			}
		case err, ok := <-fw.fs.Errors:
			if !ok {
				return
			}
			select {
			case fw.errs <- err:
			case <-fw.quit:
				return
			}
		}
	}
}

// classify turns an fsnotify event into a FileEvent. Events for other
// files, files in subdirectories and chmod-only events do not match.
func (fw *FileWatcher) classify(ev fsnotify.Event) (FileEvent, bool) {
	name := filepath.Base(ev.Name)
	if !fw.docs[name] {
		return FileEvent{}, false
	}
	if abs, err := filepath.Abs(ev.Name); err != nil || filepath.Dir(abs) != fw.dir {
		return FileEvent{}, false
	}

	fe := FileEvent{Path: ev.Name, Name: name}
	switch {
	case ev.Has(fsnotify.Create):
		fe.Op = OpCreate
	case ev.Has(fsnotify.Write):
		fe.Op = OpModify
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		fe.Op = OpDelete
	default:
		return FileEvent{}, false
	}
	return fe, true
}
