// Package logging builds the component loggers used across trainsync.
//
// Loggers are plain *log.Logger values with a bracketed component prefix.
// When a log file is configured, output goes to stderr and to a size-rotated
// file.
package logging

import (
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu   sync.Mutex
	sink io.Writer = os.Stderr
	file *lumberjack.Logger
)

// Setup directs all subsequently created loggers to stderr and, if path is
// non-empty, to a rotating file at path.
func Setup(path string) {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		_ = file.Close()
		file = nil
	}
	if path == "" {
		sink = os.Stderr
		return
	}
	file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	sink = io.MultiWriter(os.Stderr, file)
}

// New returns a logger for component, e.g. New("sync") prefixes "[sync] ".
func New(component string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	return log.New(sink, "["+component+"] ", log.LstdFlags)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// Close flushes and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	sink = os.Stderr
	return err
}
