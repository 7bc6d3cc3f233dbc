package observability

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/nametoa/ai-sport-training/internal/sync"
)

// SentryConfig configures error reporting.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// sensitiveHeaders are removed from every event before it leaves the process.
var sensitiveHeaders = []string{"accesstoken", "cookie", "yfheader", "authorization", "x-api-key"}

// InitSentry initializes the Sentry client. An empty DSN disables reporting
// and is not an error.
func InitSentry(cfg SentryConfig, logger *log.Logger) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		BeforeSend:  scrubEvent,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	if logger != nil {
		logger.Printf("Sentry error reporting enabled (environment=%q)", cfg.Environment)
	}
	return true, nil
}

// scrubEvent drops credential headers from captured requests.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Request != nil && event.Request.Headers != nil {
		for name := range event.Request.Headers {
			for _, s := range sensitiveHeaders {
				if strings.EqualFold(name, s) {
					delete(event.Request.Headers, name)
				}
			}
		}
		event.Request.Cookies = ""
	}
	return event
}

// FlushSentry waits up to timeout for queued events to be delivered.
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// SentryReporter captures failed sync steps as Sentry exceptions.
type SentryReporter struct {
	capture func(err error, tags map[string]string)
}

// NewSentryReporter returns an observer that reports failures to the
// initialized Sentry hub.
func NewSentryReporter() *SentryReporter {
	return &SentryReporter{capture: captureWithTags}
}

// PageFetched implements sync.Observer.
func (r *SentryReporter) PageFetched(sync.Resource) {}

// ResourceDone implements sync.Observer.
func (r *SentryReporter) ResourceDone(runID string, res sync.Result) {
	if res.Err == nil {
		return
	}
	r.capture(res.Err, map[string]string{
		"resource": string(res.Resource),
		"run_id":   runID,
	})
}

func captureWithTags(err error, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
