package sync

import (
	"errors"
	"fmt"
	"time"
)

// Resource names a synchronized document kind.
type Resource string

// Resources in the order a run processes them.
const (
	ResourceActivities Resource = "activities"
	ResourceMetrics    Resource = "analyse"
	ResourceDashboard  Resource = "dashboard"
)

// Result is the outcome of synchronizing one resource.
type Result struct {
	Resource Resource
	// Added is the number of new records merged (activities, days).
	Added int
	// Total is the size of the stored collection after the step.
	Total int
	// Pages is the number of activity pages fetched.
	Pages int
	// Written reports whether the document was rewritten.
	Written bool
	// Bootstrapped reports that the document did not exist before.
	Bootstrapped bool
	Err          error
	Duration     time.Duration
}

// OK reports whether the step finished without error.
func (r Result) OK() bool {
	return r.Err == nil
}

// Report is the outcome of one run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Results  []Result
	// MetaErr is set when the metadata document could not be written.
	MetaErr error
}

// Result returns the result for a resource.
func (r *Report) Result(res Resource) (Result, bool) {
	for _, x := range r.Results {
		if x.Resource == res {
			return x, true
		}
	}
	return Result{}, false
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, x := range r.Results {
		if x.Err != nil {
			failed = append(failed, x)
		}
	}
	return failed
}

// Err joins every per-resource failure, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, x := range r.Results {
		if x.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", x.Resource, x.Err))
		}
	}
	if r.MetaErr != nil {
		errs = append(errs, fmt.Errorf("meta: %w", r.MetaErr))
	}
	return errors.Join(errs...)
}

// Added returns the total number of records merged across resources.
func (r *Report) Added() int {
	n := 0
	for _, x := range r.Results {
		n += x.Added
	}
	return n
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
