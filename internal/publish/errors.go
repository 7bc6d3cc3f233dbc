package publish

import "errors"

// Errors returned by publishing operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, publish.ErrNotInRepo) {
//	    // the knowledge directory is not version controlled
//	}
var (
	// ErrNotInRepo is returned when the path is not inside a git
	// repository.
	ErrNotInRepo = errors.New("not in a git repository")

	// ErrGitNotAvailable is returned when git is not installed or not
	// in PATH.
	ErrGitNotAvailable = errors.New("git binary not available")

	// ErrNoRemote is returned when a push is requested but no remote
	// is configured.
	ErrNoRemote = errors.New("no remote configured")

	// ErrDetached is returned when pushing without an explicit branch
	// while HEAD is detached.
	ErrDetached = errors.New("not on a branch")

	// ErrPushRejected is returned when the remote rejects the push,
	// typically because it has commits that are not local.
	ErrPushRejected = errors.New("push rejected by remote")
)
