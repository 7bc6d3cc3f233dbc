package publish

import (
	"context"
	"fmt"
	"time"
)

// Options configures Publish.
type Options struct {
	// Message defaults to "Update training knowledge <date>".
	Message string
	// Push sends the commit to Remote/Branch after committing.
	Push   bool
	Remote string
	Branch string
	Now    func() time.Time
}

// Result describes what Publish did.
type Result struct {
	Files     []string
	Committed bool
	Pushed    bool
}

// Publish commits the changes under dir in the repository that contains it
// and optionally pushes them. With no changes it neither commits nor
// pushes.
func Publish(ctx context.Context, dir string, opts Options) (*Result, error) {
	repo, err := Open(dir)
	if err != nil {
		return nil, err
	}
	rel, err := repo.Rel(dir)
	if err != nil {
		return nil, err
	}

	statuses, err := repo.Status(ctx, rel)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s for changes: %w", rel, err)
	}
	res := &Result{}
	for _, s := range statuses {
		res.Files = append(res.Files, s.Path)
	}
	if len(res.Files) == 0 {
		return res, nil
	}

	msg := opts.Message
	if msg == "" {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		msg = "Update training knowledge " + now().Format("2006-01-02 15:04")
	}
	if err := repo.Commit(ctx, msg, rel); err != nil {
		return res, fmt.Errorf("failed to commit knowledge: %w", err)
	}
	res.Committed = true

	if opts.Push {
		if err := repo.Push(ctx, opts.Remote, opts.Branch); err != nil {
			return res, fmt.Errorf("failed to push knowledge: %w", err)
		}
		res.Pushed = true
	}
	return res, nil
}
