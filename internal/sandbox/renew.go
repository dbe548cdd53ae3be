package sandbox

import (
	"context"
	"fmt"
	"os"
)

// NextBoxID is supplied by the admission-control box-id allocator.
type NextBoxID func() uint32

// Renew discards the writable state a sandbox has accumulated between
// pipeline stages while preserving the submission tree: it inits a
// fresh box, moves <old>/submission into <new>/submission, then drops
// the old sandbox (which triggers its async cleanup).
func Renew(ctx context.Context, old *Sandbox, nextID NextBoxID) (*Sandbox, error) {
	fresh, err := Init(ctx, nextID())
	if err != nil {
		return nil, fmt.Errorf("renewing box: %w", err)
	}

	oldSubmission := old.BoxDir + "/submission"
	newSubmission := fresh.BoxDir + "/submission"
	if err := os.Rename(oldSubmission, newSubmission); err != nil {
		fresh.Close()
		return nil, fmt.Errorf("moving submission into renewed box: %w", err)
	}

	old.Close()
	return fresh, nil
}
