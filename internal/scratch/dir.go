// Package scratch provides scope-guarded resources whose teardown
// must run on every exit path: temp directories, privileged submission
// directories, and compensating rollback actions. Go has no
// destructors, so each type exposes an explicit Close() that the
// caller must defer; Close schedules its cleanup asynchronously so it
// never blocks the caller, matching the async-drop semantics these
// resources are modeled on.
package scratch

import (
	"os"

	"coderunner/internal/obslog"
	"go.uber.org/zap"
)

// Dir is a uniquely-named directory that is removed on Close. The
// directory is recreated (replacing anything already at path) when
// AcquireDir is called.
type Dir struct {
	Path string
}

// AcquireDir removes any existing entry at path, then creates it
// fresh.
func AcquireDir(path string) (*Dir, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &Dir{Path: path}, nil
}

// Close schedules asynchronous best-effort removal of the directory.
// Safe to call on a nil receiver or multiple times.
func (d *Dir) Close() {
	if d == nil {
		return
	}
	path := d.Path
	go func() {
		if err := os.RemoveAll(path); err != nil {
			obslog.L().Warn("scratch dir cleanup failed", zap.String("path", path), zap.Error(err))
		}
	}()
}
