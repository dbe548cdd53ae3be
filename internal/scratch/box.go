package scratch

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"time"

	"coderunner/internal/obslog"
	"go.uber.org/zap"
)

// deleteSubmissionBin is the external privileged-removal helper
// invoked to reclaim a submission directory owned by the sandboxed
// uid, which this process cannot remove directly.
var deleteSubmissionBin = "delete_submission"

// Box is the submission working directory living under a sandbox's
// box root. Its contents are written by the sandboxed uid during
// compile/run, so ordinary removal from this process would fail;
// Close instead shells out to the delete_submission helper.
type Box struct {
	Path  string
	BoxID uint32
}

// AcquireBox creates the submission directory under boxDir.
func AcquireBox(boxDir string, boxID uint32) (*Box, error) {
	path := boxDir + "/submission"
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &Box{Path: path, BoxID: boxID}, nil
}

// Close schedules asynchronous, best-effort removal via the
// delete_submission helper. Safe to call on a nil receiver.
func (b *Box) Close() {
	if b == nil {
		return
	}
	boxID := b.BoxID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		cmd := exec.CommandContext(ctx, deleteSubmissionBin, strconv.FormatUint(uint64(boxID), 10))
		out, err := cmd.CombinedOutput()
		if err != nil {
			obslog.L().Warn("submission cleanup failed",
				zap.Uint32("box_id", boxID), zap.Error(err), zap.ByteString("output", out))
		}
	}()
}
