// Package sandbox wraps the isolate kernel-namespace isolator binary
// (https://github.com/ioi/isolate): one Sandbox owns one box id,
// drives init/run/cleanup, and enforces the limits negotiated by
// internal/limits. Cleanup always runs asynchronously from Close so
// callers can defer it from a synchronous handler without blocking on
// the isolator subprocess.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"strings"
	"sync"
	"time"

	"coderunner/internal/model"
	"coderunner/internal/obslog"
	"go.uber.org/zap"
)

// Path is overridable in tests; production always uses the installed
// isolate binary.
var Path = "/usr/local/bin/isolate"

// Sandbox owns a single isolator box id from init to cleanup.
type Sandbox struct {
	BoxID uint32

	// BoxDir is the host path to the box's writable root
	// (<isolate-box-root>/box), as reported by `isolate --init`.
	BoxDir string

	metadataPath string

	mu     sync.Mutex
	runPID int
}

// Init runs `isolate --init --cg -b<id>` and records the box
// directory reported on stdout.
func Init(ctx context.Context, boxID uint32) (*Sandbox, error) {
	cmd := osexec.CommandContext(ctx, Path, "--init", "--cg", fmt.Sprintf("-b%d", boxID))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("isolate --init failed: %w\nstderr: %s", err, stderr.String())
	}

	root := strings.TrimSpace(stdout.String())
	return &Sandbox{
		BoxID:        boxID,
		BoxDir:       root + "/box",
		metadataPath: metadataPath(boxID),
	}, nil
}

func metadataPath(boxID uint32) string {
	return fmt.Sprintf("/tmp/%d-metadata.txt", boxID)
}

// Run spawns `isolate --run` under cgroup enforcement with the given
// mounts, limits, working directory, and env file, then parses the
// resulting metadata file into a StageResult.
func (s *Sandbox) Run(ctx context.Context, mounts []string, limits model.MandatoryLimits, stdin *string, workdir, envFile string, argv []string) (*model.StageResult, error) {
	args := []string{
		"--run",
		"--meta=" + s.metadataPath,
		"--cg",
		"-s",
		"-c", workdir,
		"-e",
		"-E", "HOME=/tmp",
	}
	for _, m := range mounts {
		args = append(args, "--dir="+m)
	}
	args = append(args,
		fmt.Sprintf("--cg-mem=%d", limits.Memory),
		fmt.Sprintf("--wall-time=%g", limits.WallTime),
		fmt.Sprintf("--time=%g", limits.CPUTime),
		fmt.Sprintf("--extra-time=%g", limits.ExtraTime),
		fmt.Sprintf("--open-files=%d", limits.MaxOpenFiles),
		fmt.Sprintf("--fsize=%d", limits.MaxFileSize),
		fmt.Sprintf("--processes=%d", limits.MaxNumberOfProcesses),
		fmt.Sprintf("-b%d", s.BoxID),
		"--",
	)
	args = append(args, argv...)

	cmd := osexec.CommandContext(ctx, Path, args...)
	cmd.Env = nil
	if err := loadEnvFile(cmd, envFile); err != nil {
		return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = strings.NewReader(*stdin)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn isolate --run: %w", err)
	}
	s.mu.Lock()
	s.runPID = cmd.Process.Pid
	s.mu.Unlock()

	waitErr := cmd.Wait()
	s.mu.Lock()
	s.runPID = 0
	s.mu.Unlock()
	if waitErr != nil {
		if _, ok := waitErr.(*osexec.ExitError); !ok {
			return nil, fmt.Errorf("failed to wait for isolate --run: %w", waitErr)
		}
	}

	meta, err := parseMetadataFile(s.metadataPath)
	if err != nil {
		return nil, fmt.Errorf("reading metadata file %s: %w\nstdout: %s\nstderr: %s",
			s.metadataPath, err, stdout.String(), stderr.String())
	}

	if meta.status != nil && *meta.status == "XX" {
		return nil, fmt.Errorf("isolate --run reported internal failure\nstdout: %s\nstderr: %s",
			stdout.String(), stderr.String())
	}
	if waitErr != nil && meta.exitCode == nil {
		return nil, fmt.Errorf("isolate --run exited non-zero with no exitcode in metadata\nstdout: %s\nstderr: %s",
			stdout.String(), stderr.String())
	}

	return &model.StageResult{
		Memory:      meta.memory,
		ExitCode:    meta.exitCode,
		ExitSignal:  meta.exitSignal,
		ExitMessage: meta.message,
		ExitStatus:  meta.status,
		Stdout:      stdout.String(),
		Stderr:      stderr.String(),
		CPUTime:     meta.cpuTime,
		WallTime:    meta.wallTime,
	}, nil
}

// Close schedules asynchronous teardown: SIGKILL any live run child,
// wait briefly, invoke `isolate --cleanup`, and remove the metadata
// file. Safe to call on a nil receiver.
func (s *Sandbox) Close() {
	if s == nil {
		return
	}
	boxID := s.BoxID
	metaPath := s.metadataPath

	s.mu.Lock()
	pid := s.runPID
	s.mu.Unlock()

	go func() {
		if pid != 0 {
			if proc, err := os.FindProcess(pid); err == nil {
				if err := proc.Kill(); err != nil {
					obslog.L().Debug("sandbox run process already exited", zap.Int("pid", pid), zap.Error(err))
				}
			}
			time.Sleep(50 * time.Millisecond)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		cmd := osexec.CommandContext(ctx, Path, "--cleanup", "--cg", fmt.Sprintf("-b%d", boxID))
		if out, err := cmd.CombinedOutput(); err != nil {
			obslog.L().Warn("isolate --cleanup failed",
				zap.Uint32("box_id", boxID), zap.Error(err), zap.ByteString("output", out))
		}

		if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
			obslog.L().Warn("failed to remove sandbox metadata file",
				zap.String("path", metaPath), zap.Error(err))
		}
	}()
}
