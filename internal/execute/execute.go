// Package execute implements the execution coordinator: the
// extract/compile/run state machine, box renewal between stages, and
// the admission-control ordering (installation read-lock and
// submission permit acquired before any box or filesystem work).
package execute

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"coderunner/internal/admission"
	"coderunner/internal/apierr"
	"coderunner/internal/limits"
	"coderunner/internal/model"
	"coderunner/internal/obsmetrics"
	"coderunner/internal/registry"
	"coderunner/internal/sandbox"
	"coderunner/internal/scratch"
)

// sandboxSubmissionDir is the in-sandbox path isolate resolves -c
// against, not a host path. The submission directory is always
// mounted at /box/submission inside the namespace regardless of
// where the box root lives on the host (current.BoxDir).
const sandboxSubmissionDir = "/box/submission"

// Coordinator drives one submission through extract, compile, and
// run, each stage a disposable sandboxed subprocess.
type Coordinator struct {
	admission    *admission.Control
	registry     *registry.Registry
	systemLimits model.SystemLimits
}

// New builds an execution Coordinator.
func New(ctrl *admission.Control, reg *registry.Registry, systemLimits model.SystemLimits) *Coordinator {
	return &Coordinator{admission: ctrl, registry: reg, systemLimits: systemLimits}
}

func withTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// Execute runs the full pipeline for one submission.
func (c *Coordinator) Execute(ctx context.Context, req model.ExecutionRequest, isProject bool) (*model.ExecutionResponse, error) {
	c.admission.RLockExecute()
	defer c.admission.RUnlockExecute()

	if err := c.admission.AcquireSubmission(ctx); err != nil {
		return nil, &apierr.TransportError{Message: "failed to acquire submission permit", Cause: err}
	}
	defer c.admission.ReleaseSubmission()

	compileLimits, err := limits.Negotiate(req.CompileLimits, c.systemLimits.Compile)
	if err != nil {
		return nil, apierr.NewValidation("invalid compile limits: %s", err.Error())
	}
	runLimits, err := limits.Negotiate(req.RunLimits, c.systemLimits.Run)
	if err != nil {
		return nil, apierr.NewValidation("invalid run limits: %s", err.Error())
	}

	rt, ok := c.registry.Get(req.RuntimeID)
	if !ok {
		return nil, apierr.NewValidation("Runtime with id: %d does not exist", req.RuntimeID)
	}

	var current *sandbox.Sandbox
	defer func() {
		if current != nil {
			current.Close()
		}
	}()

	current, err = sandbox.Init(ctx, c.admission.NextBoxID())
	if err != nil {
		return nil, &apierr.SandboxInternalError{Message: fmt.Sprintf("failed to initialize sandbox: %s", err.Error())}
	}

	var box *scratch.Box
	defer func() {
		if box != nil {
			box.Close()
		}
	}()
	box, err = scratch.AcquireBox(current.BoxDir, current.BoxID)
	if err != nil {
		return nil, &apierr.TransportError{Message: "failed to create submission directory", Cause: err}
	}

	resp := &model.ExecutionResponse{}
	sourceCode := withTrailingNewline(req.SourceCode)

	if isProject {
		decoded, err := base64.StdEncoding.DecodeString(sourceCode)
		if err != nil {
			return nil, apierr.NewValidation("failed to decode base64 source: %s", err.Error())
		}
		if err := os.WriteFile(filepath.Join(box.Path, "source.zip"), decoded, 0o644); err != nil {
			return nil, &apierr.TransportError{Message: "failed to write source.zip", Cause: err}
		}

		extractResult, err := c.runExtract(ctx, current, compileLimits)
		if err != nil {
			return nil, &apierr.SandboxInternalError{Message: fmt.Sprintf("extract stage failed: %s", err.Error())}
		}
		resp.Extract = extractResult

		if extractResult.ExitCode == nil || *extractResult.ExitCode != 0 {
			obsmetrics.Get().SubmissionsTotal.WithLabelValues("extract_failed").Inc()
			return resp, nil
		}

		current, box, err = c.renew(ctx, current)
		if err != nil {
			return nil, &apierr.SandboxInternalError{Message: fmt.Sprintf("failed to renew box after extract: %s", err.Error())}
		}
	} else {
		if err := os.WriteFile(filepath.Join(box.Path, rt.SourceFileName), []byte(sourceCode), 0o644); err != nil {
			return nil, &apierr.TransportError{Message: "failed to write source file", Cause: err}
		}
	}

	runtimeDir := c.registry.RuntimeDir(rt.ID)
	mounts := []string{"/nix", fmt.Sprintf("/runtime=%s", runtimeDir)}
	envFile := filepath.Join(runtimeDir, "env")

	if rt.IsCompiled {
		compileResult, err := current.Run(ctx, mounts, compileLimits, nil, sandboxSubmissionDir, envFile, []string{"/runtime/compile"})
		if err != nil {
			return nil, &apierr.SandboxInternalError{Message: fmt.Sprintf("compile stage failed: %s", err.Error())}
		}
		resp.Compile = compileResult

		if compileResult.ExitCode == nil || *compileResult.ExitCode != 0 {
			obsmetrics.Get().SubmissionsTotal.WithLabelValues("compile_failed").Inc()
			return resp, nil
		}

		current, box, err = c.renew(ctx, current)
		if err != nil {
			return nil, &apierr.SandboxInternalError{Message: fmt.Sprintf("failed to renew box after compile: %s", err.Error())}
		}
	}

	var stdin *string
	if req.Input != nil {
		v := withTrailingNewline(*req.Input)
		stdin = &v
	}

	runResult, err := current.Run(ctx, mounts, runLimits, stdin, sandboxSubmissionDir, envFile, []string{"/runtime/run"})
	if err != nil {
		return nil, &apierr.SandboxInternalError{Message: fmt.Sprintf("run stage failed: %s", err.Error())}
	}
	resp.Run = runResult
	obsmetrics.Get().SubmissionsTotal.WithLabelValues("completed").Inc()

	return resp, nil
}

// minimalEnvFile returns a path to a small PATH-only environment
// usable by the extract stage, which runs before any runtime env
// script is relevant.
func (c *Coordinator) minimalEnvFile() (string, error) {
	f, err := os.CreateTemp("", "extract-env-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString("PATH=/usr/bin:/bin\n"); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func (c *Coordinator) runExtract(ctx context.Context, sb *sandbox.Sandbox, compileLimits model.MandatoryLimits) (*model.StageResult, error) {
	envFile, err := c.minimalEnvFile()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare extract environment: %w", err)
	}
	defer os.Remove(envFile)

	return sb.Run(ctx, nil, compileLimits, nil, sandboxSubmissionDir, envFile, []string{"unzip", "-qq", "source.zip"})
}

// renew discards compile/extract-time writable state between stages
// while keeping the submission tree, replacing both the sandbox and
// submission-box handles the caller must close. The old box's
// submission directory has already been moved into the new one by
// sandbox.Renew, so there is nothing left under the old box id for
// the privileged helper to remove. If renewal fails the old sandbox is
// closed here, because the caller's handle is replaced with nil.
func (c *Coordinator) renew(ctx context.Context, old *sandbox.Sandbox) (*sandbox.Sandbox, *scratch.Box, error) {
	fresh, err := sandbox.Renew(ctx, old, c.admission.NextBoxID)
	if err != nil {
		old.Close()
		return nil, nil, err
	}
	return fresh, &scratch.Box{Path: fresh.BoxDir + "/submission", BoxID: fresh.BoxID}, nil
}
