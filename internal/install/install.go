// Package install implements the runtime installation coordinator:
// build the package-manager environment, persist the registry row,
// write the per-runtime script tree, and update the cache — rolling
// back every partial step if any later step fails.
package install

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"coderunner/internal/admission"
	"coderunner/internal/apierr"
	"coderunner/internal/model"
	"coderunner/internal/obslog"
	"coderunner/internal/obsmetrics"
	"coderunner/internal/registry"
	"coderunner/internal/scratch"
	"go.uber.org/zap"
)

// Coordinator drives the installation and update-index protocols.
type Coordinator struct {
	admission           *admission.Control
	registry            *registry.Registry
	installationTimeout time.Duration
	updateTimeout       time.Duration
	nixBinPath          string
	workDirRoot         string
}

// New builds an installation Coordinator.
func New(ctrl *admission.Control, reg *registry.Registry, installationTimeout, updateTimeout time.Duration, nixBinPath, workDirRoot string) *Coordinator {
	return &Coordinator{
		admission:           ctrl,
		registry:            reg,
		installationTimeout: installationTimeout,
		updateTimeout:       updateTimeout,
		nixBinPath:          nixBinPath,
		workDirRoot:         workDirRoot,
	}
}

func withTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func validateAddRuntimeRequest(req model.AddRuntimeRequest) error {
	switch {
	case req.Name == "":
		return apierr.NewValidation("Name can't be empty")
	case req.NixShell == "":
		return apierr.NewValidation("Nix shell can't be empty")
	case req.RunScript == "":
		return apierr.NewValidation("Run command can't be empty")
	case req.SourceFileName == "":
		return apierr.NewValidation("Source file name can't be empty")
	case !sanitizeFilename(req.SourceFileName):
		return apierr.NewValidation("Source file name is not a valid filename")
	}
	return nil
}

// Install runs the full protocol under the installation write lock:
// validate, build the nix-shell environment, and on success persist
// the row, scripts, and cache entry; any failure after the database
// insert triggers a full rollback.
func (c *Coordinator) Install(ctx context.Context, req model.AddRuntimeRequest) (*model.InstallationResponse, error) {
	if err := validateAddRuntimeRequest(req); err != nil {
		return nil, err
	}

	c.admission.LockInstall()
	defer c.admission.UnlockInstall()

	nixShell := withTrailingNewline(req.NixShell)
	compileScript := withTrailingNewline(req.CompileScript)
	runScript := withTrailingNewline(req.RunScript)
	if compileScript != "" && !strings.HasPrefix(compileScript, "#!") {
		compileScript = "#!/bin/bash\n\n" + compileScript
	}
	if !strings.HasPrefix(runScript, "#!") {
		runScript = "#!/bin/bash\n\n" + runScript
	}

	workDirPath := filepath.Join(c.workDirRoot, fmt.Sprint(c.admission.NextBoxID()))
	workDir, err := scratch.AcquireDir(workDirPath)
	if err != nil {
		return nil, &apierr.TransportError{Message: "failed to create installation work directory", Cause: err}
	}
	defer workDir.Close()

	shellNixPath := filepath.Join(workDir.Path, "shell.nix")
	if err := os.WriteFile(shellNixPath, []byte(nixShell), 0o644); err != nil {
		return nil, &apierr.TransportError{Message: "failed to write shell.nix", Cause: err}
	}

	if c.registry.NameExists(req.Name) {
		return nil, apierr.NewValidation("A runtime with this name already exists")
	}

	stdout, stderr, err := c.runNixShell(ctx, shellNixPath, c.installationTimeout)
	if err != nil {
		return nil, &apierr.PackageManagerFailure{Stdout: stdout, Stderr: stderr}
	}

	id, err := c.registry.InsertRow(req.Name, req.SourceFileName)
	if err != nil {
		return nil, err
	}
	rollback := scratch.NewRollback(func() {
		if err := c.registry.DeleteRowByName(req.Name); err != nil {
			obslog.L().Error("installation rollback failed to delete runtime row",
				zap.String("name", req.Name), zap.Error(err))
		}
	})
	defer rollback.Close()

	runtimeDir, err := scratch.AcquireDir(c.registry.RuntimeDir(id))
	if err != nil {
		return nil, &apierr.TransportError{Message: "failed to create runtime directory", Cause: err}
	}

	if compileScript != "" {
		if err := os.WriteFile(filepath.Join(runtimeDir.Path, "compile"), []byte(compileScript), 0o755); err != nil {
			runtimeDir.Close()
			return nil, &apierr.TransportError{Message: "failed to write compile script", Cause: err}
		}
	}
	if err := os.WriteFile(filepath.Join(runtimeDir.Path, "run"), []byte(runScript), 0o755); err != nil {
		runtimeDir.Close()
		return nil, &apierr.TransportError{Message: "failed to write run script", Cause: err}
	}
	if err := os.WriteFile(filepath.Join(runtimeDir.Path, "env"), []byte(stdout), 0o755); err != nil {
		runtimeDir.Close()
		return nil, &apierr.TransportError{Message: "failed to write env script", Cause: err}
	}
	if err := os.WriteFile(filepath.Join(runtimeDir.Path, "shell.nix"), []byte(nixShell), 0o644); err != nil {
		runtimeDir.Close()
		return nil, &apierr.TransportError{Message: "failed to write shell.nix manifest", Cause: err}
	}

	c.registry.CacheInsert(model.Runtime{
		ID:             id,
		Name:           req.Name,
		SourceFileName: req.SourceFileName,
		IsCompiled:     compileScript != "",
		ShellManifest:  nixShell,
	})

	rollback.Commit()
	obsmetrics.Get().InstallationsTotal.WithLabelValues("success").Inc()
	return &model.InstallationResponse{Stdout: stdout, Stderr: stderr}, nil
}

// UpdateIndex refreshes the shared nix package index via `nix-env
// --install --file <nixpkgs> --attr nix cacert`, under the
// installation write lock.
func (c *Coordinator) UpdateIndex(ctx context.Context) (*model.InstallationResponse, error) {
	c.admission.LockInstall()
	defer c.admission.UnlockInstall()

	runCtx, cancel := context.WithTimeout(ctx, c.updateTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, filepath.Join(c.nixBinPath, "nix-env"),
		"--install",
		"--file", "<nixpkgs>",
		"--attr", "nix", "cacert",
		"-I", "nixpkgs=channel:nixpkgs-unstable",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		obsmetrics.Get().InstallationsTotal.WithLabelValues("update_failure").Inc()
		return nil, &apierr.PackageManagerFailure{Stdout: stdout.String(), Stderr: stderr.String(), DuringUpdate: true}
	}
	obsmetrics.Get().InstallationsTotal.WithLabelValues("update_success").Inc()
	return &model.InstallationResponse{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// Delete removes a runtime's database row, cache entry, and on-disk
// directory under the installation write lock.
func (c *Coordinator) Delete(ctx context.Context, id uint32) error {
	c.admission.LockInstall()
	defer c.admission.UnlockInstall()

	affected, err := c.registry.DeleteRowByID(id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apierr.NewNotFound("Could not find the specified runtime")
	}

	c.registry.CacheRemove(id)
	if err := os.RemoveAll(c.registry.RuntimeDir(id)); err != nil {
		return &apierr.TransportError{Message: "failed to remove runtime directory", Cause: err}
	}
	return nil
}

func (c *Coordinator) runNixShell(ctx context.Context, shellNixPath string, timeout time.Duration) (stdout, stderr string, err error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "env", "-i", "PATH=/bin",
		filepath.Join(c.nixBinPath, "nix-shell"),
		"--timeout", fmt.Sprintf("%d", int(timeout.Seconds())),
		shellNixPath,
		"--run", "/bin/bash -c env",
	)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	return outBuf.String(), errBuf.String(), runErr
}
