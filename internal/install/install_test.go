package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"coderunner/internal/admission"
	"coderunner/internal/apierr"
	"coderunner/internal/model"
	"coderunner/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeBin writes an executable script named name into dir.
func writeFakeBin(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o755))
}

func newTestCoordinator(t *testing.T, nixShellScript, nixEnvScript string) (*Coordinator, *registry.Registry) {
	t.Helper()
	root := t.TempDir()

	nixBin := filepath.Join(root, "nix-bin")
	require.NoError(t, os.MkdirAll(nixBin, 0o755))
	writeFakeBin(t, nixBin, "nix-shell", nixShellScript)
	writeFakeBin(t, nixBin, "nix-env", nixEnvScript)

	runtimesRoot := filepath.Join(root, "runtimes")
	require.NoError(t, os.MkdirAll(runtimesRoot, 0o755))
	reg, err := registry.Open(filepath.Join(root, "registry.db"), runtimesRoot)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	workDirRoot := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(workDirRoot, 0o755))

	ctrl := admission.New(4)
	return New(ctrl, reg, 5*time.Second, 5*time.Second, nixBin, workDirRoot), reg
}

const fakeNixShellSuccess = "#!/bin/bash\necho 'PATH=/usr/bin'\necho 'stub env stderr' >&2\nexit 0\n"
const fakeNixShellFailure = "#!/bin/bash\necho 'boom' >&2\nexit 1\n"
const fakeNixEnvSuccess = "#!/bin/bash\necho updated\nexit 0\n"

func baseRequest() model.AddRuntimeRequest {
	return model.AddRuntimeRequest{
		Name:           "py",
		NixShell:       "{ pkgs ? import <nixpkgs> {} }: pkgs.mkShell { buildInputs = [ pkgs.python3 ]; }",
		CompileScript:  "",
		RunScript:      "python3 $1",
		SourceFileName: "main.py",
	}
}

func TestInstall_Success(t *testing.T) {
	c, reg := newTestCoordinator(t, fakeNixShellSuccess, fakeNixEnvSuccess)

	resp, err := c.Install(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Contains(t, resp.Stdout, "PATH=/usr/bin")

	assert.True(t, reg.NameExists("py"))

	list := reg.List()
	require.Len(t, list, 1)

	runtimeDir := reg.RuntimeDir(list[0].ID)
	assert.FileExists(t, filepath.Join(runtimeDir, "run"))
	assert.FileExists(t, filepath.Join(runtimeDir, "env"))
	assert.FileExists(t, filepath.Join(runtimeDir, "shell.nix"))
	assert.NoFileExists(t, filepath.Join(runtimeDir, "compile"))
}

func TestInstall_ValidationFailure(t *testing.T) {
	c, _ := newTestCoordinator(t, fakeNixShellSuccess, fakeNixEnvSuccess)

	req := baseRequest()
	req.Name = ""
	_, err := c.Install(context.Background(), req)
	require.Error(t, err)
	var verr *apierr.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestInstall_DuplicateNameFails(t *testing.T) {
	c, _ := newTestCoordinator(t, fakeNixShellSuccess, fakeNixEnvSuccess)

	_, err := c.Install(context.Background(), baseRequest())
	require.NoError(t, err)

	_, err = c.Install(context.Background(), baseRequest())
	require.Error(t, err)
	var verr *apierr.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestInstall_PackageManagerFailureMutatesNothing(t *testing.T) {
	c, reg := newTestCoordinator(t, fakeNixShellFailure, fakeNixEnvSuccess)

	_, err := c.Install(context.Background(), baseRequest())
	require.Error(t, err)
	var pmErr *apierr.PackageManagerFailure
	require.ErrorAs(t, err, &pmErr)
	assert.Contains(t, pmErr.Stderr, "boom")

	assert.Empty(t, reg.List())
}

func TestInstall_CompiledRuntimeWritesCompileScript(t *testing.T) {
	c, reg := newTestCoordinator(t, fakeNixShellSuccess, fakeNixEnvSuccess)

	req := baseRequest()
	req.Name = "c"
	req.CompileScript = "gcc -o out $1"

	_, err := c.Install(context.Background(), req)
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 1)
	runtime, ok := reg.Get(list[0].ID)
	require.True(t, ok)
	assert.True(t, runtime.IsCompiled)
	assert.FileExists(t, filepath.Join(reg.RuntimeDir(list[0].ID), "compile"))
}

func TestUpdateIndex_Success(t *testing.T) {
	c, _ := newTestCoordinator(t, fakeNixShellSuccess, fakeNixEnvSuccess)
	resp, err := c.UpdateIndex(context.Background())
	require.NoError(t, err)
	assert.Contains(t, resp.Stdout, "updated")
}

func TestDelete_RemovesRowCacheAndDirectory(t *testing.T) {
	c, reg := newTestCoordinator(t, fakeNixShellSuccess, fakeNixEnvSuccess)

	_, err := c.Install(context.Background(), baseRequest())
	require.NoError(t, err)
	list := reg.List()
	require.Len(t, list, 1)
	id := list[0].ID

	require.NoError(t, c.Delete(context.Background(), id))

	_, ok := reg.Get(id)
	assert.False(t, ok)
	assert.NoDirExists(t, reg.RuntimeDir(id))
}

func TestDelete_UnknownIDFails(t *testing.T) {
	c, _ := newTestCoordinator(t, fakeNixShellSuccess, fakeNixEnvSuccess)
	err := c.Delete(context.Background(), 999)
	require.Error(t, err)
	var nferr *apierr.NotFoundError
	require.ErrorAs(t, err, &nferr)
}
