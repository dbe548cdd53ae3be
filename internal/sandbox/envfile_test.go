package sandbox

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "env")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadEnvFile_SimpleEntries(t *testing.T) {
	path := writeEnvFile(t, "PATH=/usr/bin\nHOME=/tmp\n")
	cmd := exec.Command("true")
	require.NoError(t, loadEnvFile(cmd, path))
	assert.Contains(t, cmd.Env, "PATH=/usr/bin")
	assert.Contains(t, cmd.Env, "HOME=/tmp")
}

func TestLoadEnvFile_MultilineValue(t *testing.T) {
	path := writeEnvFile(t, "GREETING=hello\nworld\n")
	cmd := exec.Command("true")
	require.NoError(t, loadEnvFile(cmd, path))
	assert.Contains(t, cmd.Env, "GREETING=hello\nworld")
}

func TestLoadEnvFile_SplitsOnLastEquals(t *testing.T) {
	// A value containing its own '=' shifts the key boundary, per the
	// last-'=' split rule.
	path := writeEnvFile(t, "URL=https://example.com/path?a=b\n")
	cmd := exec.Command("true")
	require.NoError(t, loadEnvFile(cmd, path))
	assert.Contains(t, cmd.Env, "URL=https://example.com/path?a=b")
}

func TestLoadEnvFile_MultipleEntries(t *testing.T) {
	path := writeEnvFile(t, "A=1\nB=2\nC=3\n")
	cmd := exec.Command("true")
	require.NoError(t, loadEnvFile(cmd, path))
	assert.Contains(t, cmd.Env, "A=1")
	assert.Contains(t, cmd.Env, "B=2")
	assert.Contains(t, cmd.Env, "C=3")
}
