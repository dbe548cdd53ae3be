package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"coderunner/internal/model"
	"github.com/stretchr/testify/require"
)

// fakeIsolate writes a shell script that mimics the slice of the
// isolate CLI this package drives, so tests can exercise Init/Run/
// Close without kernel namespace or cgroup privileges.
func fakeIsolate(t *testing.T, cleanupLog string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fake-isolate.sh")
	contents := `#!/bin/bash
case "$1" in
  --init)
    boxroot=$(mktemp -d)
    mkdir -p "$boxroot/box"
    echo "$boxroot"
    exit 0
    ;;
  --run)
    shift
    meta=""
    workdir="."
    while [[ $# -gt 0 ]]; do
      case "$1" in
        --meta=*) meta="${1#--meta=}"; shift;;
        -c) shift; workdir="$1"; shift;;
        --) shift; break;;
        *) shift;;
      esac
    done
    cd "$workdir" || exit 1
    "$@"
    code=$?
    {
      echo "cg-mem:1024"
      echo "exitcode:$code"
      echo "time:0.01"
      echo "time-wall:0.02"
      echo "status:OK"
    } > "$meta"
    exit 0
    ;;
  --cleanup)
    echo "cleaned" >> "` + cleanupLog + `"
    exit 0
    ;;
esac
exit 1
`
	require.NoError(t, os.WriteFile(script, []byte(contents), 0o755))
	return script
}

func testLimits() model.MandatoryLimits {
	return model.MandatoryLimits{
		WallTime:             5,
		CPUTime:              2,
		Memory:               65536,
		ExtraTime:            1,
		MaxOpenFiles:         32,
		MaxFileSize:          10000,
		MaxNumberOfProcesses: 16,
	}
}

func withFakeIsolate(t *testing.T) string {
	t.Helper()
	cleanupLog := filepath.Join(t.TempDir(), "cleanup.log")
	script := fakeIsolate(t, cleanupLog)
	old := Path
	Path = script
	t.Cleanup(func() { Path = old })
	return cleanupLog
}

func TestInit_ParsesBoxDir(t *testing.T) {
	withFakeIsolate(t)
	sb, err := Init(context.Background(), 1)
	require.NoError(t, err)
	require.DirExists(t, sb.BoxDir)
}

func TestRun_ParsesSuccessfulMetadata(t *testing.T) {
	withFakeIsolate(t)
	sb, err := Init(context.Background(), 2)
	require.NoError(t, err)

	envFile := filepath.Join(t.TempDir(), "env")
	require.NoError(t, os.WriteFile(envFile, []byte("PATH=/bin\n"), 0o644))

	result, err := sb.Run(context.Background(), nil, testLimits(), nil, sb.BoxDir, envFile, []string{"/bin/true"})
	require.NoError(t, err)
	require.NotNil(t, result.ExitCode)
	require.Equal(t, 0, *result.ExitCode)
}

func TestRun_NonZeroExitCodeIsNotAnError(t *testing.T) {
	withFakeIsolate(t)
	sb, err := Init(context.Background(), 3)
	require.NoError(t, err)

	envFile := filepath.Join(t.TempDir(), "env")
	require.NoError(t, os.WriteFile(envFile, []byte("PATH=/bin\n"), 0o644))

	result, err := sb.Run(context.Background(), nil, testLimits(), nil, sb.BoxDir, envFile, []string{"/bin/false"})
	require.NoError(t, err)
	require.NotNil(t, result.ExitCode)
	require.Equal(t, 1, *result.ExitCode)
}

func TestRun_WritesStdin(t *testing.T) {
	withFakeIsolate(t)
	sb, err := Init(context.Background(), 4)
	require.NoError(t, err)

	envFile := filepath.Join(t.TempDir(), "env")
	require.NoError(t, os.WriteFile(envFile, []byte("PATH=/bin\n"), 0o644))

	input := "hello\n"
	result, err := sb.Run(context.Background(), nil, testLimits(), &input, sb.BoxDir, envFile, []string{"/bin/cat"})
	require.NoError(t, err)
	require.Equal(t, "hello\n", result.Stdout)
}

func TestClose_InvokesCleanupAsynchronously(t *testing.T) {
	cleanupLog := withFakeIsolate(t)
	sb, err := Init(context.Background(), 5)
	require.NoError(t, err)

	sb.Close()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(cleanupLog)
		return err == nil && len(data) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestClose_NilIsNoop(t *testing.T) {
	var sb *Sandbox
	sb.Close()
}
