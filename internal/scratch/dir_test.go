package scratch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireDir_CreatesFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work")
	d, err := AcquireDir(path)
	require.NoError(t, err)
	info, err := os.Stat(d.Path)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestAcquireDir_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work")
	require.NoError(t, os.MkdirAll(path, 0o755))
	stale := filepath.Join(path, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	d, err := AcquireDir(path)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(d.Path)
	require.NoError(t, err)
}

func TestDir_CloseRemovesAsynchronously(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work")
	d, err := AcquireDir(path)
	require.NoError(t, err)

	d.Close()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}

func TestDir_CloseNilIsNoop(t *testing.T) {
	var d *Dir
	d.Close()
}
