package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultModelDirForLinuxWithXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "/tmp/xdg-data")
	require.NoError(t, err)
	require.Equal(t, "/tmp/xdg-data/voxserve/models", dir)
}

func TestDefaultModelDirForLinuxWithoutXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.local/share/voxserve/models", dir)
}

func TestDefaultModelDirForMacOS(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("darwin", "/Users/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/Users/dev/Library/Application Support/voxserve/models", dir)
}

func TestDefaultModelDirForUnsupportedOS(t *testing.T) {
	t.Parallel()

	_, err := DefaultModelDirFor("windows", "/Users/dev", "")
	require.Error(t, err)
}

func TestResolveModelDirOverride(t *testing.T) {
	t.Parallel()

	dir, err := ResolveModelDir("/srv/models/")
	require.NoError(t, err)
	require.Equal(t, "/srv/models", dir)
}

func TestEnsureStagingDir(t *testing.T) {
	t.Parallel()

	dir, err := EnsureStagingDir("")
	require.NoError(t, err)
	require.Equal(t, os.TempDir(), dir)

	override := filepath.Join(t.TempDir(), "staging", "nested")
	dir, err = EnsureStagingDir(override)
	require.NoError(t, err)
	require.Equal(t, override, dir)
	require.DirExists(t, override)
}
