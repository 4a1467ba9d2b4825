package sender

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectFilesWalksRecursively(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "series-a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "series-a", "1.dcm"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "series-a", "2.dcm"), []byte("y"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "series-b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "series-b", "1.dcm"), []byte("z"), 0o644))

	files, err := collectFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
}

func TestCollectFilesEmptyDirReturnsEmptySlice(t *testing.T) {
	files, err := collectFiles(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, files)
}
