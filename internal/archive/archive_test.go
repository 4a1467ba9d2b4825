package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPackUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	seriesA := filepath.Join(src, "series-a")
	seriesB := filepath.Join(src, "series-b")
	writeFile(t, filepath.Join(seriesA, "1.dcm"), "dataset-1")
	writeFile(t, filepath.Join(seriesA, "2.dcm"), "dataset-2")
	writeFile(t, filepath.Join(seriesB, "1.dcm"), "dataset-3")

	archivePath := filepath.Join(t.TempDir(), "input.tar")
	require.NoError(t, Pack(archivePath, []string{seriesA, seriesB}))

	info, err := os.Stat(archivePath)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	destDir := t.TempDir()
	require.NoError(t, Unpack(archivePath, destDir))

	got1, err := os.ReadFile(filepath.Join(destDir, "series-a", "1.dcm"))
	require.NoError(t, err)
	require.Equal(t, "dataset-1", string(got1))

	got2, err := os.ReadFile(filepath.Join(destDir, "series-a", "2.dcm"))
	require.NoError(t, err)
	require.Equal(t, "dataset-2", string(got2))

	got3, err := os.ReadFile(filepath.Join(destDir, "series-b", "1.dcm"))
	require.NoError(t, err)
	require.Equal(t, "dataset-3", string(got3))
}

func TestUnpackRejectsPathTraversal(t *testing.T) {
	// Check the guard Unpack uses directly with hand-written malicious entry
	// names, since Pack itself never produces traversal entries.
	destDir := t.TempDir()
	_, err := safeJoin(destDir, "../../etc/passwd")
	require.Error(t, err)

	_, err = safeJoin(destDir, "/etc/passwd")
	require.Error(t, err)

	ok, err := safeJoin(destDir, "series-a/1.dcm")
	require.NoError(t, err)
	require.Contains(t, ok, destDir)
}
