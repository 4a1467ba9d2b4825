package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchTrustBundleInvokesOnChangeOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trust.pem")
	require.NoError(t, os.WriteFile(path, []byte("initial"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan TrustRoot, 4)
	go func() {
		_ = WatchTrustBundle(ctx, path, func(tr TrustRoot) { changes <- tr })
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("rotated"), 0o644))

	select {
	case tr := <-changes:
		require.Equal(t, TrustRootPath, tr.Kind)
		require.Equal(t, path, tr.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for trust bundle change notification")
	}
}
