package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mathiser/inference-server-dicom-node/internal/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{
		Trust:             config.TrustRoot{Kind: config.TrustRootSystem},
		RequestTimeout:    5 * time.Second,
		RequestsPerSecond: 0,
	})
	require.NoError(t, err)
	return c
}

func writeArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.tar")
	require.NoError(t, os.WriteFile(path, []byte("fake-tar-bytes"), 0o644))
	return path
}

func TestPostReturnsUIDOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "job-123", r.URL.Query().Get("human_readable_id"))
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		file, _, err := r.FormFile(partName)
		require.NoError(t, err)
		defer file.Close()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`"uid-abc"`))
	}))
	defer srv.Close()

	c := newTestClient(t)
	uid, err := c.Post(context.Background(), srv.URL, "job-123", writeArchive(t))
	require.NoError(t, err)
	require.Equal(t, "uid-abc", uid)
}

func TestPostReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Post(context.Background(), srv.URL, "job-123", writeArchive(t))
	require.Error(t, err)
}

func TestGetMapsStatusCodesPerSpec(t *testing.T) {
	cases := []struct {
		status int
		want   GetResult
	}{
		{http.StatusOK, GetOK},
		{551, GetPending},
		{554, GetPending},
		{500, GetFailed},
		{405, GetFailed},
		{552, GetFailed},
		{553, GetFailed},
		{http.StatusTeapot, GetError},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "uid-1", r.URL.Query().Get("uid"))
			w.WriteHeader(tc.status)
			if tc.status == http.StatusOK {
				w.Write([]byte("output-bytes"))
			}
		}))

		c := newTestClient(t)
		result, body, err := c.Get(context.Background(), srv.URL, "uid-1")
		srv.Close()

		require.Equal(t, tc.want, result, "status %d", tc.status)
		if tc.want == GetOK {
			require.NoError(t, err)
			require.Equal(t, []byte("output-bytes"), body)
		} else if tc.want == GetError {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
		}
	}
}

func TestDeleteSucceedsOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "uid-1", r.URL.Query().Get("uid"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t)
	err := c.Delete(context.Background(), srv.URL, "uid-1")
	require.NoError(t, err)
}

func TestDeleteFailsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t)
	err := c.Delete(context.Background(), srv.URL, "uid-1")
	require.Error(t, err)
}

func TestReloadTrustAppliesNewConfig(t *testing.T) {
	c := newTestClient(t)
	require.NoError(t, c.ReloadTrust(config.TrustRoot{Kind: config.TrustRootInsecure}))

	transport, ok := c.httpClient.Transport.(*http.Transport)
	require.True(t, ok)
	require.True(t, transport.TLSClientConfig.InsecureSkipVerify)
}

func TestReloadTrustErrorsOnUnreadableBundle(t *testing.T) {
	c := newTestClient(t)
	err := c.ReloadTrust(config.TrustRoot{Kind: config.TrustRootPath, Path: filepath.Join(t.TempDir(), "missing.pem")})
	require.Error(t, err)
}
