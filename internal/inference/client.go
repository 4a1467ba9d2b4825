// Package inference implements the Inference Client (spec.md §4.4): the
// three HTTPS operations (post/get/delete) the Coordinator uses to hand a
// Task's input archive to a remote inference server and retrieve its
// output.
package inference

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mathiser/inference-server-dicom-node/internal/config"
	"github.com/mathiser/inference-server-dicom-node/internal/log"
	"github.com/mathiser/inference-server-dicom-node/internal/telemetry"
)

// GetResult enumerates the outcomes of Get per spec.md §4.4's status-code
// mapping.
type GetResult int

const (
	// GetPending: still processing, poll again next iteration.
	GetPending GetResult = iota
	// GetFailed: terminal server-side failure.
	GetFailed
	// GetOK: output bytes were retrieved.
	GetOK
	// GetError: generic non-2xx, non-terminal; keep polling.
	GetError
)

// partName is the multipart field carrying the input archive (spec.md §6).
// The original protocol's alias ("zip_file") is not emitted here since this
// gateway's Archive Codec is tar-only (spec.md §9); only the current name
// is sent.
const partName = "tar_file"

// Client is the HTTPS Inference Client (spec.md §4.4).
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	rps        rate.Limit
	burst      int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Config sets the per-request timeout, TLS trust, and the request rate
// allowed per inference host (a token bucket; it does not cap how many
// requests are in flight at once).
type Config struct {
	Trust              config.TrustRoot
	RequestTimeout      time.Duration
	RequestsPerSecond   float64 // per distinct inference host
	Burst               int
}

// New builds a Client from cfg, configuring TLS trust per spec.md §4.4
// ("HTTPS with a configurable trust root").
func New(cfg Config) (*Client, error) {
	tlsConfig, err := buildTLSConfig(cfg.Trust)
	if err != nil {
		return nil, fmt.Errorf("inference: build tls config: %w", err)
	}

	rps := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		rps = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		timeout:  cfg.RequestTimeout,
		rps:      rps,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

func buildTLSConfig(trust config.TrustRoot) (*tls.Config, error) {
	switch trust.Kind {
	case config.TrustRootInsecure:
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // gated by ALLOW_INSECURE_TLS at config load time
	case config.TrustRootPath:
		pemBytes, err := os.ReadFile(trust.Path)
		if err != nil {
			return nil, fmt.Errorf("read trust root %s: %w", trust.Path, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("no certificates parsed from %s", trust.Path)
		}
		return &tls.Config{RootCAs: pool}, nil
	default: // config.TrustRootSystem
		return &tls.Config{}, nil
	}
}

// ReloadTrust rebuilds the client's TLS trust configuration in place. Used
// by the composition root to apply a rotated trust bundle without
// restarting the process (spec.md §6's `CERT_FILE` hot-reload, grounded on
// the teacher's config-reload pattern via fsnotify).
func (c *Client) ReloadTrust(trust config.TrustRoot) error {
	tlsConfig, err := buildTLSConfig(trust)
	if err != nil {
		return fmt.Errorf("inference: reload tls config: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	transport, ok := c.httpClient.Transport.(*http.Transport)
	if !ok {
		return fmt.Errorf("inference: unexpected transport type %T", c.httpClient.Transport)
	}
	transport.TLSClientConfig = tlsConfig
	return nil
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.rps, c.burst)
		c.limiters[host] = l
	}
	return l
}

// Post streams inputArchivePath as a multipart upload to inferenceServerURL
// with query parameter human_readable_id (spec.md §4.4/§6), returning the
// inference-server uid on success.
func (c *Client) Post(ctx context.Context, inferenceServerURL, humanReadableID, inputArchivePath string) (string, error) {
	tracer := telemetry.Tracer("gateway.inference")
	ctx, span := tracer.Start(ctx, "inference.post")
	defer span.End()

	reqURL, err := withQuery(inferenceServerURL, "human_readable_id", humanReadableID)
	if err != nil {
		return "", err
	}

	if err := c.wait(ctx, reqURL); err != nil {
		return "", err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mw.Close()
		part, err := mw.CreateFormFile(partName, "input.tar")
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		f, err := os.Open(inputArchivePath)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		defer f.Close()
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, pr)
	if err != nil {
		return "", fmt.Errorf("inference: build post request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("inference: post: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("inference: read post response: %w", err)
	}

	span.SetAttributes(telemetry.HTTPAttributes(http.MethodPost, reqURL, resp.StatusCode)...)
	logPost(ctx, reqURL, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("inference: post returned status %d", resp.StatusCode)
	}

	var uid string
	if err := json.Unmarshal(body, &uid); err != nil {
		return "", fmt.Errorf("inference: decode post response: %w", err)
	}
	return uid, nil
}

// Get polls {inferenceServerURL}/outputs/?uid={uid} for a completed output
// (spec.md §4.4). Returns bytes only when result is GetOK.
func (c *Client) Get(ctx context.Context, inferenceServerURL, uid string) (GetResult, []byte, error) {
	tracer := telemetry.Tracer("gateway.inference")
	ctx, span := tracer.Start(ctx, "inference.get")
	defer span.End()

	reqURL, err := withQuery(inferenceServerURL+"/outputs/", "uid", uid)
	if err != nil {
		return GetError, nil, err
	}

	if err := c.wait(ctx, reqURL); err != nil {
		return GetError, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return GetError, nil, fmt.Errorf("inference: build get request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return GetError, nil, fmt.Errorf("inference: get: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(telemetry.HTTPAttributes(http.MethodGet, reqURL, resp.StatusCode)...)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return GetError, nil, fmt.Errorf("inference: read get body: %w", err)
		}
		return GetOK, body, nil
	case resp.StatusCode == 551 || resp.StatusCode == 554:
		return GetPending, nil, nil
	case resp.StatusCode == 500 || resp.StatusCode == 405 || resp.StatusCode == 552 || resp.StatusCode == 553:
		return GetFailed, nil, nil
	default:
		return GetError, nil, fmt.Errorf("inference: get returned status %d", resp.StatusCode)
	}
}

// Delete removes the remote uid (spec.md §4.4).
func (c *Client) Delete(ctx context.Context, inferenceServerURL, uid string) error {
	tracer := telemetry.Tracer("gateway.inference")
	ctx, span := tracer.Start(ctx, "inference.delete")
	defer span.End()

	reqURL, err := withQuery(inferenceServerURL, "uid", uid)
	if err != nil {
		return err
	}

	if err := c.wait(ctx, reqURL); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return fmt.Errorf("inference: build delete request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("inference: delete: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(telemetry.HTTPAttributes(http.MethodDelete, reqURL, resp.StatusCode)...)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("inference: delete returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) wait(ctx context.Context, reqURL string) error {
	u, err := url.Parse(reqURL)
	if err != nil {
		return fmt.Errorf("inference: parse url %q: %w", reqURL, err)
	}
	return c.limiterFor(u.Host).Wait(ctx)
}

func withQuery(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("inference: parse url %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func logPost(ctx context.Context, reqURL string, status int) {
	log.WithComponentFromContext(ctx, "inference").Debug().
		Str(log.FieldPath, reqURL).
		Str("status", strconv.Itoa(status)).
		Msg("inference post completed")
}
