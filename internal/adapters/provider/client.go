package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/okian/pitwall/internal/domain/retry"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "pitwall/1"
	maxBodyBytes     = 64 << 20
)

// httpClient is a JSON GET client with an optional on-disk response cache.
type httpClient struct {
	client    *http.Client
	userAgent string
	logger    logger.Logger
}

func newHTTPClient(c *http.Client, l logger.Logger) *httpClient {
	if c == nil {
		c = &http.Client{Timeout: defaultTimeout}
	}
	return &httpClient{client: c, userAgent: defaultUserAgent, logger: l}
}

// get fetches url and returns the raw body. endpoint labels metrics.
func (c *httpClient) get(ctx context.Context, endpoint, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		metrics.RecordProviderRequest(endpoint, "error", elapsed)
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close()
	metrics.RecordProviderRequest(endpoint, strconv.Itoa(resp.StatusCode), elapsed)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUpstream, endpoint, err)
	}

	c.logger.Debug(ctx, "upstream response",
		logger.String("endpoint", endpoint),
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(body)),
		logger.Float64("latency_ms", elapsed),
	)

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrNotFound, endpoint))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s: status %d", ErrUpstream, endpoint, resp.StatusCode)
	default:
		return nil, retry.Permanent(fmt.Errorf("%w: %s: status %d", ErrBadStatus, endpoint, resp.StatusCode))
	}
}

// getJSON decodes the response of url into v. When dir is non-empty the raw
// body is cached as dir/name.json and served from there on later calls.
func (c *httpClient) getJSON(ctx context.Context, endpoint, url, dir, name string, v any) error {
	var path string
	if dir != "" {
		path = filepath.Join(dir, name+".json")
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(b, v); err == nil {
				metrics.RecordProviderCache(true)
				return nil
			}
			// A torn or corrupt cache file is refetched.
			_ = os.Remove(path)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("read cache %s: %w", path, err)
		}
		metrics.RecordProviderCache(false)
	}

	body, err := c.get(ctx, endpoint, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, endpoint, err)
	}
	if path != "" {
		if err := writeCache(path, body); err != nil {
			c.logger.Warn(ctx, "cache write failed", logger.String("path", path), logger.Error(err))
		}
	}
	return nil
}

func writeCache(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
