// Package download performs the plain HTTP GETs shared by the GitHub,
// Open-Meteo, and PVGIS adapters and records their metrics.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/observability"
	"github.com/dustin/go-humanize"
)

// maxErrorBody caps how much of a non-200 body is kept for the error message.
const maxErrorBody = 4096

// StatusError is returned for any non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Fetcher issues GET requests for one named source.
type Fetcher struct {
	source     string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher whose requests time out after timeout.
func NewFetcher(source string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		source:     source,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// Get returns the body of a 200 response. Any other status yields a *StatusError.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	body, err := f.get(ctx, url)
	f.metrics.DownloadDuration.WithLabelValues(f.source).Observe(time.Since(start).Seconds())

	if err != nil {
		f.metrics.Downloads.WithLabelValues(f.source, "error").Inc()
		f.logger.Debug("download failed", "source", f.source, "url", url, "error", err)
		return nil, err
	}

	f.metrics.Downloads.WithLabelValues(f.source, "success").Inc()
	f.metrics.DownloadBytes.WithLabelValues(f.source).Add(float64(len(body)))
	f.logger.Debug("downloaded", "source", f.source, "url", url,
		"size", humanize.Bytes(uint64(len(body))), "elapsed", time.Since(start))
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", f.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: body}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", f.source, err)
	}
	return body, nil
}
