// Package pvgis fetches typical meteorological year data from the PVGIS API.
package pvgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/couchcryptid/eplus-toolkit/internal/adapter/download"
	"github.com/couchcryptid/eplus-toolkit/internal/config"
	"github.com/couchcryptid/eplus-toolkit/internal/observability"
)

const source = "pvgis"

// Output formats accepted by the TMY endpoint.
const (
	FormatEPW = "epw"
	FormatCSV = "csv"
)

// Client queries the PVGIS TMY endpoint.
type Client struct {
	fetcher *download.Fetcher
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a PVGIS client using the weather timeout.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		fetcher: download.NewFetcher(source, cfg.WeatherTimeout, metrics, logger),
		baseURL: cfg.PVGISURL,
		logger:  logger,
	}
}

// TMY downloads the typical meteorological year for a location in the
// given output format.
func (c *Client) TMY(ctx context.Context, lat, lon float64, format string) ([]byte, error) {
	switch format {
	case FormatEPW, FormatCSV:
	default:
		return nil, fmt.Errorf("unsupported PVGIS output format %q", format)
	}

	params := url.Values{
		"lat":          {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":          {strconv.FormatFloat(lon, 'f', -1, 64)},
		"outputformat": {format},
	}

	c.logger.Info("requesting typical meteorological year", "lat", lat, "lon", lon, "format", format)
	body, err := c.fetcher.Get(ctx, c.baseURL+"/tmy?"+params.Encode())
	if err != nil {
		return nil, apiError(err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("pvgis tmy %s: empty response", format)
	}
	return body, nil
}

// apiError surfaces the "message" field PVGIS puts in error bodies.
func apiError(err error) error {
	var se *download.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("pvgis tmy: %w", err)
	}
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(se.Body, &body) == nil && body.Message != "" {
		return fmt.Errorf("pvgis API error: status %d: %s: %w", se.StatusCode, body.Message, err)
	}
	return fmt.Errorf("pvgis API error: %w", err)
}
