// Package openmeteo fetches hourly historical weather from the Open-Meteo archive API.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/eplus-toolkit/internal/adapter/download"
	"github.com/couchcryptid/eplus-toolkit/internal/config"
	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/couchcryptid/eplus-toolkit/internal/observability"
)

const source = "open-meteo"

// Client queries the archive endpoint.
type Client struct {
	fetcher *download.Fetcher
	baseURL string
	logger  *slog.Logger
}

// NewClient creates an archive client using the weather timeout.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		fetcher: download.NewFetcher(source, cfg.WeatherTimeout, metrics, logger),
		baseURL: cfg.OpenMeteoURL,
		logger:  logger,
	}
}

// Archive downloads every hourly variable between start and end (YYYY-MM-DD,
// inclusive) in a single request. Wind speed is requested in m/s.
func (c *Client) Archive(ctx context.Context, lat, lon float64, start, end string) (domain.OpenMeteoResponse, error) {
	params := url.Values{
		"latitude":        {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude":       {strconv.FormatFloat(lon, 'f', -1, 64)},
		"start_date":      {start},
		"end_date":        {end},
		"hourly":          {strings.Join(domain.HourlyVariables, ",")},
		"timezone":        {"auto"},
		"wind_speed_unit": {"ms"},
	}

	c.logger.Info("requesting weather archive", "lat", lat, "lon", lon, "start", start, "end", end)
	body, err := c.fetcher.Get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return domain.OpenMeteoResponse{}, apiError(err)
	}

	resp, err := domain.ParseOpenMeteo(body)
	if err != nil {
		return domain.OpenMeteoResponse{}, err
	}
	if len(resp.Hourly.Time) == 0 {
		return domain.OpenMeteoResponse{}, fmt.Errorf("open-meteo archive %s to %s: %w", start, end, domain.ErrNoHourlyData)
	}
	return resp, nil
}

// apiError surfaces the "reason" field Open-Meteo puts in error bodies.
func apiError(err error) error {
	var se *download.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("open-meteo archive: %w", err)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if json.Unmarshal(se.Body, &body) == nil && body.Reason != "" {
		return fmt.Errorf("open-meteo API error: status %d: %s: %w", se.StatusCode, body.Reason, err)
	}
	return fmt.Errorf("open-meteo API error: %w", err)
}
