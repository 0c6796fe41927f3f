// Package github downloads example models, weather files, and transition
// tools from the public EnergyPlus repository.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/couchcryptid/eplus-toolkit/internal/adapter/download"
	"github.com/couchcryptid/eplus-toolkit/internal/config"
	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/couchcryptid/eplus-toolkit/internal/observability"
)

const source = "github"

// Client fetches raw repository files and release assets.
type Client struct {
	fetcher     *download.Fetcher
	rawURL      string
	releasesURL string
	tags        *releaseTags
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates a repository client from the configured URLs.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		fetcher:     download.NewFetcher(source, cfg.HTTPTimeout, metrics, logger),
		rawURL:      cfg.GitHubRawURL,
		releasesURL: cfg.GitHubReleasesURL,
		tags:        newReleaseTags(cfg.TagCacheSize),
		metrics:     metrics,
		logger:      logger,
	}
}

// FetchAtTag downloads one file from the repository at an explicit tag or branch.
func (c *Client) FetchAtTag(ctx context.Context, kind domain.FileKind, name, tag string) ([]byte, error) {
	u := fmt.Sprintf("%s/%s/%s/%s", c.rawURL, url.PathEscape(tag), kind, url.PathEscape(name))
	body, err := c.fetcher.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("download %s at %s: %w", name, tag, err)
	}
	return body, nil
}

// Fetch downloads a file for an engine version, trying each tag candidate
// in order. A release tag that worked before for the same version is tried
// first; develop is always tried last. It returns the content and the tag
// that served it.
func (c *Client) Fetch(ctx context.Context, kind domain.FileKind, name, version string) ([]byte, string, error) {
	candidates, hit := c.tags.candidates(version)
	if hit {
		c.metrics.TagCache.WithLabelValues("hit").Inc()
	} else {
		c.metrics.TagCache.WithLabelValues("miss").Inc()
	}

	var lastErr error
	for _, tag := range candidates {
		body, err := c.FetchAtTag(ctx, kind, name, tag)
		if err == nil {
			c.tags.remember(version, tag)
			c.logger.Info("downloaded file", "name", name, "tag", tag, "version", version)
			return body, tag, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		c.logger.Debug("tag did not serve file", "name", name, "tag", tag, "error", err)
		lastErr = err
	}
	return nil, "", fmt.Errorf("no tag in [%s] serves %s/%s: %w", strings.Join(candidates, ", "), kind, name, lastErr)
}

// FetchTransitionTool downloads the executable for one upgrade step from
// the target version's release assets.
func (c *Client) FetchTransitionTool(ctx context.Context, t domain.Transition, goos string) ([]byte, error) {
	exe := t.ToolName(goos)
	tag := "v" + t.To.String()
	urls := []string{
		fmt.Sprintf("%s/%s/%s", c.releasesURL, tag, exe),
		fmt.Sprintf("%s/%s/PreProcess/%s", c.releasesURL, tag, exe),
	}

	var errs []error
	for _, u := range urls {
		body, err := c.fetcher.Get(ctx, u)
		if err == nil {
			c.logger.Info("downloaded transition tool", "tool", exe, "tag", tag)
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("download %s: %w", exe, errors.Join(errs...))
}
