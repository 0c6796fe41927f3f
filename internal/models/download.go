package models

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/dustin/go-humanize"
)

// Repository serves files from the public EnergyPlus repository.
type Repository interface {
	Fetch(ctx context.Context, kind domain.FileKind, name, version string) ([]byte, string, error)
	FetchAtTag(ctx context.Context, kind domain.FileKind, name, tag string) ([]byte, error)
}

// DownloadRequest selects one repository file.
type DownloadRequest struct {
	Kind domain.FileKind
	Name string
	Dir  string
	// Version is the engine version used to derive tag candidates.
	Version string
	// Tag, when set, is the only ref tried.
	Tag string
	// Force replaces an existing local file.
	Force bool
	// SetVersion rewrites the downloaded model's version header.
	SetVersion string
}

// Downloaded describes a local copy of a repository file.
type Downloaded struct {
	Path string
	Tag  string
	Size int64
	// Existing is true when the file was already present and left alone.
	Existing bool
	// ModelVersion is the version header of a model file, if readable.
	ModelVersion string
}

// Manager downloads models and weather files into local directories.
type Manager struct {
	repo   Repository
	logger *slog.Logger
}

// NewManager creates a Manager backed by repo.
func NewManager(repo Repository, logger *slog.Logger) *Manager {
	return &Manager{repo: repo, logger: logger}
}

// Download fetches req.Name into req.Dir unless it is already there.
func (m *Manager) Download(ctx context.Context, req DownloadRequest) (Downloaded, error) {
	if req.Kind == "" {
		req.Kind = domain.KindModel
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || filepath.Base(name) != name {
		return Downloaded{}, fmt.Errorf("invalid file name %q", req.Name)
	}
	if req.Kind == domain.KindModel && !strings.EqualFold(filepath.Ext(name), idfExt) {
		name += idfExt
	}
	if req.Tag == "" && req.Version == "" {
		return Downloaded{}, fmt.Errorf("download %s: a tag or an engine version is required", name)
	}

	path := filepath.Join(req.Dir, name)
	if fi, err := os.Stat(path); err == nil && !req.Force {
		m.logger.Info("file already exists", "path", path)
		out := Downloaded{Path: path, Size: fi.Size(), Existing: true}
		m.readModelVersion(req.Kind, &out)
		return out, nil
	}

	var (
		body []byte
		tag  = req.Tag
		err  error
	)
	if tag != "" {
		body, err = m.repo.FetchAtTag(ctx, req.Kind, name, tag)
	} else {
		body, tag, err = m.repo.Fetch(ctx, req.Kind, name, req.Version)
	}
	if err != nil {
		return Downloaded{}, err
	}

	if req.Kind == domain.KindModel && req.SetVersion != "" {
		rewritten, err := domain.RewriteModelVersion(string(body), req.SetVersion)
		if err != nil {
			return Downloaded{}, fmt.Errorf("set version of %s: %w", name, err)
		}
		body = []byte(rewritten)
	}

	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return Downloaded{}, fmt.Errorf("create %s: %w", req.Dir, err)
	}
	if err := writeFileAtomic(path, body); err != nil {
		return Downloaded{}, fmt.Errorf("write %s: %w", path, err)
	}
	m.logger.Info("saved file", "path", path, "tag", tag, "size", humanize.Bytes(uint64(len(body))))

	out := Downloaded{Path: path, Tag: tag, Size: int64(len(body))}
	m.readModelVersion(req.Kind, &out)
	return out, nil
}

func (m *Manager) readModelVersion(kind domain.FileKind, d *Downloaded) {
	if kind != domain.KindModel {
		return
	}
	v, err := ReadVersion(d.Path)
	if err != nil {
		m.logger.Warn("could not read model version", "path", d.Path, "error", err)
		return
	}
	d.ModelVersion = v
}
