// Package weather downloads weather data for a location, converts it to the
// engine's EPW format, and keeps model run periods in step with it.
package weather

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/dustin/go-humanize"
)

// Sources accepted by Request.Source.
const (
	SourceAuto      = "auto"
	SourceOpenMeteo = "open-meteo"
	SourcePVGIS     = "pvgis"
)

// PVGIS output formats written for a TMY download.
const (
	formatEPW = "epw"
	formatCSV = "csv"
)

// ErrInvalidRequest is returned for requests that cannot be served.
var ErrInvalidRequest = errors.New("invalid weather request")

// ArchiveClient serves historical hourly data for a date range.
type ArchiveClient interface {
	Archive(ctx context.Context, lat, lon float64, start, end string) (domain.OpenMeteoResponse, error)
}

// TMYClient serves typical meteorological year files.
type TMYClient interface {
	TMY(ctx context.Context, lat, lon float64, format string) ([]byte, error)
}

// Request selects what to download. Start and End select a date range;
// leaving both empty selects a TMY.
type Request struct {
	Lat    float64
	Lon    float64
	Start  string
	End    string
	Source string
	OutDir string
	// UpdateIDF names a model whose RunPeriod is rewritten to the EPW's dates.
	UpdateIDF string
}

// Result lists the files written.
type Result struct {
	Source string
	Files  []string
	EPW    string
	// Period and Replaced are set when a model was updated.
	Period   domain.RunPeriod
	Replaced int
}

// Service downloads and converts weather data.
type Service struct {
	archive ArchiveClient
	tmy     TMYClient
	logger  *slog.Logger
}

// NewService creates a Service from its two providers.
func NewService(archive ArchiveClient, tmy TMYClient, logger *slog.Logger) *Service {
	return &Service{archive: archive, tmy: tmy, logger: logger}
}

// Download fetches weather for req and writes it under req.OutDir.
func (s *Service) Download(ctx context.Context, req Request) (Result, error) {
	source, err := resolveSource(req)
	if err != nil {
		return Result{}, err
	}
	if err := validateLocation(req.Lat, req.Lon); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create %s: %w", req.OutDir, err)
	}

	var res Result
	switch source {
	case SourceOpenMeteo:
		res, err = s.downloadArchive(ctx, req)
	default:
		res, err = s.downloadTMY(ctx, req)
	}
	if err != nil {
		return Result{}, err
	}
	res.Source = source

	if req.UpdateIDF != "" {
		period, n, err := SyncIDF(res.EPW, req.UpdateIDF)
		if err != nil {
			return res, fmt.Errorf("update %s: %w", req.UpdateIDF, err)
		}
		res.Period, res.Replaced = period, n
		s.logger.Info("run period updated", "model", req.UpdateIDF, "period", period.String(), "replaced", n)
	}
	return res, nil
}

func (s *Service) downloadArchive(ctx context.Context, req Request) (Result, error) {
	_, _, available, err := domain.ValidateArchiveRange(req.Start, req.End)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !available {
		s.logger.Warn("end date is within the archive delay; recent hours may be missing",
			"end", req.End, "delay", domain.ArchiveLag)
	}

	resp, err := s.archive.Archive(ctx, req.Lat, req.Lon, req.Start, req.End)
	if err != nil {
		return Result{}, err
	}

	stem := fmt.Sprintf("lat%s_lon%s_%s_%s", coord(req.Lat), coord(req.Lon), req.Start, req.End)
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Raw, "", "  "); err != nil {
		return Result{}, fmt.Errorf("format archive json: %w", err)
	}
	csvData, err := domain.ConvertToCSV(resp)
	if err != nil {
		return Result{}, err
	}
	epwData, err := domain.ConvertToEPW(resp)
	if err != nil {
		return Result{}, err
	}

	res := Result{}
	for _, f := range []struct {
		name string
		data []byte
	}{
		{"openmeteo_" + stem + ".json", pretty.Bytes()},
		{"weather_" + stem + ".csv", csvData},
		{"weather_" + stem + ".epw", epwData},
	} {
		p, err := s.save(req.OutDir, f.name, f.data)
		if err != nil {
			return Result{}, err
		}
		res.Files = append(res.Files, p)
	}
	res.EPW = res.Files[len(res.Files)-1]
	return res, nil
}

func (s *Service) downloadTMY(ctx context.Context, req Request) (Result, error) {
	stem := fmt.Sprintf("TMY_lat%s_lon%s", coord(req.Lat), coord(req.Lon))
	res := Result{}
	for _, format := range []string{formatEPW, formatCSV} {
		body, err := s.tmy.TMY(ctx, req.Lat, req.Lon, format)
		if err != nil {
			if format == formatEPW {
				return Result{}, err
			}
			s.logger.Warn("tmy csv download failed", "error", err)
			continue
		}
		p, err := s.save(req.OutDir, stem+"."+format, body)
		if err != nil {
			return Result{}, err
		}
		res.Files = append(res.Files, p)
		if format == formatEPW {
			res.EPW = p
		}
	}
	return res, nil
}

func (s *Service) save(dir, name string, data []byte) (string, error) {
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	s.logger.Info("saved weather file", "path", p, "size", humanize.Bytes(uint64(len(data))))
	return p, nil
}

// SyncIDF rewrites every RunPeriod in the model at idfPath to the date
// range covered by the EPW file at epwPath.
func SyncIDF(epwPath, idfPath string) (domain.RunPeriod, int, error) {
	f, err := os.Open(epwPath)
	if err != nil {
		return domain.RunPeriod{}, 0, err
	}
	period, err := domain.EPWDateRange(f)
	_ = f.Close()
	if err != nil {
		return domain.RunPeriod{}, 0, fmt.Errorf("%s: %w", epwPath, err)
	}

	fi, err := os.Stat(idfPath)
	if err != nil {
		return domain.RunPeriod{}, 0, err
	}
	content, err := os.ReadFile(idfPath)
	if err != nil {
		return domain.RunPeriod{}, 0, err
	}
	updated, n, err := domain.RewriteRunPeriod(string(content), period)
	if err != nil {
		return domain.RunPeriod{}, 0, err
	}
	if err := os.WriteFile(idfPath, []byte(updated), fi.Mode().Perm()); err != nil {
		return domain.RunPeriod{}, 0, err
	}
	return period, n, nil
}

func resolveSource(req Request) (string, error) {
	dated := req.Start != "" || req.End != ""
	if dated && (req.Start == "" || req.End == "") {
		return "", fmt.Errorf("%w: both start and end dates are required", ErrInvalidRequest)
	}
	switch req.Source {
	case "", SourceAuto:
		if dated {
			return SourceOpenMeteo, nil
		}
		return SourcePVGIS, nil
	case SourceOpenMeteo:
		if !dated {
			return "", fmt.Errorf("%w: open-meteo needs start and end dates", ErrInvalidRequest)
		}
		return SourceOpenMeteo, nil
	case SourcePVGIS:
		if dated {
			return "", fmt.Errorf("%w: pvgis serves only typical meteorological years, not date ranges", ErrInvalidRequest)
		}
		return SourcePVGIS, nil
	default:
		return "", fmt.Errorf("%w: unknown source %q", ErrInvalidRequest, req.Source)
	}
}

func validateLocation(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %g out of range", ErrInvalidRequest, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %g out of range", ErrInvalidRequest, lon)
	}
	return nil
}

// coord formats a coordinate for file names, always with a decimal point
// ("41.0", "-87.63"), matching files written by earlier downloads.
func coord(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
