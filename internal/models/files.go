// Package models manages EnergyPlus model files on disk: downloading them
// from the public repository, rewriting their version header, sorting them
// by compatibility with the installed engine, and upgrading them with the
// engine's transition tools.
package models

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/eplus-toolkit/internal/domain"
)

const (
	idfExt        = ".idf"
	backupMarker  = ".backup"
	higherDirName = "higher_version"
)

// ReadVersion returns the version declared in the model file at path.
func ReadVersion(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	v, err := domain.ReadModelVersion(string(b))
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// SetVersion rewrites the version header of the model at path. The original
// is kept as path+".backup" unless that backup already exists. It returns
// the version that was replaced.
func SetVersion(path, version string) (string, error) {
	if _, err := domain.ParseVersion(version); err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(b)
	old, err := domain.ReadModelVersion(content)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	updated, err := domain.RewriteModelVersion(content, version)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if err := copyIfMissing(path, path+backupMarker); err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	if err := writeFileAtomic(path, []byte(updated)); err != nil {
		return "", err
	}
	return old, nil
}

// ModelInfo is one model file and how it relates to the engine version.
type ModelInfo struct {
	Path    string
	Name    string
	Version string
	Compat  domain.Compatibility
}

// FindModels lists the .idf files directly inside dir, sorted by name. A
// missing directory yields no files.
func FindModels(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), idfExt) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Scan reads the version of every model in dirs and classifies it against
// engineVersion. Unreadable versions are reported as unknown.
func Scan(dirs []string, engineVersion string) ([]ModelInfo, error) {
	var out []ModelInfo
	for _, dir := range dirs {
		paths, err := FindModels(dir)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			info := ModelInfo{Path: p, Name: filepath.Base(p), Compat: domain.CompatUnknown}
			if v, err := ReadVersion(p); err == nil {
				info.Version = v
				info.Compat = domain.CompareVersions(v, engineVersion)
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Move relocates one model during organize.
type Move struct {
	Model ModelInfo
	To    string
}

// OrganizePlan sorts the models of one directory by compatibility. Newer
// models move to a sibling "higher_version" directory, older ones to a
// sibling "need_update_to_<X>_<Y>v" directory.
type OrganizePlan struct {
	EngineVersion string
	HigherDir     string
	UpdateDir     string
	Matching      []ModelInfo
	Unknown       []ModelInfo
	Higher        []Move
	Lower         []Move
}

// PlanOrganize builds the plan without touching the filesystem.
func PlanOrganize(modelDir, engineVersion string) (OrganizePlan, error) {
	ev, err := domain.ParseVersion(engineVersion)
	if err != nil {
		return OrganizePlan{}, err
	}
	parent := filepath.Dir(filepath.Clean(modelDir))
	plan := OrganizePlan{
		EngineVersion: engineVersion,
		HigherDir:     filepath.Join(parent, higherDirName),
		UpdateDir:     filepath.Join(parent, UpdateDirName(ev)),
	}

	infos, err := Scan([]string{modelDir}, engineVersion)
	if err != nil {
		return OrganizePlan{}, err
	}
	for _, info := range infos {
		switch info.Compat {
		case domain.CompatMatch:
			plan.Matching = append(plan.Matching, info)
		case domain.CompatNewer:
			plan.Higher = append(plan.Higher, Move{Model: info, To: filepath.Join(plan.HigherDir, info.Name)})
		case domain.CompatOlder:
			plan.Lower = append(plan.Lower, Move{Model: info, To: filepath.Join(plan.UpdateDir, info.Name)})
		default:
			plan.Unknown = append(plan.Unknown, info)
		}
	}
	return plan, nil
}

// Apply performs the planned moves.
func (p OrganizePlan) Apply() error {
	for _, group := range []struct {
		dir   string
		moves []Move
	}{{p.HigherDir, p.Higher}, {p.UpdateDir, p.Lower}} {
		if len(group.moves) == 0 {
			continue
		}
		if err := os.MkdirAll(group.dir, 0o755); err != nil {
			return err
		}
		for _, m := range group.moves {
			if err := moveFile(m.Model.Path, m.To); err != nil {
				return fmt.Errorf("move %s: %w", m.Model.Name, err)
			}
		}
	}
	return nil
}

// UpdateDirName names the directory for models older than the engine,
// e.g. "need_update_to_23_2v".
func UpdateDirName(engine domain.Version) string {
	return fmt.Sprintf("need_update_to_%d_%dv", engine.Major, engine.Minor)
}

// Backup is a saved copy of a model made before it was rewritten.
type Backup struct {
	Path string
	Name string
	Size int64
	// Version is parsed from "<model>.idf.v<version>.backup" names and is
	// empty for plain ".backup" files.
	Version string
	// Original reports whether the model the backup was taken from still exists.
	Original bool
}

// Backups lists backup files in dir.
func Backups(dir string) ([]Backup, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Backup
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), backupMarker) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		b := Backup{Path: filepath.Join(dir, e.Name()), Name: e.Name(), Size: fi.Size()}
		if model, rest, ok := strings.Cut(e.Name(), idfExt+"."); ok {
			if v, ok := strings.CutSuffix(rest, backupMarker); ok {
				b.Version = strings.TrimPrefix(v, "v")
			}
			_, statErr := os.Stat(filepath.Join(dir, model+idfExt))
			b.Original = statErr == nil
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteBackups removes the given backups and stops at the first failure.
func DeleteBackups(backups []Backup) error {
	for _, b := range backups {
		if err := os.Remove(b.Path); err != nil {
			return err
		}
	}
	return nil
}

func copyIfMissing(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// moveFile renames src to dst, copying across filesystems when needed.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// writeFileAtomic replaces path through a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
