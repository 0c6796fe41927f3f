package models

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func modelText(version string) string {
	return "! test model\n  Version,\n    " + version + ";                    !- Version Identifier\n\nBuilding,\n  Test;\n"
}

func writeModel(t *testing.T, dir, name, version string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(modelText(version)), 0o644))
	return p
}

func TestSetVersion(t *testing.T) {
	dir := t.TempDir()
	p := writeModel(t, dir, "a.idf", "22.1")

	old, err := SetVersion(p, "23.2")
	require.NoError(t, err)
	assert.Equal(t, "22.1", old)

	v, err := ReadVersion(p)
	require.NoError(t, err)
	assert.Equal(t, "23.2", v)

	backup, err := os.ReadFile(p + ".backup")
	require.NoError(t, err)
	assert.Equal(t, modelText("22.1"), string(backup))

	// A second rewrite keeps the first backup.
	_, err = SetVersion(p, "24.1")
	require.NoError(t, err)
	backup, err = os.ReadFile(p + ".backup")
	require.NoError(t, err)
	assert.Equal(t, modelText("22.1"), string(backup))
}

func TestSetVersion_Errors(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "noversion.idf")
	require.NoError(t, os.WriteFile(p, []byte("Building,\n  Test;\n"), 0o644))

	_, err := SetVersion(p, "23.2")
	require.ErrorIs(t, err, domain.ErrVersionNotFound)

	_, err = SetVersion(p, "latest")
	require.ErrorIs(t, err, domain.ErrInvalidVersion)

	_, err = os.Stat(p + ".backup")
	assert.True(t, os.IsNotExist(err))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "match.idf", "23.2")
	writeModel(t, dir, "old.idf", "22.1")
	writeModel(t, dir, "new.idf", "24.1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.idf"), []byte("Building,x;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("Version,22.1;"), 0o644))

	infos, err := Scan([]string{dir, filepath.Join(dir, "missing")}, "23.2.0")
	require.NoError(t, err)

	got := map[string]domain.Compatibility{}
	for _, i := range infos {
		got[i.Name] = i.Compat
	}
	assert.Equal(t, map[string]domain.Compatibility{
		"broken.idf": domain.CompatUnknown,
		"match.idf":  domain.CompatMatch,
		"new.idf":    domain.CompatNewer,
		"old.idf":    domain.CompatOlder,
	}, got)
}

func TestPlanOrganize_DryRunThenApply(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "models")
	writeModel(t, modelDir, "match.idf", "23.2")
	writeModel(t, modelDir, "old.idf", "22.2")
	writeModel(t, modelDir, "new.idf", "25.1")

	plan, err := PlanOrganize(modelDir, "23.2.0")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "higher_version"), plan.HigherDir)
	assert.Equal(t, filepath.Join(root, "need_update_to_23_2v"), plan.UpdateDir)
	require.Len(t, plan.Matching, 1)
	require.Len(t, plan.Higher, 1)
	require.Len(t, plan.Lower, 1)
	assert.Equal(t, filepath.Join(root, "higher_version", "new.idf"), plan.Higher[0].To)

	// Planning alone changes nothing.
	_, err = os.Stat(plan.HigherDir)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, plan.Apply())
	assert.FileExists(t, filepath.Join(root, "higher_version", "new.idf"))
	assert.FileExists(t, filepath.Join(root, "need_update_to_23_2v", "old.idf"))
	assert.FileExists(t, filepath.Join(modelDir, "match.idf"))
	assert.NoFileExists(t, filepath.Join(modelDir, "new.idf"))
	assert.NoFileExists(t, filepath.Join(modelDir, "old.idf"))
}

func TestPlanOrganize_InvalidEngineVersion(t *testing.T) {
	_, err := PlanOrganize(t.TempDir(), "unknown")
	require.ErrorIs(t, err, domain.ErrInvalidVersion)
}

func TestBackups(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "a.idf", "23.2")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.idf.v22.1.backup"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.idf.backup"), []byte("xy"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gone.idf.v22.2.backup"), []byte("xyz"), 0o644))

	backups, err := Backups(dir)
	require.NoError(t, err)
	require.Len(t, backups, 3)

	assert.Equal(t, Backup{Path: filepath.Join(dir, "a.idf.backup"), Name: "a.idf.backup", Size: 2, Original: true}, backups[0])
	assert.Equal(t, "22.1", backups[1].Version)
	assert.True(t, backups[1].Original)
	assert.Equal(t, "22.2", backups[2].Version)
	assert.False(t, backups[2].Original)

	require.NoError(t, DeleteBackups(backups))
	left, err := Backups(dir)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.FileExists(t, filepath.Join(dir, "a.idf"))
}
