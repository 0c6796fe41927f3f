// Package sqlite stores simulation run history in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/adapter/sqlite/migrations"
	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ErrDuplicateRun is returned when a run ID is recorded twice.
var ErrDuplicateRun = errors.New("run already recorded")

// Store persists run results.
type Store struct {
	sqlDB *sql.DB
}

// Summary aggregates all recorded runs.
type Summary struct {
	Total   int
	Passed  int
	Failed  int
	LastRun time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path, creating it if needed, and applies
// embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history database path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record inserts one run result.
func (s *Store) Record(ctx context.Context, r domain.RunResult) error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO runs (
		   id, batch_id, model, weather, output_dir, status, exit_code, failure,
		   warnings, severe, fatal, completed, engine_version,
		   started_at, finished_at, duration_ms
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BatchID, r.Model, r.Weather, r.OutputDir, string(r.Status), r.ExitCode, r.Failure,
		r.Diagnostics.Warnings, r.Diagnostics.Severe, r.Diagnostics.Fatal, boolToInt(r.Diagnostics.Completed),
		r.EngineVersion, toMillis(r.StartedAt), toMillis(r.FinishedAt), r.Duration.Milliseconds(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, r.ID)
	}
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.RunResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, batch_id, model, weather, output_dir, status, exit_code, failure,
		        warnings, severe, fatal, completed, engine_version,
		        started_at, finished_at, duration_ms
		   FROM runs
		  ORDER BY finished_at DESC, id
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunResult
	for rows.Next() {
		var r domain.RunResult
		var status string
		var completed int
		var startedAt, finishedAt, duration int64
		if err := rows.Scan(
			&r.ID, &r.BatchID, &r.Model, &r.Weather, &r.OutputDir, &status, &r.ExitCode, &r.Failure,
			&r.Diagnostics.Warnings, &r.Diagnostics.Severe, &r.Diagnostics.Fatal, &completed, &r.EngineVersion,
			&startedAt, &finishedAt, &duration,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = domain.RunStatus(status)
		r.Diagnostics.Completed = completed != 0
		r.Diagnostics.ProgramVersion = r.EngineVersion
		r.StartedAt = fromMillis(startedAt)
		r.FinishedAt = fromMillis(finishedAt)
		r.Duration = time.Duration(duration) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Summarize counts recorded runs by status.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var (
		sum  Summary
		last sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        MAX(finished_at)
		   FROM runs`,
		string(domain.StatusPassed), string(domain.StatusFailed),
	).Scan(&sum.Total, &sum.Passed, &sum.Failed, &last)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize runs: %w", err)
	}
	if last.Valid {
		sum.LastRun = fromMillis(last.Int64)
	}
	return sum, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
