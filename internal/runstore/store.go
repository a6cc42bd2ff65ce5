package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dima/internal/config"
)

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	timeLayout = time.RFC3339Nano
)

// Open initializes or connects to the run database inside the workspace.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.WorkspaceDir, "runs.db"))
}

// OpenPath initializes or connects to the run database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(timeLayout, value)
}

// CreateRun inserts a new run in StateRunning.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.State == "" {
		run.State = StateRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	return s.execWithRetry(ctx,
		"INSERT INTO runs (id, pipeline, state, error_message, started_at) VALUES (?, ?, ?, ?, ?)",
		run.ID, run.Pipeline, run.State, run.ErrorMessage, formatTime(run.StartedAt),
	)
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(ctx context.Context, runID, state, errorMessage string) error {
	now := time.Now().UTC()
	return s.execWithRetry(ctx,
		"UPDATE runs SET state = ?, error_message = ?, finished_at = ? WHERE id = ?",
		state, errorMessage, formatTime(now), runID,
	)
}

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT id, pipeline, state, error_message, started_at, finished_at FROM runs WHERE id = ?",
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %q not found", runID)
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// returns everything.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := "SELECT id, pipeline, state, error_message, started_at, finished_at FROM runs ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Pipeline, &run.State, &run.ErrorMessage, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	started, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse run started_at: %w", err)
	}
	run.StartedAt = started
	if finishedAt.Valid {
		finished, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse run finished_at: %w", err)
		}
		run.FinishedAt = &finished
	}
	return &run, nil
}

// RecordStageResult appends one stage execution to a run's history.
func (s *Store) RecordStageResult(ctx context.Context, result *StageResult) error {
	if result.RunID == "" || result.Stage == "" {
		return errors.New("stage result needs run id and stage")
	}
	return s.execWithRetry(ctx,
		"INSERT INTO stage_results (run_id, stage, status, detail, error_message, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		result.RunID, result.Stage, result.Status, result.Detail, result.ErrorMessage,
		formatTime(result.StartedAt), formatTime(result.FinishedAt),
	)
}

// StageResults returns a run's stage executions in execution order.
func (s *Store) StageResults(ctx context.Context, runID string) ([]StageResult, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, stage, status, detail, error_message, started_at, finished_at FROM stage_results WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stage results: %w", err)
	}
	defer rows.Close()

	var results []StageResult
	for rows.Next() {
		var (
			result     StageResult
			startedAt  string
			finishedAt string
		)
		if err := rows.Scan(&result.ID, &result.RunID, &result.Stage, &result.Status,
			&result.Detail, &result.ErrorMessage, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if result.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse stage started_at: %w", err)
		}
		if result.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, fmt.Errorf("parse stage finished_at: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// SaveCheckpoint upserts the run's latest context checkpoint, taken after
// the named stage merged its outputs.
func (s *Store) SaveCheckpoint(ctx context.Context, runID, stage string, payload []byte) error {
	return s.execWithRetry(ctx,
		`INSERT INTO context_checkpoints (run_id, stage, payload, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET stage = excluded.stage, payload = excluded.payload, created_at = excluded.created_at`,
		runID, stage, string(payload), formatTime(time.Now()),
	)
}

// LatestCheckpoint returns the run's most recent context checkpoint and the
// stage it was taken after. Missing checkpoints return sql.ErrNoRows.
func (s *Store) LatestCheckpoint(ctx context.Context, runID string) ([]byte, string, error) {
	ctx = ensureContext(ctx)
	var (
		payload string
		stage   string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, stage FROM context_checkpoints WHERE run_id = ?",
		runID,
	).Scan(&payload, &stage)
	if err != nil {
		return nil, "", err
	}
	return []byte(payload), stage, nil
}
