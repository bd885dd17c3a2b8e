// =============================================================================
// talktime - Run History Store
// =============================================================================
//
// This module persists pipeline run history and stage fingerprints in a
// SQLite database. A single connection serializes writers.
//
// =============================================================================

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Stage statuses.
const (
	StageRan     = "ran"
	StageCached  = "cached"
	StageSkipped = "skipped"
	StageFailed  = "failed"
)

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for runs and stage outcomes.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			window_start TEXT,
			window_end TEXT,
			cache_policy TEXT,
			status TEXT NOT NULL,
			ledger TEXT,
			error TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS stage_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			output TEXT,
			status TEXT NOT NULL,
			row_count INTEGER,
			fingerprint TEXT,
			elapsed_ms INTEGER,
			error TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_stage_runs_stage ON stage_runs(stage, output);`,
		`CREATE INDEX IF NOT EXISTS idx_stage_runs_run ON stage_runs(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Run is one pipeline invocation.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  *time.Time
	WindowStart string
	WindowEnd   string
	CachePolicy string
	Status      string
	Ledger      string
	Error       string
}

// StageRun is the outcome of one stage within a run.
type StageRun struct {
	RunID       string
	Stage       string
	Output      string
	Status      string
	Rows        int
	Fingerprint string
	Elapsed     time.Duration
	Error       string
	CreatedAt   time.Time
}

// StartRun inserts r with status running.
func (s *Store) StartRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs(run_id, started_at, window_start, window_end, cache_policy, status)
		VALUES(?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(timeLayout), r.WindowStart, r.WindowEnd, r.CachePolicy, RunRunning)
	return err
}

// FinishRun marks a run succeeded, or failed when runErr is non-nil.
func (s *Store) FinishRun(ctx context.Context, id, ledger string, runErr error, finishedAt time.Time) error {
	status, msg := RunSucceeded, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at=?, status=?, ledger=?, error=? WHERE run_id=?`,
		finishedAt.UTC().Format(timeLayout), status, ledger, msg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: no such run", id)
	}
	return nil
}

// RecordStage appends a stage outcome.
func (s *Store) RecordStage(ctx context.Context, st StageRun) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO stage_runs(run_id, stage, output, status, row_count, fingerprint, elapsed_ms, error, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.RunID, st.Stage, st.Output, st.Status, st.Rows, st.Fingerprint, st.Elapsed.Milliseconds(), st.Error,
		st.CreatedAt.UTC().Format(timeLayout))
	return err
}

// LastFingerprint returns the input fingerprint recorded by the most recent
// successful execution of stage writing output. ok is false when there is none.
func (s *Store) LastFingerprint(ctx context.Context, stage, output string) (fp string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT fingerprint FROM stage_runs
		WHERE stage=? AND output=? AND status IN (?, ?) AND fingerprint <> ''
		ORDER BY id DESC LIMIT 1`, stage, output, StageRan, StageCached)
	switch err := row.Scan(&fp); {
	case err == nil:
		return fp, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	default:
		return "", false, err
	}
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, started_at, finished_at, window_start, window_end, cache_policy, status, ledger, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		var finished, wStart, wEnd, policy, ledger, msg sql.NullString
		if err := rows.Scan(&r.ID, &started, &finished, &wStart, &wEnd, &policy, &r.Status, &ledger, &msg); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		if finished.Valid && finished.String != "" {
			t, err := time.Parse(timeLayout, finished.String)
			if err != nil {
				return nil, fmt.Errorf("run %s: %w", r.ID, err)
			}
			r.FinishedAt = &t
		}
		r.WindowStart, r.WindowEnd, r.CachePolicy = wStart.String, wEnd.String, policy.String
		r.Ledger, r.Error = ledger.String, msg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Stages returns the stage outcomes of a run in execution order.
func (s *Store) Stages(ctx context.Context, runID string) ([]StageRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, stage, output, status, row_count, fingerprint, elapsed_ms, error, created_at
		FROM stage_runs WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StageRun
	for rows.Next() {
		var st StageRun
		var output, fp, msg sql.NullString
		var n, ms sql.NullInt64
		var created string
		if err := rows.Scan(&st.RunID, &st.Stage, &output, &st.Status, &n, &fp, &ms, &msg, &created); err != nil {
			return nil, err
		}
		st.Output, st.Fingerprint, st.Error = output.String, fp.String, msg.String
		st.Rows = int(n.Int64)
		st.Elapsed = time.Duration(ms.Int64) * time.Millisecond
		if st.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
