package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists build history in a SQLite database, by default at
// <project>/.assetweaver/state.db.
//
// Each run is one row in runs; each terminal chain outcome is one row in
// chain_results. Writes are serialized through a single connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (and if necessary creates) the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("state: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	PRAGMA journal_mode = WAL;
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		mode TEXT NOT NULL,
		graph_hash TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		failure_class TEXT,
		failure_chain TEXT,
		error_code TEXT,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS chain_results (
		run_id TEXT NOT NULL REFERENCES runs(id),
		chain TEXT NOT NULL,
		state TEXT NOT NULL,
		hash TEXT NOT NULL DEFAULT '',
		from_cache INTEGER NOT NULL DEFAULT 0,
		changed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, chain)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("state: init schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun inserts a new running Run and returns it.
func (s *Store) StartRun(ctx context.Context, task string, mode ExecutionMode, graphHash string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Task:      task,
		Mode:      mode,
		GraphHash: graphHash,
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
	}
	if err := run.Validate(); err != nil {
		return Run{}, fmt.Errorf("state: invalid run: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, task, mode, graph_hash, started_at, status) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Task, string(run.Mode), run.GraphHash, formatTime(run.StartedAt), string(run.Status),
	)
	if err != nil {
		return Run{}, fmt.Errorf("state: insert run: %w", err)
	}
	return run, nil
}

// RecordChain stores the terminal outcome of one chain. Recording the same
// chain twice for a run replaces the earlier row.
func (s *Store) RecordChain(ctx context.Context, rec ChainRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("state: invalid chain record: %w", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chain_results (run_id, chain, state, hash, from_cache, changed, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Chain, rec.State, rec.Hash, boolToInt(rec.FromCache), rec.Changed, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("state: insert chain result: %w", err)
	}
	return nil
}

// FinishRun marks the run terminal. failure must be non-nil for RunFailed
// and RunAborted.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus, failure *Failure) error {
	switch status {
	case RunSucceeded:
		failure = nil
	case RunFailed, RunAborted:
		if failure == nil {
			return fmt.Errorf("state: status %q requires a failure", status)
		}
		if err := failure.Validate(); err != nil {
			return fmt.Errorf("state: invalid failure: %w", err)
		}
	default:
		return fmt.Errorf("state: %q is not a terminal status", status)
	}

	var class, chain, code, msg sql.NullString
	if failure != nil {
		class = nullString(string(failure.Class))
		chain = nullString(failure.Chain)
		code = nullString(failure.Code)
		msg = nullString(failure.Message)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, failure_class = ?, failure_chain = ?, error_code = ?, error_message = ?
		 WHERE id = ? AND status = ?`,
		formatTime(time.Now().UTC()), string(status), class, chain, code, msg, runID, string(RunRunning),
	)
	if err != nil {
		return fmt.Errorf("state: finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("state: finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("state: run %q not found or already finished", runID)
	}
	return nil
}

const runColumns = `id, task, mode, graph_hash, started_at, finished_at, status, failure_class, failure_chain, error_code, error_message`

// LatestRun returns the most recently started run, or nil if there is none.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.RecentRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("state: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state: query runs: %w", err)
	}
	return runs, nil
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("state: run %q not found", runID)
	}
	return r, err
}

// ChainRecords returns the chain outcomes of a run sorted by chain name.
func (s *Store) ChainRecords(ctx context.Context, runID string) ([]ChainRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, chain, state, hash, from_cache, changed, error FROM chain_results WHERE run_id = ? ORDER BY chain`, runID)
	if err != nil {
		return nil, fmt.Errorf("state: query chain results: %w", err)
	}
	defer rows.Close()

	var out []ChainRecord
	for rows.Next() {
		var rec ChainRecord
		var fromCache int
		if err := rows.Scan(&rec.RunID, &rec.Chain, &rec.State, &rec.Hash, &fromCache, &rec.Changed, &rec.Error); err != nil {
			return nil, fmt.Errorf("state: scan chain result: %w", err)
		}
		rec.FromCache = fromCache != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state: query chain results: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var mode, status, started string
	var finished, class, chain, code, msg sql.NullString
	if err := sc.Scan(&r.ID, &r.Task, &mode, &r.GraphHash, &started, &finished, &status, &class, &chain, &code, &msg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("state: scan run: %w", err)
	}
	r.Mode = ExecutionMode(mode)
	r.Status = RunStatus(status)

	t, err := parseTime(started)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = t
	if finished.Valid {
		ft, err := parseTime(finished.String)
		if err != nil {
			return Run{}, err
		}
		r.FinishedAt = &ft
	}
	if class.Valid {
		r.Failure = &Failure{
			Class:   FailureClass(class.String),
			Chain:   chain.String,
			Code:    code.String,
			Message: msg.String,
		}
	}
	return r, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("state: parse time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
