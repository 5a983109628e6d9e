package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/s3repo/internal/db"
	"github.com/openmined/s3repo/internal/reconcile"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    command TEXT NOT NULL,
    source TEXT NOT NULL,
    target TEXT NOT NULL,
    dry_run BOOLEAN NOT NULL,
    started_at TEXT NOT NULL, -- RFC3339
    finished_at TEXT,
    status TEXT NOT NULL DEFAULT 'running',
    error TEXT
)`

const operationsSchema = `
CREATE TABLE IF NOT EXISTS operations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    kind TEXT NOT NULL,
    bucket TEXT NOT NULL,
    key TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    dry_run BOOLEAN NOT NULL,
    recorded_at TEXT NOT NULL
)`

const operationsIndex = `CREATE INDEX IF NOT EXISTS idx_operations_run ON operations(run_id)`

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is a row of the runs table.
type Run struct {
	RunID      string  `db:"run_id"`
	Command    string  `db:"command"`
	Source     string  `db:"source"`
	Target     string  `db:"target"`
	DryRun     bool    `db:"dry_run"`
	StartedAt  string  `db:"started_at"`
	FinishedAt *string `db:"finished_at"`
	Status     string  `db:"status"`
	Error      *string `db:"error"`
}

// Entry is a row of the operations table.
type Entry struct {
	ID         int64  `db:"id"`
	RunID      string `db:"run_id"`
	Kind       string `db:"kind"`
	Bucket     string `db:"bucket"`
	Key        string `db:"key"`
	Source     string `db:"source"`
	Reason     string `db:"reason"`
	Size       int64  `db:"size"`
	DryRun     bool   `db:"dry_run"`
	RecordedAt string `db:"recorded_at"`
}

// Journal persists runs and their operations in SQLite.
type Journal struct {
	db    *sqlx.DB
	runID string
}

// Open opens or creates a journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	conn, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Migrate(ctx, conn, runsSchema, operationsSchema, operationsIndex); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return &Journal{db: conn}, nil
}

// Begin starts a new run and returns its id. Operations recorded afterwards
// belong to it.
func (j *Journal) Begin(ctx context.Context, command, source, target string, dryRun bool) (string, error) {
	runID := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, command, source, target, dry_run, started_at, status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, command, source, target, dryRun, now(), StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("failed to begin run: %w", err)
	}
	j.runID = runID
	return runID, nil
}

// Finish marks the current run succeeded, or failed when runErr is set.
func (j *Journal) Finish(ctx context.Context, runErr error) error {
	if j.runID == "" {
		return fmt.Errorf("no run in progress")
	}

	status := StatusSucceeded
	var errText *string
	if runErr != nil {
		status = StatusFailed
		msg := runErr.Error()
		errText = &msg
	}

	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE run_id = ?`,
		now(), status, errText, j.runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", j.runID, err)
	}
	return nil
}

// Record implements reconcile.OpLog. Journal failures are logged and never
// interrupt the run.
func (j *Journal) Record(op reconcile.Operation) {
	if j.runID == "" {
		slog.Warn("journal record without run", "op", op.Kind, "key", op.Key)
		return
	}

	_, err := j.db.Exec(
		`INSERT INTO operations (run_id, kind, bucket, key, source, reason, size, dry_run, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, string(op.Kind), op.Bucket, op.Key, op.From, op.Reason, op.Size, op.DryRun, now(),
	)
	if err != nil {
		slog.Warn("journal record failed", "op", op.Kind, "key", op.Key, "error", err)
	}
}

// Operations returns the operations of a run in the order they were recorded.
func (j *Journal) Operations(ctx context.Context, runID string) ([]Entry, error) {
	var entries []Entry
	err := j.db.SelectContext(ctx, &entries, `SELECT * FROM operations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations for run %s: %w", runID, err)
	}
	return entries, nil
}

// Runs returns the most recent runs first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := j.db.SelectContext(ctx, &runs, `SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return runs, nil
}

func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		slog.Error("failed to close journal database", "error", err)
		return err
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

var _ reconcile.OpLog = (*Journal)(nil)
