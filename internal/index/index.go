// Package index keeps a SQLite table of the runs under one log directory,
// the queryable form of the summary table shown by dashboards.
//
// The index is derived data: every row can be rebuilt from the run
// directories, which stay the source of truth.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/imishinist/fitlog/internal/logwriter"
	"github.com/imishinist/fitlog/internal/models"
)

// FileName is the index database inside a log directory.
const FileName = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    dir TEXT NOT NULL,
    uuid TEXT,
    snapshot_id TEXT,
    message TEXT,
    state TEXT NOT NULL,
    started_at TEXT,
    finished_at TEXT,
    metric_points INTEGER DEFAULT 0,
    loss_points INTEGER DEFAULT 0,
    indexed_at TEXT
);

CREATE TABLE IF NOT EXISTS summary_entries (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    key TEXT NOT NULL,
    value_type TEXT NOT NULL,
    num_value REAL,
    text_value TEXT NOT NULL,
    PRIMARY KEY (run_id, kind, key)
);

CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_summary_key ON summary_entries(kind, key);
`

type Index struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the index database at path.
func Open(ctx context.Context, path string) (*Index, error) {
	dsn := "file:" + filepath.ToSlash(path) + "?mode=rwc"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one connection keeps the pragmas and serializes writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate index: %w", err)
	}
	return &Index{db: db, now: time.Now}, nil
}

// OpenLogDir opens the index kept inside logDir.
func OpenLogDir(ctx context.Context, logDir string) (*Index, error) {
	return Open(ctx, filepath.Join(logDir, FileName))
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Upsert replaces the row and summary entries of one run.
func (ix *Index) Upsert(ctx context.Context, rec *logwriter.RunRecord) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertRun(ctx, tx, rec, ix.now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", rec.Meta.RunID, err)
	}
	return nil
}

func upsertRun(ctx context.Context, tx *sql.Tx, rec *logwriter.RunRecord, now time.Time) error {
	var finishedAt any
	if rec.Meta.FinishedAt != nil {
		finishedAt = rec.Meta.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO runs (run_id, dir, uuid, snapshot_id, message, state, started_at, finished_at, metric_points, loss_points, indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET
    dir = excluded.dir,
    uuid = excluded.uuid,
    snapshot_id = excluded.snapshot_id,
    message = excluded.message,
    state = excluded.state,
    started_at = excluded.started_at,
    finished_at = excluded.finished_at,
    metric_points = excluded.metric_points,
    loss_points = excluded.loss_points,
    indexed_at = excluded.indexed_at`,
		rec.Meta.RunID, rec.Dir, rec.Meta.UUID, rec.Meta.SnapshotID, rec.Meta.Message, string(rec.State),
		rec.Meta.StartedAt.UTC().Format(time.RFC3339Nano), finishedAt,
		len(rec.Metric), len(rec.Loss), now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", rec.Meta.RunID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM summary_entries WHERE run_id = ?`, rec.Meta.RunID); err != nil {
		return fmt.Errorf("failed to clear entries of %s: %w", rec.Meta.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO summary_entries (run_id, kind, key, value_type, num_value, text_value)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, kind, key) DO UPDATE SET
    value_type = excluded.value_type,
    num_value = excluded.num_value,
    text_value = excluded.text_value`)
	if err != nil {
		return fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for _, kind := range models.Kinds {
		for _, e := range entriesOf(rec, kind) {
			var num any
			if f, ok := e.Value.Number(); ok {
				num = f
			}
			if _, err := stmt.ExecContext(ctx, rec.Meta.RunID, string(kind), e.Key, e.Value.Kind().String(), num, e.Value.String()); err != nil {
				return fmt.Errorf("failed to insert %s.%s of %s: %w", kind, e.Key, rec.Meta.RunID, err)
			}
		}
	}
	return nil
}

// entriesOf flattens a keyed summary. For a series kind it keeps the last
// recorded value of every key. A top-level name with a dot can flatten to
// the same key as a nested entry; the later one in mapping order is kept.
func entriesOf(rec *logwriter.RunRecord, kind models.Kind) []models.FlatEntry {
	if !kind.IsSeries() {
		return rec.Summary(kind).Flatten()
	}
	last := models.NewMap()
	for _, e := range rec.Stream(kind) {
		for _, fe := range e.Value.Flatten() {
			last.Set(fe.Key, fe.Value)
		}
	}
	return last.Flatten()
}

// Rebuild indexes every run directory under logDir and drops rows of runs
// that no longer exist. It returns the number of indexed runs.
func (ix *Index) Rebuild(ctx context.Context, logDir string) (int, error) {
	dirs, err := logwriter.ListRuns(logDir)
	if err != nil {
		return 0, err
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := ix.now()
	seen := make([]any, 0, len(dirs))
	for _, dir := range dirs {
		rec, err := logwriter.ReadRun(dir)
		if err != nil {
			return 0, fmt.Errorf("failed to read run %s: %w", dir, err)
		}
		if err := upsertRun(ctx, tx, rec, now); err != nil {
			return 0, err
		}
		seen = append(seen, rec.Meta.RunID)
	}

	query := `DELETE FROM runs`
	if len(seen) > 0 {
		query += ` WHERE run_id NOT IN (?` + strings.Repeat(", ?", len(seen)-1) + `)`
	}
	if _, err := tx.ExecContext(ctx, query, seen...); err != nil {
		return 0, fmt.Errorf("failed to prune index: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit index: %w", err)
	}
	return len(seen), nil
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	State models.RunState
	// Columns selects summary entries as "<kind>.<key>", e.g. "hyper.lr".
	Columns []string
	Limit   int
}

// Row is one run of the summary table.
type Row struct {
	RunID      string
	Dir        string
	State      models.RunState
	Message    string
	SnapshotID string
	StartedAt  time.Time
	Columns    map[string]string
}

// List returns runs newest first.
func (ix *Index) List(ctx context.Context, filter ListFilter) ([]Row, error) {
	query := `SELECT run_id, dir, state, message, snapshot_id, started_at FROM runs`
	var args []any
	if filter.State != "" {
		query += ` WHERE state = ?`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY started_at DESC, run_id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var state, startedAt string
		var message, snapshotID sql.NullString
		if err := rows.Scan(&r.RunID, &r.Dir, &state, &message, &snapshotID, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.State = models.RunState(state)
		r.Message = message.String
		r.SnapshotID = snapshotID.String
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			r.StartedAt = t
		}
		r.Columns = map[string]string{}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	rows.Close()

	if len(filter.Columns) == 0 || len(out) == 0 {
		return out, nil
	}
	byID := make(map[string]*Row, len(out))
	for i := range out {
		byID[out[i].RunID] = &out[i]
	}
	for _, col := range filter.Columns {
		kind, key, ok := strings.Cut(col, ".")
		if !ok || !models.Kind(kind).Valid() {
			return nil, fmt.Errorf("%w: column %q, expected <kind>.<key>", models.ErrUnknownKind, col)
		}
		if err := ix.fillColumn(ctx, byID, col, kind, key); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (ix *Index) fillColumn(ctx context.Context, byID map[string]*Row, col, kind, key string) error {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT run_id, text_value FROM summary_entries WHERE kind = ? AND key = ?`, kind, key)
	if err != nil {
		return fmt.Errorf("failed to query column %s: %w", col, err)
	}
	defer rows.Close()
	for rows.Next() {
		var runID, value string
		if err := rows.Scan(&runID, &value); err != nil {
			return fmt.Errorf("failed to scan column %s: %w", col, err)
		}
		if r, ok := byID[runID]; ok {
			r.Columns[col] = value
		}
	}
	return rows.Err()
}

// Keys lists the distinct "<kind>.<key>" columns present in the index.
func (ix *Index) Keys(ctx context.Context) ([]string, error) {
	rows, err := ix.db.QueryContext(ctx, `SELECT DISTINCT kind, key FROM summary_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var kind, key string
		if err := rows.Scan(&kind, &key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, kind+"."+key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
