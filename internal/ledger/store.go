package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/derekmu8/video-scraping/internal/domain"
	"github.com/derekmu8/video-scraping/internal/infra/fsx"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// FileName is the ledger database name inside the output directory.
const FileName = "shotdeck.db"

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Run is one finished pipeline run.
type Run struct {
	ID           string
	StartedAt    time.Time
	Method       string
	Requested    int
	Downloaded   int
	Existing     int
	Failed       int
	Metadata     int
	TotalBytes   int64
	Groups       int
	StopReason   string
	Duration     time.Duration
	DocumentPath string
}

// Item is the per-shot outcome of a run.
type Item struct {
	ShotID    domain.ItemID
	Status    domain.OutcomeStatus
	SizeBytes int64
	Error     string
	GroupKey  string
}

// Store wraps the SQLite connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger in dir.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := fsx.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure ledger dir: %w", err)
	}
	dbPath := filepath.Join(dir, FileName)
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
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// RecordRun stores a run and its items in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run, items []Item) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
        run_id, started_at, method, requested, downloaded, existing, failed,
        metadata, total_bytes, groups_count, stop_reason, duration_s, document_path
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), run.Method,
		run.Requested, run.Downloaded, run.Existing, run.Failed,
		run.Metadata, run.TotalBytes, run.Groups, run.StopReason,
		run.Duration.Seconds(), run.DocumentPath,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_items (
        run_id, shot_id, status, size_bytes, error, group_key
    ) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare run items: %w", err)
	}
	defer stmt.Close()
	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, run.ID, string(it.ShotID), string(it.Status), it.SizeBytes, it.Error, it.GroupKey); err != nil {
			return fmt.Errorf("insert run item %s: %w", it.ShotID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit<=0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT run_id, started_at, method, requested, downloaded, existing, failed,
        metadata, total_bytes, groups_count, stop_reason, duration_s, document_path
        FROM runs ORDER BY started_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r         Run
			startedAt string
			seconds   float64
		)
		if err := rows.Scan(&r.ID, &startedAt, &r.Method, &r.Requested, &r.Downloaded, &r.Existing, &r.Failed,
			&r.Metadata, &r.TotalBytes, &r.Groups, &r.StopReason, &seconds, &r.DocumentPath); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
		}
		r.Duration = time.Duration(seconds * float64(time.Second))
		out = append(out, r)
	}
	return out, rows.Err()
}

// Items returns the items of a run ordered by shot id. status=="" returns all statuses.
func (s *Store) Items(ctx context.Context, runID string, status domain.OutcomeStatus) ([]Item, error) {
	query := "SELECT shot_id, status, size_bytes, error, group_key FROM run_items WHERE run_id = ?"
	args := []any{runID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY shot_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var (
			it         Item
			shotID, st string
		)
		if err := rows.Scan(&shotID, &st, &it.SizeBytes, &it.Error, &it.GroupKey); err != nil {
			return nil, fmt.Errorf("scan run item: %w", err)
		}
		it.ShotID = domain.ItemID(shotID)
		it.Status = domain.OutcomeStatus(st)
		out = append(out, it)
	}
	return out, rows.Err()
}
