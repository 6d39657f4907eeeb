// Package diagstore persists resolution walks and task outcomes to a local
// SQLite database so failed runs can be inspected after the fact.
package diagstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; the database is diagnostics-only, so mismatched files are simply
// recreated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ResolutionRecord captures one resolver walk: the winning candidate when
// there is one, and the full attempt trail either way.
type ResolutionRecord struct {
	ResolvedAt  time.Time
	Platform    string
	Arch        string
	CandidateID string
	Tier        string
	Accelerator string
	Library     string
	Outcome     string
	Attempts    []AttemptRecord
}

// AttemptRecord mirrors one candidate attempt inside a walk.
type AttemptRecord struct {
	CandidateID string `json:"candidate_id"`
	Outcome     string `json:"outcome"`
	Detail      string `json:"detail,omitempty"`
}

// TaskRecord captures the terminal state of one inference task.
type TaskRecord struct {
	TaskID       string
	Backend      string
	State        string
	FailureKind  string
	ErrorMessage string
	Percent      int
	Language     string
	SegmentCount int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store manages diagnostics persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the diagnostics database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("diagnostics database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure diagnostics directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
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

// Path reports where the database lives on disk.
func (s *Store) Path() string {
	return s.path
}

// RecordResolution appends one resolver walk.
func (s *Store) RecordResolution(ctx context.Context, rec ResolutionRecord) error {
	attemptsJSON, err := json.Marshal(rec.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	when := rec.ResolvedAt
	if when.IsZero() {
		when = time.Now().UTC()
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO resolutions (
            resolved_at, platform, arch, candidate_id, tier,
            accelerator, library, outcome, attempts_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		when.UTC().Format(time.RFC3339Nano),
		rec.Platform,
		rec.Arch,
		nullableString(rec.CandidateID),
		nullableString(rec.Tier),
		nullableString(rec.Accelerator),
		nullableString(rec.Library),
		rec.Outcome,
		string(attemptsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert resolution: %w", err)
	}
	return nil
}

// RecentResolutions returns the newest walks first.
func (s *Store) RecentResolutions(ctx context.Context, limit int) ([]ResolutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT resolved_at, platform, arch, candidate_id, tier, accelerator,
            library, outcome, attempts_json
         FROM resolutions ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	var records []ResolutionRecord
	for rows.Next() {
		var (
			rec         ResolutionRecord
			resolvedRaw string
			candidate   sql.NullString
			tier        sql.NullString
			accel       sql.NullString
			library     sql.NullString
			attempts    sql.NullString
		)
		if err := rows.Scan(&resolvedRaw, &rec.Platform, &rec.Arch, &candidate,
			&tier, &accel, &library, &rec.Outcome, &attempts); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		rec.CandidateID = candidate.String
		rec.Tier = tier.String
		rec.Accelerator = accel.String
		rec.Library = library.String
		if t, err := time.Parse(time.RFC3339Nano, resolvedRaw); err == nil {
			rec.ResolvedAt = t
		}
		if attempts.Valid && attempts.String != "" {
			if err := json.Unmarshal([]byte(attempts.String), &rec.Attempts); err != nil {
				return nil, fmt.Errorf("unmarshal attempts: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecordTaskOutcome appends one terminal task result.
func (s *Store) RecordTaskOutcome(ctx context.Context, rec TaskRecord) error {
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO task_outcomes (
            task_id, backend, state, failure_kind, error_message,
            percent, language, segment_count, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID,
		nullableString(rec.Backend),
		rec.State,
		nullableString(rec.FailureKind),
		nullableString(rec.ErrorMessage),
		rec.Percent,
		nullableString(rec.Language),
		rec.SegmentCount,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert task outcome: %w", err)
	}
	return nil
}

// RecentTaskOutcomes returns the newest task results first.
func (s *Store) RecentTaskOutcomes(ctx context.Context, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT task_id, backend, state, failure_kind, error_message,
            percent, language, segment_count, started_at, finished_at
         FROM task_outcomes ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query task outcomes: %w", err)
	}
	defer rows.Close()

	var records []TaskRecord
	for rows.Next() {
		var (
			rec         TaskRecord
			backend     sql.NullString
			failureKind sql.NullString
			errMessage  sql.NullString
			lang        sql.NullString
			startedRaw  string
			finishedRaw string
		)
		if err := rows.Scan(&rec.TaskID, &backend, &rec.State, &failureKind,
			&errMessage, &rec.Percent, &lang, &rec.SegmentCount,
			&startedRaw, &finishedRaw); err != nil {
			return nil, fmt.Errorf("scan task outcome: %w", err)
		}
		rec.Backend = backend.String
		rec.FailureKind = failureKind.String
		rec.ErrorMessage = errMessage.String
		rec.Language = lang.String
		if t, err := time.Parse(time.RFC3339Nano, startedRaw); err == nil {
			rec.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, finishedRaw); err == nil {
			rec.FinishedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
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
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
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

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
