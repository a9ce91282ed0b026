package runs

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

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Registry persists run history in SQLite.
type Registry struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the registry database at path.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure registry directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

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

	reg := &Registry{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	ctx := context.Background()
	if err := reg.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return reg, nil
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Path returns the database file location.
func (r *Registry) Path() string { return r.path }

func (r *Registry) initSchema(ctx context.Context) error {
	var tableExists int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return r.createSchema(ctx)
	}

	var version int
	if err := r.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to start a fresh history)",
			ErrSchemaMismatch, version, schemaVersion, r.path)
	}
	return nil
}

func (r *Registry) createSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
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

// Start records the beginning of an attempt. A run id seen before keeps its
// creation time and gets its attempt counter bumped.
func (r *Registry) Start(ctx context.Context, runID, sourcePath string, resumed bool, stages []StageSummary) error {
	stagesJSON, err := json.Marshal(stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	ts := r.now().Format(time.RFC3339Nano)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, source_path, state, resumed, attempts, stages_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, 1, ?, ?, ?)
         ON CONFLICT(run_id) DO UPDATE SET
             source_path = excluded.source_path,
             state = excluded.state,
             resumed = excluded.resumed,
             attempts = runs.attempts + 1,
             stages_json = excluded.stages_json,
             current_stage = NULL,
             error_message = NULL,
             finished_at = NULL,
             updated_at = excluded.updated_at`,
		runID, nullableString(sourcePath), StateRunning, boolToInt(resumed), string(stagesJSON), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// RecordStage stores a stage transition and refreshes the run snapshot.
func (r *Registry) RecordStage(ctx context.Context, runID string, stage StageSummary, stages []StageSummary) error {
	stagesJSON, err := json.Marshal(stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	ts := r.now().Format(time.RFC3339Nano)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stage_events (run_id, stage, status, resumed, degraded, reason, duration_ms, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, stage.Name, stage.Status, boolToInt(stage.Resumed), boolToInt(stage.Degraded),
		nullableString(stage.Reason), stage.DurationMs, ts,
	); err != nil {
		return fmt.Errorf("insert stage event: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET current_stage = ?, stages_json = ?, updated_at = ? WHERE run_id = ?`,
		stage.Name, string(stagesJSON), ts, runID,
	); err != nil {
		return fmt.Errorf("update run stage: %w", err)
	}
	return tx.Commit()
}

// Finish records the terminal state of an attempt.
func (r *Registry) Finish(ctx context.Context, runID string, state State, errorMessage string, stages []StageSummary) error {
	stagesJSON, err := json.Marshal(stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	ts := r.now().Format(time.RFC3339Nano)
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, error_message = ?, stages_json = ?, updated_at = ?, finished_at = ?
         WHERE run_id = ?`,
		state, nullableString(errorMessage), string(stagesJSON), ts, ts, runID,
	)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record run finish: run %q not registered", runID)
	}
	return nil
}

// MarkInterrupted flags RUNNING runs as INTERRUPTED unless active reports
// that a live process still owns them, and returns how many were changed.
// A nil active treats every RUNNING run as abandoned.
func (r *Registry) MarkInterrupted(ctx context.Context, active func(runID string) bool) (int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT run_id FROM runs WHERE state = ?`, StateRunning)
	if err != nil {
		return 0, fmt.Errorf("query running runs: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan running run: %w", err)
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate running runs: %w", err)
	}
	rows.Close()

	ts := r.now().Format(time.RFC3339Nano)
	var changed int64
	for _, id := range stale {
		if active != nil && active(id) {
			continue
		}
		res, err := r.db.ExecContext(ctx,
			`UPDATE runs SET state = ?, updated_at = ?,
                 error_message = COALESCE(error_message, 'process exited before the run finished')
             WHERE run_id = ? AND state = ?`,
			StateInterrupted, ts, id, StateRunning,
		)
		if err != nil {
			return changed, fmt.Errorf("mark run %s interrupted: %w", id, err)
		}
		n, _ := res.RowsAffected()
		changed += n
	}
	return changed, nil
}

const runColumns = "run_id, source_path, state, current_stage, resumed, error_message, attempts, stages_json, created_at, updated_at, finished_at"

// Get returns the run, or nil when it is not registered.
func (r *Registry) Get(ctx context.Context, runID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

// List returns the most recently updated runs first. limit <= 0 means all.
func (r *Registry) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY updated_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Events returns the stage transitions of a run in recording order.
func (r *Registry) Events(ctx context.Context, runID string) ([]StageEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, run_id, stage, status, resumed, degraded, reason, duration_ms, recorded_at
         FROM stage_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stage events: %w", err)
	}
	defer rows.Close()

	var out []StageEvent
	for rows.Next() {
		var (
			evt        StageEvent
			resumed    int
			degraded   int
			reason     sql.NullString
			durationMs int64
			recorded   string
		)
		if err := rows.Scan(&evt.ID, &evt.RunID, &evt.Stage, &evt.Status, &resumed, &degraded, &reason, &durationMs, &recorded); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		evt.Resumed = resumed != 0
		evt.Degraded = degraded != 0
		evt.Reason = reason.String
		evt.Duration = time.Duration(durationMs) * time.Millisecond
		evt.RecordedAt = parseTime(recorded)
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Remove deletes a run and its events. It reports whether the run existed.
func (r *Registry) Remove(ctx context.Context, runID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return false, fmt.Errorf("remove run: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Stats returns a count of runs grouped by state.
func (r *Registry) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM runs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec          Record
		source       sql.NullString
		state        string
		currentStage sql.NullString
		resumed      int
		errorMessage sql.NullString
		stagesJSON   sql.NullString
		createdRaw   string
		updatedRaw   string
		finishedRaw  sql.NullString
	)
	if err := scanner.Scan(&rec.RunID, &source, &state, &currentStage, &resumed, &errorMessage,
		&rec.Attempts, &stagesJSON, &createdRaw, &updatedRaw, &finishedRaw); err != nil {
		return nil, err
	}
	rec.SourcePath = source.String
	rec.State = State(state)
	rec.CurrentStage = currentStage.String
	rec.Resumed = resumed != 0
	rec.ErrorMessage = errorMessage.String
	rec.CreatedAt = parseTime(createdRaw)
	rec.UpdatedAt = parseTime(updatedRaw)
	if finishedRaw.Valid && finishedRaw.String != "" {
		t := parseTime(finishedRaw.String)
		rec.FinishedAt = &t
	}
	if stagesJSON.Valid && stagesJSON.String != "" {
		if err := json.Unmarshal([]byte(stagesJSON.String), &rec.Stages); err != nil {
			return nil, fmt.Errorf("decode stages for %s: %w", rec.RunID, err)
		}
	}
	return &rec, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
