package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/metrics"
)

//go:embed schema.sql
var schema string

const timeLayout = time.RFC3339Nano

// SQLiteStore is the durable ledger, one WAL-mode database file per output root.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// OpenSQLite opens (or creates) the ledger at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, o.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(o.maxOpen)
	db.SetMaxIdleConns(o.maxOpen)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteStore{db: db, opts: o}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key model.UnitKey) (model.UnitRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state, produced, attempts, last_error, run_id, updated_at
		   FROM units WHERE season = ? AND event = ? AND session = ?`,
		key.Season, key.Event, key.Session.String(),
	)
	rec := model.UnitRecord{Key: key}
	var state, produced, updated string
	err := row.Scan(&state, &produced, &rec.Attempts, &rec.LastError, &rec.RunID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UnitRecord{}, notFound(key)
	}
	if err != nil {
		metrics.RecordLedgerError()
		return model.UnitRecord{}, fmt.Errorf("get %s: %w", key, err)
	}
	rec.State = model.UnitState(state)
	rec.Produced = splitKinds(produced)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return rec, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, rec model.UnitRecord) error {
	if err := validState(rec.State); err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.opts.now()
	}
	start := time.Now()
	err := retryOnContention(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO units (season, event, session, session_ord, state, produced, attempts, last_error, run_id, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(season, event, session) DO UPDATE SET
				state = excluded.state,
				produced = excluded.produced,
				attempts = excluded.attempts,
				last_error = excluded.last_error,
				run_id = excluded.run_id,
				updated_at = excluded.updated_at`,
			rec.Key.Season, rec.Key.Event, rec.Key.Session.String(), int(rec.Key.Session),
			string(rec.State), joinKinds(rec.Produced), rec.Attempts, rec.LastError, rec.RunID,
			rec.UpdatedAt.UTC().Format(timeLayout),
		)
		return err
	})
	metrics.RecordLedgerLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordLedgerError()
		return fmt.Errorf("put %s: %w", rec.Key, err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, season int) ([]model.UnitRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event, session, state, produced, attempts, last_error, run_id, updated_at
		   FROM units WHERE season = ? ORDER BY rowid`, season)
	if err != nil {
		metrics.RecordLedgerError()
		return nil, fmt.Errorf("list season %d: %w", season, err)
	}
	defer rows.Close()

	var out []model.UnitRecord
	for rows.Next() {
		var (
			rec                             model.UnitRecord
			session, state, produced, stamp string
		)
		if err := rows.Scan(&rec.Key.Event, &session, &state, &produced, &rec.Attempts, &rec.LastError, &rec.RunID, &stamp); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		st, err := model.ParseSessionType(session)
		if err != nil {
			return nil, err
		}
		rec.Key.Season = season
		rec.Key.Session = st
		rec.State = model.UnitState(state)
		rec.Produced = splitKinds(produced)
		rec.UpdatedAt, _ = time.Parse(timeLayout, stamp)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// BeginRun implements Store.
func (s *SQLiteStore) BeginRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = s.opts.now()
	}
	return retryOnContention(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO runs (id, season, mode, started_at, planned) VALUES (?, ?, ?, ?, ?)`,
			run.ID, run.Season, run.Mode, run.StartedAt.UTC().Format(timeLayout), run.Planned,
		)
		return err
	})
}

// FinishRun implements Store.
func (s *SQLiteStore) FinishRun(ctx context.Context, run Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.opts.now()
	}
	var n int64
	err := retryOnContention(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE runs SET finished_at = ?, planned = ?, fetched = ?, skipped = ?, failed = ?, error = ?
			 WHERE id = ?`,
			run.FinishedAt.UTC().Format(timeLayout), run.Planned, run.Fetched, run.Skipped, run.Failed, run.Error, run.ID,
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", run.ID, ErrRunNotFound)
	}
	return nil
}

// LastRun implements Store.
func (s *SQLiteStore) LastRun(ctx context.Context, season int) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, mode, started_at, finished_at, planned, fetched, skipped, failed, error
		   FROM runs WHERE season = ? ORDER BY rowid DESC LIMIT 1`, season)
	run := Run{Season: season}
	var started, finished string
	err := row.Scan(&run.ID, &run.Mode, &started, &finished, &run.Planned, &run.Fetched, &run.Skipped, &run.Failed, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("last run: %w", err)
	}
	run.StartedAt, _ = time.Parse(timeLayout, started)
	if finished != "" {
		run.FinishedAt, _ = time.Parse(timeLayout, finished)
	}
	return run, nil
}

func joinKinds(kinds []model.ArtifactKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func splitKinds(s string) []model.ArtifactKind {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]model.ArtifactKind, len(parts))
	for i, p := range parts {
		out[i] = model.ArtifactKind(p)
	}
	return out
}
