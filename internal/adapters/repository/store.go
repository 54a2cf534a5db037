// Package repository persists the unit ledger: the lifecycle state of every
// work unit and a summary row per run.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
)

// Run summarises one orchestrator run.
type Run struct {
	ID         string
	Season     int
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Planned    int
	Fetched    int
	Skipped    int
	Failed     int
	Error      string
}

// Finished reports whether FinishRun was recorded.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// Store provides read/write access to the unit ledger.
type Store interface {
	// Get returns the record for key. Returns an error wrapping ErrNotFound
	// if the unit has never been recorded.
	Get(ctx context.Context, key model.UnitKey) (model.UnitRecord, error)

	// Put inserts or replaces the record for rec.Key.
	Put(ctx context.Context, rec model.UnitRecord) error

	// List returns every record of season ordered by event then session.
	List(ctx context.Context, season int) ([]model.UnitRecord, error)

	// BeginRun records the start of a run.
	BeginRun(ctx context.Context, run Run) error

	// FinishRun records the totals and end time of a run.
	FinishRun(ctx context.Context, run Run) error

	// LastRun returns the most recently started run of season.
	LastRun(ctx context.Context, season int) (Run, error)

	Close() error
}

func validState(s model.UnitState) error {
	switch s {
	case model.StatePending, model.StateFetched, model.StateFailed, model.StatePruned:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
}

func notFound(key model.UnitKey) error {
	return fmt.Errorf("%s: %w", key, ErrNotFound)
}
