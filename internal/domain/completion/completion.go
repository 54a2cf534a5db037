// Package completion evaluates whether a work unit is durably persisted.
//
// A unit is done iff every applicable artifact among Laps and
// RaceControlMessages exists. Applicability comes from the unit ledger when
// it holds a settled record (the kinds the last fetch actually produced);
// without one both kinds are required. Standings never participate.
package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/pitwall/internal/domain/layout"
	"github.com/okian/pitwall/internal/domain/model"
)

// Exister reports whether a path exists.
type Exister interface {
	Exists(path string) (bool, error)
}

// ExisterFunc adapts a function to Exister.
type ExisterFunc func(path string) (bool, error)

// Exists implements Exister.
func (f ExisterFunc) Exists(path string) (bool, error) { return f(path) }

// Records looks up the ledger record of a unit. Implementations return an
// error wrapping model.ErrUnitNotFound when there is none.
type Records interface {
	Get(ctx context.Context, key model.UnitKey) (model.UnitRecord, error)
}

// Checker implements the done predicate.
type Checker struct {
	layout  layout.Layout
	exister Exister
	records Records
}

// NewChecker builds a Checker. records may be nil, in which case only file
// existence is consulted.
func NewChecker(l layout.Layout, exister Exister, records Records) *Checker {
	return &Checker{layout: l, exister: exister, records: records}
}

// Required returns the artifact kinds that must exist for u to be done.
func (c *Checker) Required(ctx context.Context, u model.WorkUnit) ([]model.ArtifactKind, error) {
	all := []model.ArtifactKind{model.ArtifactLaps, model.ArtifactRaceControlMessages}
	if c.records == nil {
		return all, nil
	}
	rec, err := c.records.Get(ctx, u.Key())
	switch {
	case errors.Is(err, model.ErrUnitNotFound):
		return all, nil
	case err != nil:
		return nil, fmt.Errorf("lookup %s: %w", u, err)
	case !rec.State.Settled():
		return all, nil
	}
	var req []model.ArtifactKind
	for _, k := range all {
		if rec.HasProduced(k) {
			req = append(req, k)
		}
	}
	return req, nil
}

// Done reports whether u is durably persisted.
func (c *Checker) Done(ctx context.Context, u model.WorkUnit) (bool, error) {
	required, err := c.Required(ctx, u)
	if err != nil {
		return false, err
	}
	for _, kind := range required {
		path, err := c.layout.Artifact(u, kind)
		if err != nil {
			return false, err
		}
		ok, err := c.exister.Exists(path)
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", path, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
