// Package selector computes the ordered grid of work units for a run and
// decides, per unit, whether to fetch or skip it.
package selector

import (
	"context"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
)

// DoneChecker answers the done predicate for a unit.
type DoneChecker interface {
	Done(ctx context.Context, u model.WorkUnit) (bool, error)
}

// Decision is the evaluated action for one unit.
type Decision struct {
	Unit   model.WorkUnit
	Action model.Action
	// Err is set when the done check failed; the action is then Fetch.
	Err error
}

// Selector filters the catalog and evaluates the skip policy.
type Selector struct {
	season int
	cutoff time.Time
	mode   model.RunMode
}

// New creates a Selector for one run.
func New(season int, cutoff time.Time, mode model.RunMode) *Selector {
	return &Selector{season: season, cutoff: cutoff.UTC(), mode: mode}
}

// Mode returns the run mode the selector was built with.
func (s *Selector) Mode() model.RunMode { return s.mode }

// Cutoff returns the completion boundary.
func (s *Selector) Cutoff() time.Time { return s.cutoff }

// Completed returns the events whose date is known and not after the
// cutoff, in catalog order.
func (s *Selector) Completed(events []model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.Completed(s.cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Grid returns one unit per session type for every completed event, events
// in catalog order and session types in enumeration order.
func (s *Selector) Grid(events []model.Event) []model.WorkUnit {
	completed := s.Completed(events)
	units := make([]model.WorkUnit, 0, len(completed)*len(model.SessionTypes))
	for _, e := range completed {
		for _, st := range model.SessionTypes {
			units = append(units, model.WorkUnit{Season: s.season, Event: e, Session: st})
		}
	}
	return units
}

// Decide returns the action for u. Force always fetches; resume skips units
// the checker reports done; everything else is fetched.
func (s *Selector) Decide(ctx context.Context, u model.WorkUnit, checker DoneChecker) Decision {
	d := Decision{Unit: u, Action: model.ActionFetch}
	if s.mode.Force || !s.mode.Resume {
		return d
	}
	done, err := checker.Done(ctx, u)
	if err != nil {
		d.Err = err
		return d
	}
	if done {
		d.Action = model.ActionSkip
	}
	return d
}

// Plan evaluates Decide over the whole grid without side effects.
func (s *Selector) Plan(ctx context.Context, events []model.Event, checker DoneChecker) []Decision {
	units := s.Grid(events)
	out := make([]Decision, 0, len(units))
	for _, u := range units {
		out = append(out, s.Decide(ctx, u, checker))
	}
	return out
}
