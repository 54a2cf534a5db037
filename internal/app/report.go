package service

import (
	"time"

	"github.com/okian/pitwall/internal/domain/model"
)

// UnitOutcome is what happened to one unit during a run.
type UnitOutcome struct {
	Unit     model.WorkUnit
	Action   model.Action
	State    model.UnitState // terminal ledger state; empty for skipped units
	Attempts int
	Written  []model.ArtifactKind
	Pruned   bool
	Err      error
}

// Report summarises a run.
type Report struct {
	RunID      string
	Season     int
	Mode       model.RunMode
	StartedAt  time.Time
	FinishedAt time.Time

	Events    int // catalog size
	Completed int // events up to the cutoff

	Units []UnitOutcome

	Fetched int
	Skipped int
	Failed  int
	Pruned  int

	EntrantsWritten bool
	Interrupted     bool
}

// Written counts artifacts of kind written during the run.
func (r *Report) Written(kind model.ArtifactKind) int {
	n := 0
	for _, o := range r.Units {
		for _, k := range o.Written {
			if k == kind {
				n++
			}
		}
	}
	return n
}

func (r *Report) add(o UnitOutcome) {
	r.Units = append(r.Units, o)
	switch {
	case o.Action == model.ActionSkip:
		r.Skipped++
	case o.State == model.StateFailed:
		r.Failed++
	default:
		r.Fetched++
	}
	if o.Pruned {
		r.Pruned++
	}
}
