package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by the domain and its adapters.
var (
	ErrUnknownSessionType = errors.New("unknown session type")
	ErrUnitNotFound       = errors.New("unit record not found")
)

// WorkUnit is one (event, session type) fetch-and-persist task.
type WorkUnit struct {
	Season  int
	Event   Event
	Session SessionType
}

// Key returns the identity of the unit.
func (u WorkUnit) Key() UnitKey {
	return UnitKey{Season: u.Season, Event: u.Event.Name, Session: u.Session}
}

// String is used in log lines.
func (u WorkUnit) String() string {
	return u.Key().String()
}

// UnitKey identifies a unit across runs.
type UnitKey struct {
	Season  int
	Event   string
	Session SessionType
}

func (k UnitKey) String() string {
	return fmt.Sprintf("%d/%s/%s", k.Season, k.Event, k.Session)
}

// ArtifactKind enumerates the datasets persisted for a unit.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactLaps                 ArtifactKind = "laps"
	ArtifactRaceControlMessages  ArtifactKind = "race_control_messages"
	ArtifactDriverStandings      ArtifactKind = "driver_standings"
	ArtifactConstructorStandings ArtifactKind = "constructor_standings"
)

// UnitState is the persisted lifecycle state of a unit.
type UnitState string

// Unit states. A unit moves Pending -> Fetched -> Pruned, or Pending -> Failed.
const (
	StatePending UnitState = "pending"
	StateFetched UnitState = "fetched"
	StateFailed  UnitState = "failed"
	StatePruned  UnitState = "pruned"
)

// Settled reports whether the state carries a trustworthy produced set.
func (s UnitState) Settled() bool {
	return s == StateFetched || s == StatePruned
}

// UnitRecord is the ledger row for a unit.
type UnitRecord struct {
	Key       UnitKey
	State     UnitState
	Produced  []ArtifactKind // kinds the last fetch returned non-empty data for
	Attempts  int
	LastError string
	RunID     string
	UpdatedAt time.Time
}

// HasProduced reports whether kind is in Produced.
func (r UnitRecord) HasProduced(kind ArtifactKind) bool {
	for _, k := range r.Produced {
		if k == kind {
			return true
		}
	}
	return false
}

// RunMode controls the skip policy of a run.
type RunMode struct {
	Resume bool // skip units that are already done
	Force  bool // fetch every unit; wins over Resume
}

func (m RunMode) String() string {
	switch {
	case m.Force:
		return "force"
	case m.Resume:
		return "resume"
	default:
		return "fresh"
	}
}

// Action is the decision taken for a unit.
type Action string

// Actions.
const (
	ActionFetch Action = "fetch"
	ActionSkip  Action = "skip"
)
