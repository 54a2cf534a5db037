// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing an event date.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Event is one round of the season calendar as read from the catalog.
// Events are immutable for the duration of a run.
type Event struct {
	Name     string // official event name, e.g. "Bahrain Grand Prix"
	Round    int    // round number within the season
	Country  string
	Location string
	Circuit  string
	Date     string // first session start (UTC) as reported upstream; may be empty
	RaceDate string // race start (UTC) as reported upstream; may be empty
}

// DateUTC parses Date. The second return value is false when the date is
// missing or cannot be parsed.
func (e Event) DateUTC() (time.Time, bool) {
	raw := strings.TrimSpace(e.Date)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Completed reports whether the event date is known and not after cutoff.
func (e Event) Completed(cutoff time.Time) bool {
	d, ok := e.DateUTC()
	if !ok {
		return false
	}
	return !d.After(cutoff)
}

// SessionType identifies one session of an event weekend.
type SessionType int

// Session types in display order.
const (
	Practice1 SessionType = iota + 1
	Practice2
	Practice3
	Qualifying
	Race
)

// SessionTypes lists every session type in enumeration order.
var SessionTypes = []SessionType{Practice1, Practice2, Practice3, Qualifying, Race}

// String returns the short label used in artifact and cache paths.
func (s SessionType) String() string {
	switch s {
	case Practice1:
		return "FP1"
	case Practice2:
		return "FP2"
	case Practice3:
		return "FP3"
	case Qualifying:
		return "Qualifying"
	case Race:
		return "Race"
	default:
		return fmt.Sprintf("SessionType(%d)", int(s))
	}
}

// UpstreamName returns the session name used by timing providers.
func (s SessionType) UpstreamName() string {
	switch s {
	case Practice1:
		return "Practice 1"
	case Practice2:
		return "Practice 2"
	case Practice3:
		return "Practice 3"
	default:
		return s.String()
	}
}

// ParseSessionType accepts either the short label or the upstream name,
// case-insensitively.
func ParseSessionType(s string) (SessionType, error) {
	v := strings.TrimSpace(s)
	for _, st := range SessionTypes {
		if strings.EqualFold(v, st.String()) || strings.EqualFold(v, st.UpstreamName()) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSessionType, s)
}
