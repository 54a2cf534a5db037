// Package layout maps work units and artifact kinds to deterministic paths
// under the output root. Path existence is the durability signal for the
// whole pipeline, so every function here is pure.
package layout

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/okian/pitwall/internal/domain/model"
)

// Directory and file names under the output root.
const (
	LapsDir      = "laps"
	MessagesDir  = "fia_messages"
	StandingsDir = "standings"
	LogsDir      = "logs"
	StateDir     = ".pitwall"

	EventsFile  = "events.csv"
	DriversFile = "drivers.csv"
	TeamsFile   = "teams.csv"
	LedgerFile  = "ledger.db"

	runStampLayout = "20060102_1504"
)

// Layout resolves artifact and cache paths for one season.
type Layout struct {
	Root      string // output root for durable artifacts
	CacheRoot string // provider cache root; transient
	Season    int
}

// New returns a Layout. An empty cacheRoot defaults to <root>/provider_cache.
func New(root, cacheRoot string, season int) Layout {
	if cacheRoot == "" {
		cacheRoot = filepath.Join(root, "provider_cache")
	}
	return Layout{Root: root, CacheRoot: cacheRoot, Season: season}
}

// Events is the full calendar artifact.
func (l Layout) Events() string { return filepath.Join(l.Root, EventsFile) }

// Drivers is the entrant list artifact.
func (l Layout) Drivers() string { return filepath.Join(l.Root, DriversFile) }

// Teams is the team list artifact.
func (l Layout) Teams() string { return filepath.Join(l.Root, TeamsFile) }

// Ledger is the unit state database.
func (l Layout) Ledger() string { return filepath.Join(l.Root, StateDir, LedgerFile) }

// RunLog is the log file for a run started at ts.
func (l Layout) RunLog(ts time.Time) string {
	return filepath.Join(l.Root, LogsDir, "run_"+ts.Format(runStampLayout)+".log")
}

// MetricsFile is the Prometheus textfile written at the end of a run started at ts.
func (l Layout) MetricsFile(ts time.Time) string {
	return filepath.Join(l.Root, LogsDir, "metrics_"+ts.Format(runStampLayout)+".prom")
}

// Artifact returns the path for kind of unit u.
func (l Layout) Artifact(u model.WorkUnit, kind model.ArtifactKind) (string, error) {
	name := FileName(u.Event.Name)
	switch kind {
	case model.ArtifactLaps:
		return filepath.Join(l.Root, LapsDir, name+"_"+u.Session.String()+"_laps.csv"), nil
	case model.ArtifactRaceControlMessages:
		return filepath.Join(l.Root, MessagesDir, name+"_"+u.Session.String()+".csv"), nil
	case model.ArtifactDriverStandings:
		return filepath.Join(l.Root, StandingsDir, name+"_driver_standings.csv"), nil
	case model.ArtifactConstructorStandings:
		return filepath.Join(l.Root, StandingsDir, name+"_constructor_standings.csv"), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownArtifact, kind)
	}
}

// Laps is shorthand for Artifact(u, ArtifactLaps).
func (l Layout) Laps(u model.WorkUnit) string {
	p, _ := l.Artifact(u, model.ArtifactLaps)
	return p
}

// Messages is shorthand for Artifact(u, ArtifactRaceControlMessages).
func (l Layout) Messages(u model.WorkUnit) string {
	p, _ := l.Artifact(u, model.ArtifactRaceControlMessages)
	return p
}

// Cache returns the provider cache directory owned by unit u:
// <cacheRoot>/<season>/<Event_Name>/<session>.
func (l Layout) Cache(u model.WorkUnit) string {
	return filepath.Join(l.CacheRoot, strconv.Itoa(u.Season), CacheName(u.Event.Name), u.Session.String())
}

// FileName makes an event name safe for use as a path element while keeping
// it recognisable: NFC-normalised, separators replaced.
func FileName(event string) string {
	s := norm.NFC.String(strings.TrimSpace(event))
	return strings.NewReplacer("/", "-", `\`, "-", "\x00", "").Replace(s)
}

// CacheName is FileName with spaces replaced by underscores.
func CacheName(event string) string {
	return strings.ReplaceAll(FileName(event), " ", "_")
}
