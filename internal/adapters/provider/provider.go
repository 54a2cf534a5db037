// Package provider fetches season catalogs, session datasets and standings
// from the upstream motorsport APIs. It performs no retries; every call is a
// single attempt whose error the caller may retry.
package provider

import (
	"context"

	"github.com/okian/pitwall/internal/domain/model"
)

// Catalog returns the season's events in round order.
type Catalog interface {
	Schedule(ctx context.Context, season int) ([]model.Event, error)
}

// Sessions returns the per-unit datasets.
type Sessions interface {
	Session(ctx context.Context, u model.WorkUnit) (model.SessionData, error)
}

// Standings returns championship standings after the race of u.Event.
type Standings interface {
	DriverStandings(ctx context.Context, u model.WorkUnit) (model.Table, error)
	ConstructorStandings(ctx context.Context, u model.WorkUnit) (model.Table, error)
}

// Entrants is the grid of a session: one row per driver and one per team.
type Entrants struct {
	Drivers model.Table
	Teams   model.Table
}

// Grid returns the entrants of a session.
type Grid interface {
	Entrants(ctx context.Context, u model.WorkUnit) (Entrants, error)
}

// Provider is everything the orchestrator needs from upstream.
type Provider interface {
	Catalog
	Sessions
	Standings
	Grid
}
