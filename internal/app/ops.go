package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/pitwall/internal/adapters/cache"
	"github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/selector"
	"github.com/okian/pitwall/pkg/logger"
)

// Plan returns the decision for every unit without fetching or writing
// anything but the catalog request.
func (s *Service) Plan(ctx context.Context) ([]selector.Decision, error) {
	events, err := s.catalog(ctx)
	if err != nil {
		return nil, err
	}
	return s.selector().Plan(ctx, events, s.checker), nil
}

// Status is the ledger view of a season.
type Status struct {
	Records []model.UnitRecord
	Counts  map[model.UnitState]int
	LastRun *repository.Run
}

// Status reads the ledger. It never contacts the provider.
func (s *Service) Status(ctx context.Context) (Status, error) {
	recs, err := s.ledger.List(ctx, s.layout.Season)
	if err != nil {
		return Status{}, fmt.Errorf("list ledger: %w", err)
	}
	st := Status{Records: recs, Counts: make(map[model.UnitState]int)}
	for _, r := range recs {
		st.Counts[r.State]++
	}
	run, err := s.ledger.LastRun(ctx, s.layout.Season)
	switch {
	case err == nil:
		st.LastRun = &run
	case !errors.Is(err, repository.ErrRunNotFound):
		return Status{}, fmt.Errorf("last run: %w", err)
	}
	return st, nil
}

// Prune sweeps the cache of every unit the ledger knows for the season.
// Units are rebuilt from ledger keys so no catalog request is needed.
func (s *Service) Prune(ctx context.Context) (cache.SweepResult, error) {
	recs, err := s.ledger.List(ctx, s.layout.Season)
	if err != nil {
		return cache.SweepResult{}, fmt.Errorf("list ledger: %w", err)
	}
	units := make([]model.WorkUnit, 0, len(recs))
	for _, r := range recs {
		units = append(units, model.WorkUnit{
			Season:  r.Key.Season,
			Event:   model.Event{Name: r.Key.Event},
			Session: r.Key.Session,
		})
	}
	res, err := s.pruner.Sweep(ctx, units)
	s.logger.Info(ctx, "cache sweep finished",
		logger.Int("pruned", res.Pruned),
		logger.Int("kept", res.Kept),
		logger.Int("errors", res.Errors),
	)
	if err != nil {
		return res, err
	}
	for _, r := range recs {
		if r.State != model.StateFetched {
			continue
		}
		u := model.WorkUnit{Season: r.Key.Season, Event: model.Event{Name: r.Key.Event}, Session: r.Key.Session}
		done, err := s.checker.Done(ctx, u)
		if err != nil || !done {
			continue
		}
		r.State = model.StatePruned
		r.UpdatedAt = s.now().UTC()
		s.putRecord(ctx, s.logger, r)
	}
	return res, nil
}
