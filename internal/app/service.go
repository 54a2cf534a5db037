// Package service drives a season acquisition run: it fetches the catalog,
// walks the unit grid in order, persists every dataset the provider returns
// and prunes provider cache once a unit is durably stored.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitwall/internal/adapters/cache"
	"github.com/okian/pitwall/internal/adapters/provider"
	"github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/domain/completion"
	"github.com/okian/pitwall/internal/domain/layout"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/retry"
	"github.com/okian/pitwall/internal/domain/selector"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// ArtifactStore persists tables, reports whether a path exists and removes
// artifacts that could not be rewritten.
type ArtifactStore interface {
	Save(ctx context.Context, path string, table model.Table) error
	Exists(path string) (bool, error)
	Remove(path string) error
}

// Pruner removes unit cache once a unit is done.
type Pruner interface {
	MaybePrune(ctx context.Context, u model.WorkUnit) (bool, error)
	Sweep(ctx context.Context, units []model.WorkUnit) (cache.SweepResult, error)
}

// Service is the orchestrator. It is not safe for concurrent runs.
type Service struct {
	layout   layout.Layout
	provider provider.Provider
	store    ArtifactStore
	ledger   repository.Store
	pruner   Pruner
	checker  *completion.Checker
	policy   *retry.Policy
	logger   logger.Logger

	cutoff time.Time
	mode   model.RunMode
	runID  string
	now    func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLedger sets the unit ledger. Defaults to an in-memory ledger.
func WithLedger(s repository.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.ledger = s
		}
	}
}

// WithPruner replaces the cache manager.
func WithPruner(p Pruner) Option {
	return func(svc *Service) {
		if p != nil {
			svc.pruner = p
		}
	}
}

// WithRetryPolicy sets the policy wrapping every unit fetch.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(svc *Service) {
		if p != nil {
			svc.policy = p
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// WithCutoff sets the completion boundary. Defaults to now.
func WithCutoff(t time.Time) Option {
	return func(svc *Service) {
		if !t.IsZero() {
			svc.cutoff = t.UTC()
		}
	}
}

// WithMode sets the run mode.
func WithMode(m model.RunMode) Option {
	return func(svc *Service) { svc.mode = m }
}

// WithRunID fixes the run id. Defaults to a fresh UUIDv7.
func WithRunID(id string) Option {
	return func(svc *Service) {
		if id != "" {
			svc.runID = id
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

// New constructs a Service over the given layout, provider and artifact store.
func New(l layout.Layout, p provider.Provider, store ArtifactStore, opts ...Option) *Service {
	svc := &Service{
		layout:   l,
		provider: p,
		store:    store,
		ledger:   repository.NewMemoryStore(),
		policy:   retry.New(),
		logger:   logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.cutoff.IsZero() {
		svc.cutoff = svc.now().UTC()
	}
	if svc.runID == "" {
		svc.runID = uuid.Must(uuid.NewV7()).String()
	}
	svc.checker = completion.NewChecker(l, store, svc.ledger)
	if svc.pruner == nil {
		svc.pruner = cache.NewManager(l, svc.checker, cache.WithLogger(svc.logger.Named("cache")))
	}
	return svc
}

// RunID returns the id stamped on ledger rows of this run.
func (s *Service) RunID() string { return s.runID }

// Checker exposes the done predicate used by the run.
func (s *Service) Checker() *completion.Checker { return s.checker }

func (s *Service) selector() *selector.Selector {
	return selector.New(s.layout.Season, s.cutoff, s.mode)
}

func (s *Service) catalog(ctx context.Context) ([]model.Event, error) {
	events, err := s.provider.Schedule(ctx, s.layout.Season)
	if err != nil {
		metrics.RecordErrorByComponent("provider", "catalog")
		return nil, fmt.Errorf("%w %d: %w", ErrCatalog, s.layout.Season, err)
	}
	return events, nil
}

// Run performs one acquisition run. A catalog failure is fatal; per-unit
// failures are recorded and the run continues. Cancellation stops the run
// between steps and returns ctx.Err() alongside the partial report.
func (s *Service) Run(ctx context.Context) (Report, error) {
	if s.provider == nil || s.store == nil {
		return Report{}, ErrMissingDeps
	}
	started := s.now()
	rep := Report{RunID: s.runID, Season: s.layout.Season, Mode: s.mode, StartedAt: started}
	log := s.logger.With(logger.String("run_id", s.runID))

	log.Info(ctx, "run started",
		logger.Int("season", s.layout.Season),
		logger.String("mode", s.mode.String()),
		logger.Time("cutoff", s.cutoff),
		logger.String("output", s.layout.Root),
	)
	if err := s.ledger.BeginRun(ctx, repository.Run{ID: s.runID, Season: s.layout.Season, Mode: s.mode.String(), StartedAt: started}); err != nil {
		log.Warn(ctx, "ledger begin run failed", logger.Error(err))
	}

	err := s.run(ctx, log, &rep)
	rep.FinishedAt = s.now()
	s.finish(ctx, log, &rep, err)
	return rep, err
}

func (s *Service) run(ctx context.Context, log logger.Logger, rep *Report) error {
	events, err := s.catalog(ctx)
	if err != nil {
		log.Error(ctx, "catalog fetch failed", logger.Error(err))
		return err
	}
	rep.Events = len(events)

	if len(events) == 0 {
		log.Warn(ctx, "catalog is empty")
	} else if err := s.store.Save(ctx, s.layout.Events(), model.EventsTable(events)); err != nil {
		return fmt.Errorf("%w: events: %w", ErrOutputRoot, err)
	}
	log.Info(ctx, "calendar saved", logger.String("path", s.layout.Events()), logger.Int("events", len(events)))

	sel := s.selector()
	completed := sel.Completed(events)
	rep.Completed = len(completed)
	grid := sel.Grid(events)
	metrics.UpdateUnitsPlanned(len(grid))
	log.Info(ctx, "completed events found",
		logger.Int("events", len(completed)),
		logger.Int("units", len(grid)),
	)

	if len(completed) > 0 {
		rep.EntrantsWritten = s.entrants(ctx, log, completed[0])
	}

	for _, u := range grid {
		if err := ctx.Err(); err != nil {
			rep.Interrupted = true
			return err
		}
		d := sel.Decide(ctx, u, s.checker)
		if d.Err != nil {
			log.Warn(ctx, "done check failed, fetching", logger.String("unit", u.String()), logger.Error(d.Err))
		}
		metrics.RecordUnit(string(d.Action))
		if d.Action == model.ActionSkip {
			log.Info(ctx, "skipping unit, already downloaded", logger.String("unit", u.String()))
			rep.add(UnitOutcome{Unit: u, Action: model.ActionSkip})
			continue
		}
		out, err := s.fetchUnit(ctx, log, u)
		if err != nil {
			rep.Interrupted = true
			return err
		}
		rep.add(out)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, log logger.Logger, rep *Report, runErr error) {
	run := repository.Run{
		ID:         s.runID,
		Season:     s.layout.Season,
		Mode:       s.mode.String(),
		FinishedAt: rep.FinishedAt,
		Planned:    len(rep.Units),
		Fetched:    rep.Fetched,
		Skipped:    rep.Skipped,
		Failed:     rep.Failed,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// The run context may already be cancelled; the summary row still matters.
	if err := s.ledger.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn(ctx, "ledger finish run failed", logger.Error(err))
	}

	elapsed := rep.FinishedAt.Sub(rep.StartedAt)
	metrics.UpdateRunDuration(elapsed.Seconds())
	fields := []logger.Field{
		logger.Int("fetched", rep.Fetched),
		logger.Int("skipped", rep.Skipped),
		logger.Int("failed", rep.Failed),
		logger.Int("pruned", rep.Pruned),
		logger.Duration("elapsed", elapsed),
	}
	switch {
	case runErr == nil:
		metrics.UpdateRunLastSuccess(rep.FinishedAt.Unix())
		log.Info(ctx, "all completed sessions processed", fields...)
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		log.Warn(ctx, "run interrupted, resume will pick up from here", fields...)
	default:
		log.Error(ctx, "run aborted", append(fields, logger.Error(runErr))...)
	}
}

// fetchUnit fetches and persists one unit. It only returns an error when the
// context is done; every other failure is folded into the outcome.
func (s *Service) fetchUnit(ctx context.Context, log logger.Logger, u model.WorkUnit) (UnitOutcome, error) {
	out := UnitOutcome{Unit: u, Action: model.ActionFetch}
	ulog := log.With(logger.String("event", u.Event.Name), logger.String("session", u.Session.String()))
	ulog.Info(ctx, "fetching unit")

	s.putRecord(ctx, ulog, model.UnitRecord{Key: u.Key(), State: model.StatePending, RunID: s.runID})

	res := retry.Do(ctx, s.policy, func(ctx context.Context) (model.SessionData, error) {
		return s.provider.Session(ctx, u)
	}, logger.String("unit", u.String()))
	out.Attempts = res.Attempts
	metrics.RecordFetchAttempts(res.Attempts)

	if !res.OK() {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.State = model.StateFailed
		out.Err = res.Err
		metrics.RecordUnitOutcome(string(model.StateFailed))
		ulog.Error(ctx, "failed to load session",
			logger.Int("attempts", res.Attempts),
			logger.String("result", res.Kind.String()),
			logger.Error(res.Err),
		)
		s.putRecord(ctx, ulog, model.UnitRecord{
			Key: u.Key(), State: model.StateFailed, Attempts: res.Attempts, LastError: res.Err.Error(), RunID: s.runID,
		})
		return out, nil
	}

	var (
		produced    []model.ArtifactKind
		writeFailed bool
	)
	persist := func(kind model.ArtifactKind, t model.Table) {
		if t.Empty() {
			metrics.RecordEmptyDataset(string(kind))
			ulog.Info(ctx, "no data returned", logger.String("kind", string(kind)))
			return
		}
		produced = append(produced, kind)
		if s.save(ctx, ulog, u, kind, t) {
			out.Written = append(out.Written, kind)
			return
		}
		writeFailed = true
		s.dropStale(ctx, ulog, u, kind)
	}
	persist(model.ArtifactLaps, res.Value.Laps)
	persist(model.ArtifactRaceControlMessages, res.Value.RaceControlMessages)

	if u.Session == model.Race {
		for _, st := range []struct {
			kind  model.ArtifactKind
			fetch func(context.Context, model.WorkUnit) (model.Table, error)
		}{
			{model.ArtifactDriverStandings, s.provider.DriverStandings},
			{model.ArtifactConstructorStandings, s.provider.ConstructorStandings},
		} {
			t, err := st.fetch(ctx, u)
			if err != nil {
				metrics.RecordStandingsError(string(st.kind))
				ulog.Warn(ctx, "failed to get standings", logger.String("kind", string(st.kind)), logger.Error(err))
				continue
			}
			if t.Empty() {
				metrics.RecordEmptyDataset(string(st.kind))
				continue
			}
			produced = append(produced, st.kind)
			if s.save(ctx, ulog, u, st.kind, t) {
				out.Written = append(out.Written, st.kind)
			} else {
				metrics.RecordStandingsError(string(st.kind))
			}
		}
	}

	out.State = model.StateFetched
	s.putRecord(ctx, ulog, model.UnitRecord{
		Key: u.Key(), State: model.StateFetched, Produced: produced, Attempts: res.Attempts, RunID: s.runID,
	})
	metrics.RecordUnitOutcome(string(model.StateFetched))

	if writeFailed {
		ulog.Warn(ctx, "keeping cache after a failed write")
		return out, nil
	}

	pruned, err := s.pruner.MaybePrune(ctx, u)
	switch {
	case err != nil:
		ulog.Warn(ctx, "cache prune failed", logger.Error(err))
	case pruned:
		out.Pruned = true
		out.State = model.StatePruned
		s.putRecord(ctx, ulog, model.UnitRecord{
			Key: u.Key(), State: model.StatePruned, Produced: produced, Attempts: res.Attempts, RunID: s.runID,
		})
	}
	return out, nil
}

func (s *Service) save(ctx context.Context, log logger.Logger, u model.WorkUnit, kind model.ArtifactKind, t model.Table) bool {
	path, err := s.layout.Artifact(u, kind)
	if err == nil {
		err = s.store.Save(ctx, path, t)
	}
	if err != nil {
		metrics.RecordArtifactError(string(kind))
		log.Error(ctx, "artifact write failed", logger.String("kind", string(kind)), logger.String("path", path), logger.Error(err))
		return false
	}
	metrics.RecordArtifactWritten(string(kind), t.Len())
	log.Info(ctx, "artifact saved", logger.String("kind", string(kind)), logger.String("path", path), logger.Int("rows", t.Len()))
	return true
}

// dropStale removes an artifact left by an earlier run so it cannot stand in
// for data this run failed to write.
func (s *Service) dropStale(ctx context.Context, log logger.Logger, u model.WorkUnit, kind model.ArtifactKind) {
	path, err := s.layout.Artifact(u, kind)
	if err != nil {
		return
	}
	if err := s.store.Remove(path); err != nil {
		log.Warn(ctx, "stale artifact not removed", logger.String("path", path), logger.Error(err))
	}
}

func (s *Service) putRecord(ctx context.Context, log logger.Logger, rec model.UnitRecord) {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now().UTC()
	}
	if err := s.ledger.Put(ctx, rec); err != nil {
		log.Error(ctx, "ledger write failed", logger.String("state", string(rec.State)), logger.Error(err))
	}
}

// entrants writes drivers.csv and teams.csv from the race of event. On resume
// both files existing is enough to skip. Failures never abort the run.
func (s *Service) entrants(ctx context.Context, log logger.Logger, event model.Event) bool {
	if s.mode.Resume && !s.mode.Force {
		d, _ := s.store.Exists(s.layout.Drivers())
		t, _ := s.store.Exists(s.layout.Teams())
		if d && t {
			log.Info(ctx, "drivers and teams already saved")
			return false
		}
	}
	u := model.WorkUnit{Season: s.layout.Season, Event: event, Session: model.Race}
	res := retry.Do(ctx, s.policy, func(ctx context.Context) (provider.Entrants, error) {
		return s.provider.Entrants(ctx, u)
	}, logger.String("unit", u.String()))
	// The grid skips a race that is already done, so its cache is pruned here.
	if _, err := s.pruner.MaybePrune(ctx, u); err != nil {
		log.Warn(ctx, "cache prune failed", logger.String("unit", u.String()), logger.Error(err))
	}
	if !res.OK() {
		metrics.RecordErrorByComponent("provider", "entrants")
		log.Warn(ctx, "failed to fetch drivers and teams", logger.String("event", event.Name), logger.Error(res.Err))
		return false
	}
	ok := true
	for _, f := range []struct {
		path string
		t    model.Table
	}{
		{s.layout.Drivers(), res.Value.Drivers},
		{s.layout.Teams(), res.Value.Teams},
	} {
		if f.t.Empty() {
			log.Warn(ctx, "no entrants returned", logger.String("path", f.path))
			ok = false
			continue
		}
		if err := s.store.Save(ctx, f.path, f.t); err != nil {
			log.Error(ctx, "entrants write failed", logger.String("path", f.path), logger.Error(err))
			ok = false
		}
	}
	if ok {
		log.Info(ctx, "saved drivers and teams", logger.String("event", event.Name))
	}
	return ok
}
