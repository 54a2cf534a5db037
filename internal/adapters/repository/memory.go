package repository

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/okian/pitwall/internal/domain/model"
)

// MemoryStore is an in-process ledger. It forgets everything on exit and is
// used for dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	opts    options
	records map[model.UnitKey]model.UnitRecord
	order   map[model.UnitKey]int
	runs    []Run
	closed  bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{opts: o, records: make(map[model.UnitKey]model.UnitRecord), order: make(map[model.UnitKey]int)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key model.UnitKey) (model.UnitRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.UnitRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.UnitRecord{}, ErrClosed
	}
	rec, ok := s.records[key]
	if !ok {
		return model.UnitRecord{}, notFound(key)
	}
	rec.Produced = slices.Clone(rec.Produced)
	return rec, nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, rec model.UnitRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validState(rec.State); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	rec.Produced = slices.Clone(rec.Produced)
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.opts.now().UTC()
	}
	if _, ok := s.order[rec.Key]; !ok {
		s.order[rec.Key] = len(s.order)
	}
	s.records[rec.Key] = rec
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, season int) ([]model.UnitRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]model.UnitRecord, 0, len(s.records))
	for k, rec := range s.records {
		if k.Season != season {
			continue
		}
		rec.Produced = slices.Clone(rec.Produced)
		out = append(out, rec)
	}
	// Records keep the order they were first written in.
	sort.Slice(out, func(i, j int) bool {
		return s.order[out[i].Key] < s.order[out[j].Key]
	})
	return out, nil
}

// BeginRun implements Store.
func (s *MemoryStore) BeginRun(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.opts.now().UTC()
	}
	s.runs = append(s.runs, run)
	return nil
}

// FinishRun implements Store.
func (s *MemoryStore) FinishRun(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for i := range s.runs {
		if s.runs[i].ID != run.ID {
			continue
		}
		started := s.runs[i].StartedAt
		if run.FinishedAt.IsZero() {
			run.FinishedAt = s.opts.now().UTC()
		}
		run.StartedAt = started
		s.runs[i] = run
		return nil
	}
	return ErrRunNotFound
}

// LastRun implements Store.
func (s *MemoryStore) LastRun(ctx context.Context, season int) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Run{}, ErrClosed
	}
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].Season == season {
			return s.runs[i], nil
		}
	}
	return Run{}, ErrRunNotFound
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
