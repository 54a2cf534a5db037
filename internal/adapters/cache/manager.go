// Package cache removes a unit's transient provider cache once the unit's
// durable artifacts are on disk.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/pitwall/internal/domain/layout"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// DoneChecker answers the done predicate for a unit.
type DoneChecker interface {
	Done(ctx context.Context, u model.WorkUnit) (bool, error)
}

// Manager prunes per-unit cache directories.
type Manager struct {
	layout  layout.Layout
	checker DoneChecker
	logger  logger.Logger
	remove  func(path string) error
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRemover replaces os.RemoveAll.
func WithRemover(fn func(path string) error) Option {
	return func(m *Manager) {
		if fn != nil {
			m.remove = fn
		}
	}
}

// NewManager returns a Manager.
func NewManager(l layout.Layout, checker DoneChecker, opts ...Option) *Manager {
	m := &Manager{
		layout:  l,
		checker: checker,
		logger:  logger.Nop(),
		remove:  os.RemoveAll,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaybePrune removes the cache directory of u if u is done. It returns true
// when a directory was removed. A unit that is not done, or whose directory
// is already gone, is left alone.
func (m *Manager) MaybePrune(ctx context.Context, u model.WorkUnit) (bool, error) {
	done, err := m.checker.Done(ctx, u)
	if err != nil {
		return false, fmt.Errorf("done check %s: %w", u, err)
	}
	if !done {
		m.logger.Debug(ctx, "cache kept, unit not done", logger.String("unit", u.String()))
		return false, nil
	}

	dir := m.layout.Cache(u)
	if err := m.within(dir); err != nil {
		return false, err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("stat %s: %w", dir, err)
	}
	if err := m.remove(dir); err != nil {
		return false, fmt.Errorf("remove %s: %w", dir, err)
	}
	metrics.RecordCachePrune()
	m.logger.Info(ctx, "cache pruned", logger.String("unit", u.String()), logger.String("dir", dir))
	return true, nil
}

// SweepResult summarises a Sweep.
type SweepResult struct {
	Pruned int
	Kept   int
	Errors int
}

// Sweep applies MaybePrune to each unit in order. Per-unit errors are logged
// and counted; only context cancellation stops the sweep early.
func (m *Manager) Sweep(ctx context.Context, units []model.WorkUnit) (SweepResult, error) {
	var res SweepResult
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		pruned, err := m.MaybePrune(ctx, u)
		switch {
		case err != nil:
			res.Errors++
			m.logger.Error(ctx, "cache prune failed", logger.String("unit", u.String()), logger.Error(err))
		case pruned:
			res.Pruned++
		default:
			res.Kept++
		}
	}
	return res, nil
}

func (m *Manager) within(dir string) error {
	root, err := filepath.Abs(m.layout.CacheRoot)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s: %w", dir, ErrOutsideRoot)
	}
	return nil
}
