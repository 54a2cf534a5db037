package cache_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitwall/internal/adapters/cache"
	"github.com/okian/pitwall/internal/domain/layout"
	"github.com/okian/pitwall/internal/domain/model"
)

type stubChecker struct {
	done map[model.UnitKey]bool
	err  error
}

func (s stubChecker) Done(_ context.Context, u model.WorkUnit) (bool, error) {
	return s.done[u.Key()], s.err
}

func seed(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "laps.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestManager_MaybePrune(t *testing.T) {
	Convey("Given a unit with a populated cache dir", t, func() {
		ctx := context.Background()
		l := layout.New(t.TempDir(), "", 2025)
		u := model.WorkUnit{Season: 2025, Event: model.Event{Name: "Italian Grand Prix"}, Session: model.Practice3}
		seed(t, l.Cache(u))

		Convey("When the unit is not done", func() {
			m := cache.NewManager(l, stubChecker{})
			pruned, err := m.MaybePrune(ctx, u)

			Convey("Then the cache survives", func() {
				So(err, ShouldBeNil)
				So(pruned, ShouldBeFalse)
				_, statErr := os.Stat(l.Cache(u))
				So(statErr, ShouldBeNil)
			})
		})

		Convey("When the unit is done", func() {
			m := cache.NewManager(l, stubChecker{done: map[model.UnitKey]bool{u.Key(): true}})
			pruned, err := m.MaybePrune(ctx, u)

			Convey("Then the directory is removed recursively", func() {
				So(err, ShouldBeNil)
				So(pruned, ShouldBeTrue)
				_, statErr := os.Stat(l.Cache(u))
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})

			Convey("Then pruning again is a no-op", func() {
				again, err := m.MaybePrune(ctx, u)
				So(err, ShouldBeNil)
				So(again, ShouldBeFalse)
			})
		})

		Convey("When the done check fails", func() {
			boom := errors.New("ledger closed")
			m := cache.NewManager(l, stubChecker{err: boom})
			_, err := m.MaybePrune(ctx, u)

			Convey("Then nothing is removed", func() {
				So(err, ShouldWrap, boom)
				_, statErr := os.Stat(l.Cache(u))
				So(statErr, ShouldBeNil)
			})
		})

		Convey("When removal fails", func() {
			boom := errors.New("read-only file system")
			m := cache.NewManager(l, stubChecker{done: map[model.UnitKey]bool{u.Key(): true}},
				cache.WithRemover(func(string) error { return boom }))
			pruned, err := m.MaybePrune(ctx, u)

			Convey("Then the error is reported", func() {
				So(pruned, ShouldBeFalse)
				So(err, ShouldWrap, boom)
			})
		})
	})
}

func TestManager_Sweep(t *testing.T) {
	Convey("Given three units, two done", t, func() {
		ctx := context.Background()
		l := layout.New(t.TempDir(), "", 2025)
		ev := model.Event{Name: "Dutch Grand Prix"}
		units := []model.WorkUnit{
			{Season: 2025, Event: ev, Session: model.Practice1},
			{Season: 2025, Event: ev, Session: model.Practice2},
			{Season: 2025, Event: ev, Session: model.Race},
		}
		for _, u := range units {
			seed(t, l.Cache(u))
		}
		checker := stubChecker{done: map[model.UnitKey]bool{units[0].Key(): true, units[2].Key(): true}}

		Convey("When sweeping", func() {
			res, err := cache.NewManager(l, checker).Sweep(ctx, units)

			Convey("Then only done units lose their cache", func() {
				So(err, ShouldBeNil)
				So(res, ShouldResemble, cache.SweepResult{Pruned: 2, Kept: 1})
				_, statErr := os.Stat(l.Cache(units[1]))
				So(statErr, ShouldBeNil)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := cache.NewManager(l, checker).Sweep(cctx, units)

			Convey("Then the sweep stops", func() {
				So(err, ShouldEqual, context.Canceled)
			})
		})
	})
}
