package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/okian/pitwall/internal/adapters/artifact"
	"github.com/okian/pitwall/internal/adapters/provider"
	"github.com/okian/pitwall/internal/domain/layout"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/retry"
)

var (
	errUpstream = errors.New("503 service unavailable")
	cutoff      = time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)
)

func season() []model.Event {
	return []model.Event{
		{Name: "Australian Grand Prix", Round: 1, Country: "Australia", Date: "2025-03-14T01:30:00Z", RaceDate: "2025-03-16T04:00:00Z"},
		{Name: "Chinese Grand Prix", Round: 2, Country: "China", Date: "2025-03-21T03:30:00Z", RaceDate: "2025-03-23T07:00:00Z"},
		{Name: "Abu Dhabi Grand Prix", Round: 24, Country: "UAE", Date: "2025-12-05T09:30:00Z", RaceDate: "2025-12-07T13:00:00Z"},
	}
}

func table(cols []string, rows ...[]string) model.Table {
	return model.Table{Columns: cols, Rows: rows}
}

func lapsFor(u model.WorkUnit) model.Table {
	return table([]string{"driver_number", "lap_number", "session"},
		[]string{"4", "1", u.Session.String()},
		[]string{"81", "1", u.Session.String()},
	)
}

func messagesFor(u model.WorkUnit) model.Table {
	return table([]string{"category", "message"}, []string{"Flag", "GREEN LIGHT - PIT EXIT OPEN " + u.Event.Name})
}

// fakeProvider serves canned data and, like the HTTP client, leaves files
// in the unit's cache directory.
type fakeProvider struct {
	mu sync.Mutex

	layout      layout.Layout
	events      []model.Event
	scheduleErr error

	emptyLaps      map[model.UnitKey]bool
	failing        map[model.UnitKey]int // remaining failures; <0 fails forever
	permanent      map[model.UnitKey]bool
	driverStandErr error
	entrantsErr    error

	calls         map[model.UnitKey]int
	entrantsCalls int
	onSession     func(n int)
	totalSessions int
}

func newFakeProvider(l layout.Layout) *fakeProvider {
	return &fakeProvider{
		layout:    l,
		events:    season(),
		emptyLaps: map[model.UnitKey]bool{},
		failing:   map[model.UnitKey]int{},
		permanent: map[model.UnitKey]bool{},
		calls:     map[model.UnitKey]int{},
	}
}

func (f *fakeProvider) Schedule(_ context.Context, _ int) ([]model.Event, error) {
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	return f.events, nil
}

func (f *fakeProvider) Session(ctx context.Context, u model.WorkUnit) (model.SessionData, error) {
	f.mu.Lock()
	f.calls[u.Key()]++
	f.totalSessions++
	n := f.totalSessions
	hook := f.onSession
	fail := f.failing[u.Key()]
	if fail > 0 {
		f.failing[u.Key()] = fail - 1
	}
	permanent := f.permanent[u.Key()]
	empty := f.emptyLaps[u.Key()]
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err := ctx.Err(); err != nil {
		return model.SessionData{}, err
	}
	if permanent {
		return model.SessionData{}, retry.Permanent(provider.ErrSessionNotFound)
	}
	if fail != 0 {
		return model.SessionData{}, errUpstream
	}

	dir := f.layout.Cache(u)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.SessionData{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "laps.json"), []byte("[]"), 0o644); err != nil {
		return model.SessionData{}, err
	}

	data := model.SessionData{RaceControlMessages: messagesFor(u)}
	if !empty {
		data.Laps = lapsFor(u)
	}
	return data, nil
}

func (f *fakeProvider) DriverStandings(_ context.Context, u model.WorkUnit) (model.Table, error) {
	if f.driverStandErr != nil {
		return model.Table{}, f.driverStandErr
	}
	return table([]string{"position", "driver_code", "points"}, []string{"1", "NOR", "25"}), nil
}

func (f *fakeProvider) ConstructorStandings(_ context.Context, u model.WorkUnit) (model.Table, error) {
	return table([]string{"position", "constructor_id", "points"}, []string{"1", "mclaren", "43"}), nil
}

func (f *fakeProvider) Entrants(_ context.Context, u model.WorkUnit) (provider.Entrants, error) {
	f.mu.Lock()
	f.entrantsCalls++
	f.mu.Unlock()
	if f.entrantsErr != nil {
		return provider.Entrants{}, f.entrantsErr
	}
	dir := f.layout.Cache(u)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return provider.Entrants{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "drivers.json"), []byte("[]"), 0o644); err != nil {
		return provider.Entrants{}, err
	}
	return provider.Entrants{
		Drivers: table([]string{"driver_number", "full_name", "team_name"}, []string{"4", "Lando NORRIS", "McLaren"}),
		Teams:   table([]string{"team_name", "team_colour"}, []string{"McLaren", "F47600"}),
	}, nil
}

func (f *fakeProvider) sessionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalSessions
}

// flakyStore fails writes whose path contains failOn.
type flakyStore struct {
	*artifact.CSVStore
	failOn string
}

func (s flakyStore) Save(ctx context.Context, path string, t model.Table) error {
	if s.failOn != "" && strings.Contains(path, s.failOn) {
		return errors.New("no space left on device")
	}
	return s.CSVStore.Save(ctx, path, t)
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func exists(path string) bool {
	ok, _ := artifact.Exists(path)
	return ok
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
