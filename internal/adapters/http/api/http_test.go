package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitwall/internal/adapters/http/api"
	"github.com/okian/pitwall/internal/adapters/repository"
	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/domain/model"
)

type stubStatus struct {
	st  service.Status
	err error
}

func (s stubStatus) Status(context.Context) (service.Status, error) { return s.st, s.err }

func newMux(p api.StatusProvider) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(p).Register(mux)
	return mux
}

func serve(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	Convey("Given the ops server", t, func() {
		mux := newMux(nil)

		Convey("When probing health", func() {
			rec := serve(mux, http.MethodGet, "/healthz")

			Convey("Then it answers ok", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			})
		})

		Convey("When posting to health", func() {
			rec := serve(mux, http.MethodPost, "/healthz")

			Convey("Then the method is rejected", func() {
				So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})

		Convey("When scraping metrics", func() {
			_ = serve(mux, http.MethodGet, "/healthz")
			rec := serve(mux, http.MethodGet, "/metrics")

			Convey("Then requests to the ops listener are counted", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, `pitwall_fetch_http_requests_total{endpoint="healthz"`)
			})
		})

		Convey("When no status provider is wired", func() {
			rec := serve(mux, http.MethodGet, "/status")

			Convey("Then /status is not found", func() {
				So(rec.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestStatus(t *testing.T) {
	Convey("Given a ledger with one pruned and one failed unit", t, func() {
		finished := time.Date(2025, 11, 4, 9, 30, 0, 0, time.UTC)
		st := service.Status{
			Records: []model.UnitRecord{
				{
					Key:   model.UnitKey{Season: 2025, Event: "Bahrain Grand Prix", Session: model.Race},
					State: model.StatePruned, Attempts: 1,
					Produced: []model.ArtifactKind{model.ArtifactLaps, model.ArtifactRaceControlMessages},
				},
				{
					Key:   model.UnitKey{Season: 2025, Event: "Bahrain Grand Prix", Session: model.Practice3},
					State: model.StateFailed, Attempts: 5, LastError: "503 service unavailable",
				},
			},
			Counts:  map[model.UnitState]int{model.StatePruned: 1, model.StateFailed: 1},
			LastRun: &repository.Run{ID: "run-1", Mode: "resume", FinishedAt: finished, Fetched: 1, Failed: 1},
		}
		mux := newMux(stubStatus{st: st})

		Convey("When requesting the status", func() {
			rec := serve(mux, http.MethodGet, "/status")

			var body struct {
				Counts map[string]int `json:"counts"`
				Units  []struct {
					Session   string   `json:"session"`
					State     string   `json:"state"`
					Produced  []string `json:"produced"`
					LastError string   `json:"last_error"`
				} `json:"units"`
				LastRun struct {
					ID         string     `json:"id"`
					FinishedAt *time.Time `json:"finished_at"`
				} `json:"last_run"`
			}
			err := json.Unmarshal(rec.Body.Bytes(), &body)

			Convey("Then it renders the ledger as JSON", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(err, ShouldBeNil)
				So(body.Counts, ShouldResemble, map[string]int{"pruned": 1, "failed": 1})
				So(body.Units, ShouldHaveLength, 2)
				So(body.Units[0].Session, ShouldEqual, "Race")
				So(body.Units[0].Produced, ShouldResemble, []string{"laps", "race_control_messages"})
				So(body.Units[1].LastError, ShouldEqual, "503 service unavailable")
				So(body.LastRun.ID, ShouldEqual, "run-1")
				So(body.LastRun.FinishedAt, ShouldNotBeNil)
				So(body.LastRun.FinishedAt.Equal(finished), ShouldBeTrue)
			})
		})
	})

	Convey("Given a ledger that cannot be read", t, func() {
		mux := newMux(stubStatus{err: errors.New("database is locked")})

		rec := serve(mux, http.MethodGet, "/status")

		Convey("Then the error is reported as JSON", func() {
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			So(rec.Body.String(), ShouldContainSubstring, "status_unavailable")
			So(rec.Body.String(), ShouldContainSubstring, "database is locked")
		})
	})
}
