package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitwall/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// upstreamMux serves a one-event season. Practice 3 does not exist.
func upstreamMux() http.Handler {
	mux := http.NewServeMux()
	write := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}
	mux.Handle("/ergast/f1/2025.json", write(`{"MRData":{"RaceTable":{"season":"2025","Races":[
 {"season":"2025","round":"1","raceName":"Australian Grand Prix","date":"2025-03-16","time":"04:00:00Z",
  "Circuit":{"circuitName":"Albert Park Grand Prix Circuit","Location":{"locality":"Melbourne","country":"Australia"}},
  "FirstPractice":{"date":"2025-03-14","time":"01:30:00Z"}}]}}}`))
	mux.Handle("/ergast/f1/2025/1/driverstandings.json", write(`{"MRData":{"StandingsTable":{"StandingsLists":[{"DriverStandings":[
 {"position":"1","positionText":"1","points":"25","wins":"1",
  "Driver":{"driverId":"norris","permanentNumber":"4","code":"NOR","givenName":"Lando","familyName":"Norris","nationality":"British"},
  "Constructors":[{"constructorId":"mclaren","name":"McLaren","nationality":"British"}]}]}]}}}`))
	mux.Handle("/ergast/f1/2025/1/constructorstandings.json", write(`{"MRData":{"StandingsTable":{"StandingsLists":[{"ConstructorStandings":[
 {"position":"1","positionText":"1","points":"27","wins":"1","Constructor":{"constructorId":"mclaren","name":"McLaren","nationality":"British"}}]}]}}}`))
	mux.Handle("/v1/meetings", write(`[{"meeting_key":1254,"meeting_name":"Australian Grand Prix","country_name":"Australia","date_start":"2025-03-14T01:30:00+00:00","year":2025}]`))
	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("session_name")
		if name == "Practice 3" {
			write(`[]`)(w, r)
			return
		}
		write(`[{"session_key":9693,"session_name":"`+name+`","meeting_key":1254}]`)(w, r)
	})
	mux.Handle("/v1/laps", write(`[{"driver_number":4,"lap_number":1,"lap_duration":82.167}]`))
	mux.Handle("/v1/race_control", write(`[{"category":"Flag","flag":"GREEN","message":"GREEN LIGHT - PIT EXIT OPEN"}]`))
	mux.Handle("/v1/drivers", write(`[{"driver_number":4,"full_name":"Lando NORRIS","team_name":"McLaren","team_colour":"F47600"}]`))
	return mux
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		cmd := newRootCommand()

		convey.Convey("Then it should expose fetch, status and prune", func() {
			convey.So(cmd.Use, convey.ShouldEqual, "pitwall")
			for _, name := range []string{"fetch", "status", "prune"} {
				sub, _, err := cmd.Find([]string{name})
				convey.So(err, convey.ShouldBeNil)
				convey.So(sub.Name(), convey.ShouldEqual, name)
			}
		})

		convey.Convey("Then fetch should default to resume", func() {
			fetch, _, _ := cmd.Find([]string{"fetch"})
			convey.So(fetch.Flags().Lookup("resume").DefValue, convey.ShouldEqual, "true")
			convey.So(fetch.Flags().Lookup("force").DefValue, convey.ShouldEqual, "false")
			convey.So(fetch.Flags().Lookup("dry-run"), convey.ShouldNotBeNil)
			convey.So(cmd.PersistentFlags().Lookup("season"), convey.ShouldNotBeNil)
		})
	})
}

func TestExitCode(t *testing.T) {
	convey.Convey("Given errors from commands", t, func() {
		convey.So(exitCode(nil), convey.ShouldEqual, exitOK)
		convey.So(exitCode(errors.New("boom")), convey.ShouldEqual, exitFailure)
		convey.So(exitCode(wrapExit(exitConfig, "bad", errors.New("flag"))), convey.ShouldEqual, exitConfig)
		convey.So(wrapExit(exitFailure, "run failed", context.Canceled).Error(), convey.ShouldEqual, "run failed: context canceled")
		convey.So(errors.Is(wrapExit(exitFailure, "run failed", context.Canceled), context.Canceled), convey.ShouldBeTrue)
	})
}

func TestCommands(t *testing.T) {
	convey.Convey("Given an upstream and an empty output directory", t, func() {
		srv := httptest.NewServer(upstreamMux())
		defer srv.Close()
		t.Setenv("PITWALL_CONFIG", "")
		t.Setenv("PITWALL_OPENF1_BASE_URL", srv.URL+"/v1")
		t.Setenv("PITWALL_JOLPICA_BASE_URL", srv.URL+"/ergast/f1")
		t.Setenv("PITWALL_BACKOFF_STEP", "0s")
		out := t.TempDir()
		common := []string{"--season", "2025", "--out", out}

		convey.Convey("When asking for status before any run", func() {
			text, err := execute(append([]string{"status"}, common...)...)

			convey.Convey("Then nothing is recorded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(text, convey.ShouldContainSubstring, "season 2025: no units recorded")
			})
		})

		convey.Convey("When planning with --dry-run", func() {
			text, err := execute(append([]string{"fetch", "--dry-run", "--cutoff", "2025-03-20"}, common...)...)

			convey.Convey("Then every unit would be fetched and nothing is written", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(text, convey.ShouldContainSubstring, "5 units, 5 to fetch (resume)")
				_, statErr := os.Stat(filepath.Join(out, "events.csv"))
				convey.So(os.IsNotExist(statErr), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When fetching", func() {
			text, err := execute(append([]string{"fetch", "--cutoff", "2025-03-20"}, common...)...)

			convey.Convey("Then the weekend is saved and the missing session fails", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(text, convey.ShouldContainSubstring, "4 fetched, 0 skipped, 1 failed, 4 pruned")
				convey.So(isFile(filepath.Join(out, "laps", "Australian Grand Prix_Race_laps.csv")), convey.ShouldBeTrue)
				convey.So(isFile(filepath.Join(out, "standings", "Australian Grand Prix_driver_standings.csv")), convey.ShouldBeTrue)
				convey.So(isFile(filepath.Join(out, "drivers.csv")), convey.ShouldBeTrue)
			})

			convey.Convey("And the run log and metrics snapshot are kept", func() {
				logs, _ := filepath.Glob(filepath.Join(out, "logs", "run_*.log"))
				convey.So(logs, convey.ShouldHaveLength, 1)
				body, err := os.ReadFile(logs[0])
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(body), convey.ShouldContainSubstring, "run started")

				proms, _ := filepath.Glob(filepath.Join(out, "logs", "metrics_*.prom"))
				convey.So(proms, convey.ShouldHaveLength, 1)
			})

			convey.Convey("And status reports the ledger", func() {
				text, err := execute(append([]string{"status"}, common...)...)
				convey.So(err, convey.ShouldBeNil)
				convey.So(text, convey.ShouldContainSubstring, "failed=1 pruned=4")
				convey.So(text, convey.ShouldContainSubstring, "4 fetched, 0 skipped, 1 failed")
			})

			convey.Convey("And prune has nothing left to remove", func() {
				text, err := execute(append([]string{"prune"}, common...)...)
				convey.So(err, convey.ShouldBeNil)
				convey.So(text, convey.ShouldContainSubstring, "pruned 0")
			})
		})

		convey.Convey("When the season is out of range", func() {
			_, err := execute("fetch", "--season", "1800", "--out", out)

			convey.Convey("Then it fails as a configuration error", func() {
				convey.So(exitCode(err), convey.ShouldEqual, exitConfig)
			})
		})
	})

	convey.Convey("Given a catalog that is down", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		t.Setenv("PITWALL_CONFIG", "")
		t.Setenv("PITWALL_OPENF1_BASE_URL", srv.URL+"/v1")
		t.Setenv("PITWALL_JOLPICA_BASE_URL", srv.URL+"/ergast/f1")

		_, err := execute("fetch", "--season", "2025", "--out", t.TempDir())

		convey.Convey("Then fetch exits with a failure", func() {
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(exitCode(err), convey.ShouldEqual, exitFailure)
		})
	})
}
