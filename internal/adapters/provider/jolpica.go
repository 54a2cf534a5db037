package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/retry"
)

// DefaultJolpicaURL is the Ergast-compatible Jolpica API.
const DefaultJolpicaURL = "https://api.jolpi.ca/ergast/f1"

type jolpicaSession struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (s *jolpicaSession) timestamp() string {
	if s == nil || s.Date == "" {
		return ""
	}
	if s.Time == "" {
		return s.Date
	}
	return s.Date + "T" + s.Time
}

type jolpicaRace struct {
	Season   string `json:"season"`
	Round    string `json:"round"`
	RaceName string `json:"raceName"`
	Circuit  struct {
		CircuitName string `json:"circuitName"`
		Location    struct {
			Locality string `json:"locality"`
			Country  string `json:"country"`
		} `json:"Location"`
	} `json:"Circuit"`
	Date          string          `json:"date"`
	Time          string          `json:"time"`
	FirstPractice *jolpicaSession `json:"FirstPractice"`
}

type jolpicaSchedule struct {
	MRData struct {
		RaceTable struct {
			Races []jolpicaRace `json:"Races"`
		} `json:"RaceTable"`
	} `json:"MRData"`
}

type jolpicaDriver struct {
	DriverID        string `json:"driverId"`
	PermanentNumber string `json:"permanentNumber"`
	Code            string `json:"code"`
	GivenName       string `json:"givenName"`
	FamilyName      string `json:"familyName"`
	Nationality     string `json:"nationality"`
}

type jolpicaConstructor struct {
	ConstructorID string `json:"constructorId"`
	Name          string `json:"name"`
	Nationality   string `json:"nationality"`
}

type jolpicaStandings struct {
	MRData struct {
		StandingsTable struct {
			StandingsLists []struct {
				DriverStandings []struct {
					Position     string               `json:"position"`
					PositionText string               `json:"positionText"`
					Points       string               `json:"points"`
					Wins         string               `json:"wins"`
					Driver       jolpicaDriver        `json:"Driver"`
					Constructors []jolpicaConstructor `json:"Constructors"`
				} `json:"DriverStandings"`
				ConstructorStandings []struct {
					Position     string             `json:"position"`
					PositionText string             `json:"positionText"`
					Points       string             `json:"points"`
					Wins         string             `json:"wins"`
					Constructor  jolpicaConstructor `json:"Constructor"`
				} `json:"ConstructorStandings"`
			} `json:"StandingsLists"`
		} `json:"StandingsTable"`
	} `json:"MRData"`
}

// jolpica serves the season catalog and standings.
type jolpica struct {
	http    *httpClient
	baseURL string
}

func newJolpica(c *httpClient, baseURL string) *jolpica {
	return &jolpica{http: c, baseURL: strings.TrimRight(baseURL, "/")}
}

func (j *jolpica) schedule(ctx context.Context, season int) ([]model.Event, error) {
	var doc jolpicaSchedule
	u := fmt.Sprintf("%s/%d.json?limit=100", j.baseURL, season)
	if err := j.http.getJSON(ctx, "schedule", u, "", "", &doc); err != nil {
		return nil, err
	}
	races := doc.MRData.RaceTable.Races
	events := make([]model.Event, 0, len(races))
	for _, r := range races {
		round, _ := strconv.Atoi(r.Round)
		race := jolpicaSession{Date: r.Date, Time: r.Time}
		date := r.FirstPractice.timestamp()
		if date == "" {
			date = race.timestamp()
		}
		events = append(events, model.Event{
			Name:     r.RaceName,
			Round:    round,
			Country:  r.Circuit.Location.Country,
			Location: r.Circuit.Location.Locality,
			Circuit:  r.Circuit.CircuitName,
			Date:     date,
			RaceDate: race.timestamp(),
		})
	}
	return events, nil
}

func (j *jolpica) standings(ctx context.Context, u model.WorkUnit, kind, dir string) (jolpicaStandings, error) {
	var doc jolpicaStandings
	if u.Event.Round <= 0 {
		return doc, retry.Permanent(fmt.Errorf("%w: %s has no round", ErrEventNotFound, u.Event.Name))
	}
	url := fmt.Sprintf("%s/%d/%d/%s.json", j.baseURL, u.Season, u.Event.Round, kind)
	err := j.http.getJSON(ctx, kind, url, dir, kind, &doc)
	return doc, err
}

func (j *jolpica) driverStandings(ctx context.Context, u model.WorkUnit, dir string) (model.Table, error) {
	doc, err := j.standings(ctx, u, "driverstandings", dir)
	if err != nil {
		return model.Table{}, err
	}
	t := model.Table{Columns: []string{
		"position", "position_text", "points", "wins",
		"driver_id", "driver_number", "driver_code", "given_name", "family_name", "nationality",
		"constructor_ids", "constructor_names",
	}}
	for _, list := range doc.MRData.StandingsTable.StandingsLists {
		for _, s := range list.DriverStandings {
			ids := make([]string, len(s.Constructors))
			names := make([]string, len(s.Constructors))
			for i, c := range s.Constructors {
				ids[i], names[i] = c.ConstructorID, c.Name
			}
			t.Rows = append(t.Rows, []string{
				s.Position, s.PositionText, s.Points, s.Wins,
				s.Driver.DriverID, s.Driver.PermanentNumber, s.Driver.Code,
				s.Driver.GivenName, s.Driver.FamilyName, s.Driver.Nationality,
				strings.Join(ids, ";"), strings.Join(names, ";"),
			})
		}
	}
	return t, nil
}

func (j *jolpica) constructorStandings(ctx context.Context, u model.WorkUnit, dir string) (model.Table, error) {
	doc, err := j.standings(ctx, u, "constructorstandings", dir)
	if err != nil {
		return model.Table{}, err
	}
	t := model.Table{Columns: []string{
		"position", "position_text", "points", "wins", "constructor_id", "name", "nationality",
	}}
	for _, list := range doc.MRData.StandingsTable.StandingsLists {
		for _, s := range list.ConstructorStandings {
			t.Rows = append(t.Rows, []string{
				s.Position, s.PositionText, s.Points, s.Wins,
				s.Constructor.ConstructorID, s.Constructor.Name, s.Constructor.Nationality,
			})
		}
	}
	return t, nil
}
