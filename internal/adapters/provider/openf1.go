package provider

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/retry"
)

// DefaultOpenF1URL is the public OpenF1 API.
const DefaultOpenF1URL = "https://api.openf1.org/v1"

// meetingWindow bounds how far a meeting start may drift from the catalog's
// event date and still be considered the same weekend.
const meetingWindow = 7 * 24 * time.Hour

type openF1Meeting struct {
	MeetingKey  int    `json:"meeting_key"`
	MeetingName string `json:"meeting_name"`
	CountryName string `json:"country_name"`
	Location    string `json:"location"`
	DateStart   string `json:"date_start"`
	Year        int    `json:"year"`
}

type openF1Session struct {
	SessionKey  int    `json:"session_key"`
	SessionName string `json:"session_name"`
	MeetingKey  int    `json:"meeting_key"`
	DateStart   string `json:"date_start"`
}

// openF1 serves session datasets and entrants.
type openF1 struct {
	http    *httpClient
	baseURL string

	mu       sync.Mutex
	meetings map[int][]openF1Meeting
}

func newOpenF1(c *httpClient, baseURL string) *openF1 {
	return &openF1{
		http:     c,
		baseURL:  strings.TrimRight(baseURL, "/"),
		meetings: make(map[int][]openF1Meeting),
	}
}

func (o *openF1) endpoint(path string, q url.Values) string {
	return o.baseURL + "/" + path + "?" + q.Encode()
}

// meeting resolves the upstream meeting for event. Meeting lists are
// memoised per season for the life of the client.
func (o *openF1) meeting(ctx context.Context, season int, event model.Event) (openF1Meeting, error) {
	o.mu.Lock()
	list, ok := o.meetings[season]
	o.mu.Unlock()
	if !ok {
		q := url.Values{"year": {strconv.Itoa(season)}}
		if err := o.http.getJSON(ctx, "meetings", o.endpoint("meetings", q), "", "", &list); err != nil {
			return openF1Meeting{}, err
		}
		o.mu.Lock()
		o.meetings[season] = list
		o.mu.Unlock()
	}
	m, ok := matchMeeting(list, event)
	if !ok {
		return openF1Meeting{}, retry.Permanent(fmt.Errorf("%w: %s %d", ErrEventNotFound, event.Name, season))
	}
	return m, nil
}

// matchMeeting prefers an exact name match and falls back to the meeting
// starting closest to the event date.
func matchMeeting(list []openF1Meeting, event model.Event) (openF1Meeting, bool) {
	want := foldName(event.Name)
	for _, m := range list {
		if foldName(m.MeetingName) == want {
			return m, true
		}
	}
	date, ok := event.DateUTC()
	if !ok {
		return openF1Meeting{}, false
	}
	var (
		best     openF1Meeting
		bestDiff = time.Duration(math.MaxInt64)
	)
	for _, m := range list {
		start, ok := (model.Event{Date: m.DateStart}).DateUTC()
		if !ok {
			continue
		}
		diff := start.Sub(date)
		if diff < 0 {
			diff = -diff
		}
		if diff <= meetingWindow && diff < bestDiff {
			best, bestDiff = m, diff
		}
	}
	return best, bestDiff <= meetingWindow
}

func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

func (o *openF1) session(ctx context.Context, u model.WorkUnit, dir string) (openF1Session, error) {
	m, err := o.meeting(ctx, u.Season, u.Event)
	if err != nil {
		return openF1Session{}, err
	}
	q := url.Values{
		"meeting_key":  {strconv.Itoa(m.MeetingKey)},
		"session_name": {u.Session.UpstreamName()},
	}
	var sessions []openF1Session
	err = o.http.getJSON(ctx, "sessions", o.endpoint("sessions", q), dir, "session", &sessions)
	if err != nil && !isNotFound(err) {
		return openF1Session{}, err
	}
	if len(sessions) == 0 {
		return openF1Session{}, retry.Permanent(fmt.Errorf("%w: %s", ErrSessionNotFound, u))
	}
	return sessions[0], nil
}

// records fetches a per-session dataset. Not-found is an empty dataset.
func (o *openF1) records(ctx context.Context, path string, sessionKey int, dir string) ([]map[string]any, error) {
	q := url.Values{"session_key": {strconv.Itoa(sessionKey)}}
	var recs []map[string]any
	err := o.http.getJSON(ctx, path, o.endpoint(path, q), dir, path, &recs)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	return recs, nil
}

func (o *openF1) sessionData(ctx context.Context, u model.WorkUnit, dir string) (model.SessionData, error) {
	s, err := o.session(ctx, u, dir)
	if err != nil {
		return model.SessionData{}, err
	}
	laps, err := o.records(ctx, "laps", s.SessionKey, dir)
	if err != nil {
		return model.SessionData{}, err
	}
	msgs, err := o.records(ctx, "race_control", s.SessionKey, dir)
	if err != nil {
		return model.SessionData{}, err
	}
	return model.SessionData{
		Laps:                model.TableFromRecords(laps),
		RaceControlMessages: model.TableFromRecords(msgs),
	}, nil
}

func (o *openF1) entrants(ctx context.Context, u model.WorkUnit, dir string) (Entrants, error) {
	s, err := o.session(ctx, u, dir)
	if err != nil {
		return Entrants{}, err
	}
	drivers, err := o.records(ctx, "drivers", s.SessionKey, dir)
	if err != nil {
		return Entrants{}, err
	}
	return Entrants{
		Drivers: model.TableFromRecords(drivers),
		Teams:   teamsTable(drivers),
	}, nil
}

// teamsTable reduces driver records to one row per team, sorted by name.
func teamsTable(drivers []map[string]any) model.Table {
	colours := make(map[string]string)
	for _, d := range drivers {
		name, _ := d["team_name"].(string)
		if name == "" {
			continue
		}
		if colour, _ := d["team_colour"].(string); colours[name] == "" {
			colours[name] = colour
		}
	}
	names := make([]string, 0, len(colours))
	for n := range colours {
		names = append(names, n)
	}
	sort.Strings(names)
	t := model.Table{Columns: []string{"team_name", "team_colour"}}
	for _, n := range names {
		t.Rows = append(t.Rows, []string{n, colours[n]})
	}
	return t
}
