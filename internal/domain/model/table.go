package model

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Table is a tabular dataset: a header row and string rows of the same width.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Empty reports whether the table has no data rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Column returns the values of the named column, or nil when absent.
func (t Table) Column(name string) []string {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		if idx < len(r) {
			out = append(out, r[idx])
		} else {
			out = append(out, "")
		}
	}
	return out
}

// TableFromRecords flattens JSON-like records into a Table. Columns are the
// sorted union of record keys so that the same records always produce the
// same table.
func TableFromRecords(records []map[string]any) Table {
	if len(records) == 0 {
		return Table{}
	}
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = formatValue(rec[c])
		}
		rows = append(rows, row)
	}
	return Table{Columns: cols, Rows: rows}
}

// formatValue renders a decoded JSON value as a CSV cell.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// SessionData is what the provider returns for one unit.
type SessionData struct {
	Laps                Table
	RaceControlMessages Table
}

// EventsTable renders the full calendar for events.csv.
func EventsTable(events []Event) Table {
	t := Table{Columns: []string{
		"round", "event_name", "country", "location", "circuit",
		"session1_date_utc", "race_date_utc", "event_date_utc",
	}}
	for _, e := range events {
		eventDate := ""
		if d, ok := e.DateUTC(); ok {
			eventDate = d.Format("2006-01-02T15:04:05Z07:00")
		}
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(e.Round), e.Name, e.Country, e.Location, e.Circuit,
			e.Date, e.RaceDate, eventDate,
		})
	}
	return t
}
