package api

import (
	"fmt"
	"net/http"
	"time"

	service "github.com/okian/pitwall/internal/app"
)

// StatusHandler serves the ledger view as JSON.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(p StatusProvider) *StatusHandler {
	return &StatusHandler{provider: p}
}

type unitView struct {
	Event     string    `json:"event"`
	Session   string    `json:"session"`
	State     string    `json:"state"`
	Produced  []string  `json:"produced"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type runView struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Fetched    int        `json:"fetched"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
}

type statusResponse struct {
	Counts  map[string]int `json:"counts"`
	Units   []unitView     `json:"units"`
	LastRun *runView       `json:"last_run,omitempty"`
}

// HandleStatus handles GET /status.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	st, err := h.provider.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status_unavailable", fmt.Errorf("%w: %w", ErrStatus, err))
		return
	}
	writeJSON(w, http.StatusOK, toResponse(st))
}

func toResponse(st service.Status) statusResponse {
	resp := statusResponse{
		Counts: make(map[string]int, len(st.Counts)),
		Units:  make([]unitView, 0, len(st.Records)),
	}
	for state, n := range st.Counts {
		resp.Counts[string(state)] = n
	}
	for _, rec := range st.Records {
		produced := make([]string, 0, len(rec.Produced))
		for _, k := range rec.Produced {
			produced = append(produced, string(k))
		}
		resp.Units = append(resp.Units, unitView{
			Event:     rec.Key.Event,
			Session:   rec.Key.Session.String(),
			State:     string(rec.State),
			Produced:  produced,
			Attempts:  rec.Attempts,
			LastError: rec.LastError,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	if run := st.LastRun; run != nil {
		v := &runView{
			ID: run.ID, Mode: run.Mode, StartedAt: run.StartedAt,
			Fetched: run.Fetched, Skipped: run.Skipped, Failed: run.Failed, Error: run.Error,
		}
		if run.Finished() {
			t := run.FinishedAt
			v.FinishedAt = &t
		}
		resp.LastRun = v
	}
	return resp
}
