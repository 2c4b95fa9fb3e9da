package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/videosync/internal/adapters/repository"
	"github.com/okian/videosync/internal/domain/model"
)

// RunsHandler serves stored synchronization runs.
type RunsHandler struct {
	store RunStore
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(store RunStore) *RunsHandler {
	return &RunsHandler{store: store}
}

type runResponse struct {
	ID           string    `json:"id"`
	Job          string    `json:"job"`
	Recording    string    `json:"recording"`
	CameraSerial string    `json:"camera_serial"`
	FillMode     string    `json:"fill_mode"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Segments     int       `json:"segments"`
	Matched      int       `json:"matched"`
	Records      int       `json:"records"`
}

type anomalyResponse struct {
	Stream string `json:"stream"`
	model.AnomalyRecord
}

type runDetailResponse struct {
	runResponse
	Anomalies []anomalyResponse `json:"anomalies"`
}

func newRunResponse(r repository.Run) runResponse {
	return runResponse{
		ID:           r.ID,
		Job:          r.Job,
		Recording:    r.RecordingID,
		CameraSerial: r.CameraSerial,
		FillMode:     r.FillMode,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Segments:     r.Segments,
		Matched:      r.Matched,
		Records:      r.Records,
	}
}

// HandleList handles GET /runs, optionally filtered by ?job=.
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	job := strings.TrimSpace(r.URL.Query().Get("job"))
	runs, err := h.store.Runs(r.Context(), job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, newRunResponse(run))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /runs/{id} with the run's anomalies.
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing run id", ErrBadRequest))
		return
	}
	run, err := h.store.Run(r.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	anomalies, err := h.store.Anomalies(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	out := runDetailResponse{runResponse: newRunResponse(run), Anomalies: make([]anomalyResponse, 0, len(anomalies))}
	for _, a := range anomalies {
		out.Anomalies = append(out.Anomalies, anomalyResponse{Stream: a.Stream, AnomalyRecord: a.AnomalyRecord})
	}
	writeJSON(w, http.StatusOK, out)
}
