package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tomoima525/daily-diary/internal/dispatch"
	"github.com/tomoima525/daily-diary/internal/domain"
)

// AcceptJob is the worker's one-way entry point. It starts the pipeline and
// answers 202 without waiting for it.
func (a *App) AcceptJob(w http.ResponseWriter, r *http.Request) {
	var job domain.Job
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSubmitBody)).Decode(&job); err != nil {
		a.clientError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := domain.ParseJobID(job.ID)
	if err != nil {
		a.clientError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The output key is derived from the canonical id that status lookups use.
	job.ID = id
	job.Memories = domain.NormalizeMemories(job.Memories)
	if err := job.Validate(); err != nil {
		a.clientError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.Jobs.Invoke(r.Context(), job); err != nil {
		if errors.Is(err, dispatch.ErrClosed) {
			a.clientError(w, http.StatusServiceUnavailable, "worker is shutting down")
			return
		}
		a.serverError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, submitResponse{
		RequestID: job.ID,
		Status:    "processing",
		Message:   "job accepted",
	})
}
