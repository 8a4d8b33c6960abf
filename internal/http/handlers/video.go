package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/middleware"
)

const maxSubmitBody = 1 << 20

type submitRequest struct {
	PhotoMemories []domain.PhotoMemory `json:"photo_memories"`
	Locale        string               `json:"locale,omitempty"`
}

type submitResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// SubmitVideo validates the submission and dispatches a job. It returns as
// soon as the job is handed off.
func (a *App) SubmitVideo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmitBody+1))
	if err != nil {
		a.clientError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxSubmitBody {
		a.clientError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if strings.TrimSpace(string(body)) == "" {
		a.clientError(w, http.StatusBadRequest, "request body is required")
		return
	}
	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		a.clientError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	job, err := a.Submitter.Submit(r.Context(), req.PhotoMemories, locale)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			a.json(w, http.StatusBadRequest, map[string]string{"error": ve.Message, "field": ve.Field})
			return
		}
		a.serverError(w, r, err)
		return
	}

	a.json(w, http.StatusAccepted, submitResponse{
		RequestID: job.ID,
		Status:    "processing",
		Message:   "Video generation started. Poll /video/" + job.ID + " until isReady is true.",
	})
}

// VideoStatus reports whether the job's video has been published.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobID(w, r)
	if !ok {
		return
	}
	status, err := a.Oracle.Status(r.Context(), jobID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, status)
}

// VideoURL exchanges a ready job for a time-limited playback URL.
func (a *App) VideoURL(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobID(w, r)
	if !ok {
		return
	}
	loc, err := a.Oracle.URL(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.clientError(w, http.StatusNotFound, "video is not ready")
			return
		}
		a.serverError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, loc)
}

func (a *App) jobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID, err := domain.ParseJobID(chi.URLParam(r, "requestId"))
	if err != nil {
		var ve *domain.ValidationError
		msg := err.Error()
		if errors.As(err, &ve) {
			msg = ve.Message
		}
		a.clientError(w, http.StatusBadRequest, msg)
		return "", false
	}
	return jobID, true
}
