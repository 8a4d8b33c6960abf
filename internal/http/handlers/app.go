package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tomoima525/daily-diary/internal/dispatch"
	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/infra"
	"github.com/tomoima525/daily-diary/internal/publish"
	"github.com/tomoima525/daily-diary/internal/storage"
)

// JobSubmitter accepts new jobs.
type JobSubmitter interface {
	Submit(ctx context.Context, memories []domain.PhotoMemory, locale string) (domain.Job, error)
}

// StatusOracle answers readiness and locator queries.
type StatusOracle interface {
	Status(ctx context.Context, jobID string) (publish.Status, error)
	URL(ctx context.Context, jobID string) (publish.Locator, error)
}

// App holds the collaborators the HTTP handlers need. The api process sets
// Submitter, Oracle and optionally Files; the worker sets Jobs.
type App struct {
	Submitter JobSubmitter
	Oracle    StatusOracle
	Files     *storage.FileStore
	Jobs      dispatch.Invoker
	Logger    infra.Logger
	// Component names the process in health answers: "api" or "worker".
	Component string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) clientError(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}

func (a *App) serverError(w http.ResponseWriter, r *http.Request, err error) {
	a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
	a.json(w, http.StatusInternalServerError, map[string]string{
		"error":   "internal server error",
		"message": err.Error(),
	})
}

// MethodNotAllowed answers unsupported methods with a JSON body.
func (a *App) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	a.clientError(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed")
}

// NotFound answers unknown routes with a JSON body.
func (a *App) NotFound(w http.ResponseWriter, r *http.Request) {
	a.clientError(w, http.StatusNotFound, "not found")
}

// Health reports liveness for the process serving the router.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "component": a.Component})
}
