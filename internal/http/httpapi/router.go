package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tomoima525/daily-diary/internal/http/handlers"
	"github.com/tomoima525/daily-diary/internal/infra"
	"github.com/tomoima525/daily-diary/internal/middleware"
)

// Options configures the public router.
type Options struct {
	CORSOrigins []string
	// SubmitRateLimit caps POST /video per client IP per minute; zero disables it.
	SubmitRateLimit int
	DefaultLocale   string
	Logger          infra.Logger
}

// NewRouter mounts the submission, status and file routes.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
	)
	r.NotFound(app.NotFound)
	r.MethodNotAllowed(app.MethodNotAllowed)

	r.Get("/healthz", app.Health)

	r.Route("/video", func(r chi.Router) {
		r.With(
			middleware.RateLimit(opts.SubmitRateLimit, time.Minute),
			middleware.Locale(opts.DefaultLocale),
		).Post("/", app.SubmitVideo)
		r.Get("/{requestId}", app.VideoStatus)
		r.Get("/{requestId}/url", app.VideoURL)
	})

	r.Get("/files/*", app.DownloadFile)

	return r
}

// NewWorkerRouter mounts the worker's job intake.
func NewWorkerRouter(app *handlers.App, logger infra.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, middleware.RequestID, middleware.Logger(logger), chimw.Recoverer)
	r.NotFound(app.NotFound)
	r.MethodNotAllowed(app.MethodNotAllowed)

	r.Get("/healthz", app.Health)
	r.Post("/jobs", app.AcceptJob)

	return r
}
