package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	ratelimit "server/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/status", app.Status)

	enqueueLimiter := ratelimit.NewRateLimiter(60, time.Minute)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.With(enqueueLimiter.Handler).Post("/", app.EnqueueJob)
		r.Get("/", app.JobHistory)
		r.Get("/oldest", app.OldestPending)
		r.Get("/{id}", app.GetJob)
		r.Delete("/{id}", app.CancelJob)
	})

	return r
}
