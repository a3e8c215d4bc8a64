package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/engine"
)

// App bundles the dependencies of the ops endpoints. Reads go straight to
// the job repository, writes go through the engine so they pass quota and
// idempotency checks.
type App struct {
	Engine *engine.Engine
	Jobs   domain.JobRepository
	Logger zerolog.Logger
}

func NewApp(eng *engine.Engine, jobs domain.JobRepository, logger zerolog.Logger) *App {
	return &App{Engine: eng, Jobs: jobs, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) jsonError(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}
