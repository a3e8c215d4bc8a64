package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/engine"
)

const defaultHistoryLimit = 50

type enqueueRequest struct {
	Type           string          `json:"type"`
	OrganizationID string          `json:"organizationId"`
	UserID         string          `json:"userId"`
	Payload        json.RawMessage `json:"payload"`
	Priority       int             `json:"priority"`
	IdempotencyKey string          `json:"idempotencyKey"`
	ScheduledFor   *time.Time      `json:"scheduledFor"`
}

func (a *App) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" || req.OrganizationID == "" {
		a.jsonError(w, http.StatusBadRequest, "type and organizationId are required")
		return
	}

	opts := engine.EnqueueOptions{
		Priority:       req.Priority,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.ScheduledFor != nil {
		opts.ScheduledFor = *req.ScheduledFor
	}

	jobID, err := a.Engine.EnqueueJob(r.Context(), domain.JobType(req.Type), req.OrganizationID, req.UserID, req.Payload, opts)
	if err != nil {
		a.writeEnqueueError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{
		"id":     jobID,
		"status": string(domain.JobStatusPending),
	})
}

func (a *App) writeEnqueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNoProcessor):
		a.jsonError(w, http.StatusBadRequest, "unknown job type")
	case errors.Is(err, domain.ErrInvalidPayload):
		a.jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDuplicateJob):
		a.jsonError(w, http.StatusConflict, "duplicate job for idempotency key")
	case errors.Is(err, domain.ErrQuotaExceeded):
		a.jsonError(w, http.StatusTooManyRequests, err.Error())
	default:
		a.Logger.Error().Err(err).Msg("http: enqueue failed")
		a.jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.jsonError(w, http.StatusNotFound, "job not found")
			return
		}
		a.Logger.Error().Err(err).Msg("http: get job failed")
		a.jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.json(w, http.StatusOK, job)
}

func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	err := a.Engine.CancelJob(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		a.json(w, http.StatusOK, map[string]string{"status": string(domain.JobStatusCancelled)})
	case errors.Is(err, domain.ErrNotFound):
		a.jsonError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrJobNotCancellable):
		a.jsonError(w, http.StatusConflict, "job is no longer pending")
	default:
		a.Logger.Error().Err(err).Msg("http: cancel job failed")
		a.jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *App) JobHistory(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organizationId")
	if orgID == "" {
		a.jsonError(w, http.StatusBadRequest, "organizationId is required")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			a.jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	jobs, err := a.Engine.GetJobHistory(r.Context(), orgID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: job history failed")
		a.jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// OldestPending reports queue head age, the main backlog signal.
func (a *App) OldestPending(w http.ResponseWriter, r *http.Request) {
	var jobType *domain.JobType
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := domain.JobType(raw)
		jobType = &t
	}

	job, err := a.Engine.GetOldestPending(r.Context(), jobType)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.json(w, http.StatusOK, map[string]any{"job": nil})
			return
		}
		a.Logger.Error().Err(err).Msg("http: oldest pending failed")
		a.jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"job":        job,
		"waitedSecs": int(time.Since(job.CreatedAt).Seconds()),
	})
}
