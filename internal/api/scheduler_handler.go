package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/shaiso/wikiops/internal/scheduler"
	"github.com/shaiso/wikiops/internal/telemetry"
)

// GetScheduler возвращает состояние планировщика.
// GET /api/v1/scheduler
func (h *Handler) GetScheduler(w http.ResponseWriter, r *http.Request) {
	Success(w, h.scheduler.Status(r.Context()))
}

// StartScheduler запускает планировщик.
// POST /api/v1/scheduler/start
func (h *Handler) StartScheduler(w http.ResponseWriter, r *http.Request) {
	changed := h.scheduler.Start(r.Context())
	if changed {
		h.logger.Info("scheduler started via api")
	}
	Success(w, SchedulerActionResponse{Running: true, Changed: changed})
}

// StopScheduler останавливает планировщик и ждёт выполняющиеся run'ы
// не дольше StopTimeout. Планировщик считается остановленным и при
// истечении ожидания.
// POST /api/v1/scheduler/stop
func (h *Handler) StopScheduler(w http.ResponseWriter, r *http.Request) {
	before := h.scheduler.Status(r.Context()).Running

	ctx, cancel := context.WithTimeout(r.Context(), h.stopTimeout)
	defer cancel()

	if err := h.scheduler.Stop(ctx); err != nil {
		h.logger.Warn("scheduler stop did not drain in-flight runs", "error", err)
	}
	if before {
		h.logger.Info("scheduler stopped via api")
	}
	Success(w, SchedulerActionResponse{Running: false, Changed: before})
}

// RunJob запускает задачу вручную и ждёт результат.
// POST /api/v1/jobs/{name}/run
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		BadRequest(w, "job name is required")
		return
	}

	var req RunJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.manualRunTimeout)
	defer cancel()

	logger := telemetry.WithJob(h.logger, name)
	run, err := h.scheduler.RunManually(ctx, name, scheduler.RunOptions{DryRun: req.DryRun})
	if err != nil {
		if errors.Is(err, scheduler.ErrRequestTimeout) {
			logger.Warn("manual run outlived request timeout", "timeout", h.manualRunTimeout)
		}
		HandleError(w, logger, err)
		return
	}

	Success(w, RunFromDomain(*run))
}
