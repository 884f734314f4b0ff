package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/wikiops/internal/domain"
	"github.com/shaiso/wikiops/internal/scheduler"
)

// Scheduler DTOs

// SchedulerResponse — состояние планировщика.
type SchedulerResponse = scheduler.Status

// SchedulerActionResponse — результат start/stop.
type SchedulerActionResponse struct {
	Running bool `json:"running"`
	// Changed — false, если планировщик уже был в нужном состоянии.
	Changed bool `json:"changed"`
}

// Run DTOs

// RunJobRequest — запрос на ручной запуск задачи.
type RunJobRequest struct {
	DryRun bool `json:"dry_run"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID         uuid.UUID        `json:"id"`
	JobName    string           `json:"job_name"`
	Status     domain.RunStatus `json:"status"`
	Trigger    domain.Trigger   `json:"trigger"`
	DryRun     bool             `json:"dry_run"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// RunFromDomain конвертирует domain.JobRun в RunResponse.
func RunFromDomain(r domain.JobRun) RunResponse {
	return RunResponse{
		ID:         r.ID,
		JobName:    r.JobName,
		Status:     r.Status,
		Trigger:    r.Trigger,
		DryRun:     r.DryRun,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.DurationMs,
	}
}

// RunsFromDomain конвертирует slice.
func RunsFromDomain(runs []domain.JobRun) []RunResponse {
	result := make([]RunResponse, len(runs))
	for i, r := range runs {
		result[i] = RunFromDomain(r)
	}
	return result
}
