package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobRun — одна попытка выполнения задачи.
//
// JobRun создаётся когда:
// - Лидер запускает задачу по расписанию
// - Администратор запускает задачу вручную (API/CLI)
// - Обработчик webhook запускает задачу
//
// После финализации запись неизменяема и попадает в историю выполнений.
type JobRun struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// JobName — имя задачи.
	JobName string `json:"job_name"`

	// StartedAt — время начала.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, пока run выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Status — текущий статус.
	Status RunStatus `json:"status"`

	// Trigger — источник запуска.
	Trigger Trigger `json:"trigger"`

	// DryRun — запуск без побочных эффектов.
	DryRun bool `json:"dry_run"`

	// Error — текст ошибки для failed/timed-out/skipped.
	Error string `json:"error,omitempty"`

	// DurationMs — продолжительность в миллисекундах.
	DurationMs int64 `json:"duration_ms"`
}

// NewJobRun создаёт run в статусе RUNNING.
func NewJobRun(jobName string, trigger Trigger, dryRun bool) *JobRun {
	return &JobRun{
		ID:        uuid.New(),
		JobName:   jobName,
		StartedAt: time.Now(),
		Status:    RunStatusRunning,
		Trigger:   trigger,
		DryRun:    dryRun,
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *JobRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *JobRun) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *JobRun) MarkSucceeded() {
	r.finish(RunStatusSucceeded, "")
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *JobRun) MarkFailed(err string) {
	r.finish(RunStatusFailed, err)
}

// MarkSkipped переводит run в статус SKIPPED с причиной.
func (r *JobRun) MarkSkipped(reason string) {
	r.finish(RunStatusSkipped, reason)
}

// MarkTimedOut переводит run в статус TIMED_OUT.
func (r *JobRun) MarkTimedOut(timeout time.Duration) {
	r.finish(RunStatusTimedOut, "timed out after "+timeout.String())
}

// finish финализирует run. Повторная финализация игнорируется.
func (r *JobRun) finish(status RunStatus, errMsg string) {
	if r.IsFinished() {
		return
	}
	now := time.Now()
	r.Status = status
	r.FinishedAt = &now
	r.Error = errMsg
	r.DurationMs = now.Sub(r.StartedAt).Milliseconds()
}
