package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/wikiops/internal/coord"
	"github.com/shaiso/wikiops/internal/domain"
	"github.com/shaiso/wikiops/internal/telemetry"
)

// runScheduled выполняет запуск по таймеру.
// Конкуренция за блокировку здесь штатная ситуация: run не создаётся.
func (s *Scheduler) runScheduled(ctx context.Context, def domain.JobDefinition) {
	run, err := s.execute(ctx, def, domain.TriggerScheduled, false)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Info("scheduled run skipped, job is running elsewhere", "job", def.Name)
	case errors.Is(err, ErrLockUnavailable):
		s.logger.Warn("scheduled run skipped, job lock unavailable", "job", def.Name, "error", err)
	case err != nil:
		s.logger.Error("scheduled run failed to start", "job", def.Name, "error", err)
	default:
		s.logger.Debug("scheduled run finished", "job", def.Name, "run_id", run.ID, "status", run.Status)
	}
}

// execute выполняет один run задачи.
//
// Для forbid-overlap задач сначала берётся блокировка; если она занята,
// возвращается ErrRunInProgress, если хранилище недоступно — ErrLockUnavailable.
// В обоих случаях обработчик не вызывается и run не записывается.
//
// Иначе run доходит до терминального статуса, записывается в историю,
// и блокировка освобождается.
func (s *Scheduler) execute(ctx context.Context, def domain.JobDefinition, trigger domain.Trigger, dryRun bool) (*domain.JobRun, error) {
	run := domain.NewJobRun(def.Name, trigger, dryRun)
	logger := telemetry.WithRunID(telemetry.WithJob(s.logger, def.Name), run.ID.String()).
		With("trigger", trigger, "dry_run", dryRun)

	if def.ForbidsOverlap() {
		release, err := s.acquireJobLock(ctx, def, run)
		if err != nil {
			telemetry.JobLockContention.WithLabelValues(def.Name, string(trigger)).Inc()
			return run, err
		}
		defer release()
	}

	s.markRunning(def.Name, 1)
	defer s.markRunning(def.Name, -1)

	logger.Info("job run started")

	if dryRun {
		s.invokeDryRun(ctx, def, run)
	} else {
		s.invoke(ctx, def, run, def.Handler.Execute)
	}

	s.record(ctx, run)

	attrs := []any{"status", run.Status, "duration_ms", run.DurationMs}
	switch run.Status {
	case domain.RunStatusSucceeded, domain.RunStatusSkipped:
		logger.Info("job run finished", attrs...)
	default:
		logger.Warn("job run finished", append(attrs, "error", run.Error)...)
	}

	return run, nil
}

// invokeDryRun выполняет путь проверки без побочных эффектов.
// Если обработчик его не поддерживает, run завершается как skipped.
func (s *Scheduler) invokeDryRun(ctx context.Context, def domain.JobDefinition, run *domain.JobRun) {
	v, ok := def.Handler.(domain.Validator)
	if !ok {
		run.MarkSkipped("dry run not supported by handler")
		return
	}
	s.invoke(ctx, def, run, v.Validate)
}

// invoke вызывает fn с таймаутом задачи и финализирует run.
//
// По истечении таймаута run помечается timed-out и ожидание прекращается,
// даже если обработчик ещё не вернулся. Отмена ctx (Stop) только
// передаётся обработчику: run всё равно ждёт результата или таймаута.
func (s *Scheduler) invoke(ctx context.Context, def domain.JobDefinition, run *domain.JobRun, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		result <- fn(runCtx)
	}()

	timer := time.NewTimer(def.Timeout)
	defer timer.Stop()

	select {
	case err := <-result:
		switch {
		case err == nil:
			run.MarkSucceeded()
		case errors.Is(err, context.DeadlineExceeded) && errors.Is(runCtx.Err(), context.DeadlineExceeded):
			run.MarkTimedOut(def.Timeout)
		default:
			run.MarkFailed(err.Error())
		}
	case <-timer.C:
		run.MarkTimedOut(def.Timeout)
	}
}

// acquireJobLock берёт блокировку задачи в координационном хранилище.
// TTL блокировки — таймаут задачи плюс запас: если экземпляр упадёт,
// блокировка освободится сама.
func (s *Scheduler) acquireJobLock(ctx context.Context, def domain.JobDefinition, run *domain.JobRun) (func(), error) {
	key := coord.JobLockKey(def.Name)
	holder := s.holderID + "/" + run.ID.String()

	lease, ok, err := s.locks.Acquire(ctx, key, holder, def.Timeout+s.lockGrace)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	if !ok {
		s.logger.Debug("job lock held", "job", def.Name, "holder_id", lease.HolderID, "expires_at", lease.ExpiresAt)
		return nil, ErrRunInProgress
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeOpTimeout)
		defer cancel()

		if _, err := s.locks.Release(releaseCtx, key, holder); err != nil {
			// Блокировка истечёт по TTL.
			s.logger.Warn("failed to release job lock", "job", def.Name, "error", err)
		}
	}
	return release, nil
}

// record записывает run в историю и обновляет метрики и локальный кэш.
func (s *Scheduler) record(ctx context.Context, run *domain.JobRun) {
	telemetry.JobRuns.WithLabelValues(run.JobName, string(run.Status), string(run.Trigger)).Inc()
	telemetry.JobDuration.WithLabelValues(run.JobName).Observe(run.Duration().Seconds())

	s.mu.Lock()
	if st, ok := s.jobs[run.JobName]; ok {
		last := *run
		st.lastRun = &last
	}
	s.mu.Unlock()

	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeOpTimeout)
	defer cancel()

	if err := s.history.Append(appendCtx, run); err != nil {
		s.logger.Error("failed to append run to history",
			slog.String("job", run.JobName),
			slog.String("run_id", run.ID.String()),
			slog.Any("error", err),
		)
	}
}

func (s *Scheduler) markRunning(job string, delta int) {
	s.mu.Lock()
	if st, ok := s.jobs[job]; ok {
		st.running += delta
	}
	s.mu.Unlock()
	telemetry.JobsRunning.WithLabelValues(job).Add(float64(delta))
}
