package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/wikiops/internal/domain"
)

// RunOptions — параметры ручного запуска.
type RunOptions struct {
	DryRun bool
}

// RunManually запускает задачу вне расписания.
//
// Лидерство и время запуска не проверяются: ручной запуск обслуживает
// любой экземпляр. Политика concurrency соблюдается: если forbid-overlap
// задача уже выполняется в кластере, сразу возвращается ErrRunInProgress
// вместе с записанным skipped run'ом.
//
// Run выполняется независимо от ctx: если вызывающий перестал ждать,
// возвращается ErrRequestTimeout, а run доходит до конца и попадает в историю.
// Если ctx уже завершён до запуска, run не начинается вовсе.
// После Close возвращается ErrShuttingDown.
func (s *Scheduler) RunManually(ctx context.Context, name string, opts RunOptions) (*domain.JobRun, error) {
	def, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestTimeout, name, err)
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	s.manual.Add(1)
	s.mu.Unlock()

	type outcome struct {
		run *domain.JobRun
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer s.manual.Done()
		run, err := s.execute(context.WithoutCancel(ctx), def, domain.TriggerManual, opts.DryRun)
		if err != nil {
			s.recordRejected(ctx, run, err)
		}
		done <- outcome{run: run, err: err}
	}()

	select {
	case o := <-done:
		return o.run, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, name)
	}
}

// recordRejected записывает отклонённый ручной запуск как skipped,
// чтобы отказ был виден в истории.
func (s *Scheduler) recordRejected(ctx context.Context, run *domain.JobRun, err error) {
	reason := ErrRunInProgress.Error()
	if !errors.Is(err, ErrRunInProgress) {
		reason = ErrLockUnavailable.Error()
	}
	run.MarkSkipped(reason)
	s.record(context.WithoutCancel(ctx), run)
}
