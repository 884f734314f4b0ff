package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/wikiops/internal/domain"
	"github.com/shaiso/wikiops/internal/telemetry"
)

var (
	// ErrQueueFull — очередь переполнена, доставку нужно повторить позже.
	ErrQueueFull = errors.New("webhook queue is full")

	// ErrQueueClosed — очередь закрыта при остановке процесса.
	ErrQueueClosed = errors.New("webhook queue is closed")
)

// Queue принимает проверенные события на асинхронную обработку.
// Submit не ждёт обработчика.
type Queue interface {
	Submit(ctx context.Context, evt domain.WebhookEvent) error
}

// DispatchFunc обрабатывает событие из очереди (обычно Registry.Dispatch).
type DispatchFunc func(ctx context.Context, evt domain.WebhookEvent) error

// Default pool values.
const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Pool — in-process очередь с фиксированным числом воркеров.
type Pool struct {
	events   chan domain.WebhookEvent
	dispatch DispatchFunc
	workers  int
	logger   *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// PoolConfig — конфигурация Pool.
type PoolConfig struct {
	Dispatch DispatchFunc
	Workers  int // default: 4
	Size     int // ёмкость буфера (default: 256)
	Logger   *slog.Logger
}

// NewPool создаёт пул. Воркеры запускаются Start.
func NewPool(cfg PoolConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	size := cfg.Size
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		events:   make(chan domain.WebhookEvent, size),
		dispatch: cfg.Dispatch,
		workers:  workers,
		logger:   logger.With("component", "webhook-pool"),
	}
}

// Start запускает воркеры. ctx передаётся обработчикам.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("webhook workers started", "workers", p.workers, "queue_size", cap(p.events))
}

// Submit реализует Queue. Не блокируется: при переполнении возвращает ErrQueueFull.
func (p *Pool) Submit(ctx context.Context, evt domain.WebhookEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrQueueClosed
	}

	select {
	case p.events <- evt:
		telemetry.WebhookQueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Close перестаёт принимать события и ждёт, пока воркеры разберут очередь
// (или отмены ctx).
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain webhook queue: %w", ctx.Err())
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for evt := range p.events {
		telemetry.WebhookQueueDepth.Dec()
		p.run(ctx, id, evt)
	}
}

// run — граница ошибок воркера: паника не останавливает пул.
func (p *Pool) run(ctx context.Context, id int, evt domain.WebhookEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("webhook dispatch panicked",
				"worker", id,
				"delivery_id", evt.DeliveryID,
				"event", evt.EventType,
				"panic", rec,
			)
		}
	}()

	if err := p.dispatch(ctx, evt); err != nil {
		p.logger.Debug("webhook dispatch returned error", "worker", id, "delivery_id", evt.DeliveryID, "error", err)
	}
}
