package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shaiso/wikiops/internal/domain"
	"github.com/shaiso/wikiops/internal/telemetry"
)

// Handler обрабатывает событие одного типа.
type Handler interface {
	Handle(ctx context.Context, evt domain.WebhookEvent) error
}

// HandlerFunc адаптирует функцию к Handler.
type HandlerFunc func(ctx context.Context, evt domain.WebhookEvent) error

// Handle вызывает f(ctx, evt).
func (f HandlerFunc) Handle(ctx context.Context, evt domain.WebhookEvent) error {
	return f(ctx, evt)
}

// Registry сопоставляет тип события с обработчиком.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.With("component", "webhook"),
	}
}

// Register регистрирует обработчик типа события, заменяя прежний.
func (r *Registry) Register(eventType string, h Handler) {
	r.mu.Lock()
	r.handlers[eventType] = h
	r.mu.Unlock()
}

// Lookup возвращает обработчик типа события.
func (r *Registry) Lookup(eventType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[eventType]
	return h, ok
}

// Types возвращает зарегистрированные типы событий.
func (r *Registry) Types() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	r.mu.RUnlock()

	sort.Strings(types)
	return types
}

// Dispatch передаёт событие обработчику.
//
// Событие без обработчика логируется и игнорируется. Паника обработчика
// превращается в ошибку; ошибка логируется и возвращается вызывающему
// (пул её только учитывает, AMQP-потребитель отправляет сообщение в DLQ).
func (r *Registry) Dispatch(ctx context.Context, evt domain.WebhookEvent) (err error) {
	logger := telemetry.WithDelivery(r.logger, evt.DeliveryID, evt.EventType)

	h, ok := r.Lookup(evt.EventType)
	if !ok {
		logger.Info("no handler for webhook event, ignoring", "action", evt.Action)
		telemetry.WebhookDispatch.WithLabelValues(evt.EventType, "ignored").Inc()
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("webhook handler panic: %v", rec)
		}
		if err != nil {
			logger.Error("webhook handler failed", "action", evt.Action, "error", err)
			telemetry.WebhookDispatch.WithLabelValues(evt.EventType, "failed").Inc()
			return
		}
		telemetry.WebhookDispatch.WithLabelValues(evt.EventType, "handled").Inc()
	}()

	logger.Debug("dispatching webhook event", "action", evt.Action)
	return h.Handle(ctx, evt)
}
