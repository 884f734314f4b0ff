package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/wikiops/internal/coord"
	"github.com/shaiso/wikiops/internal/telemetry"
)

const dedupeTimeout = 2 * time.Second

// Ack — подтверждение приёма доставки.
// Не означает, что обработчик выполнен.
type Ack struct {
	OK         bool   `json:"ok"`
	DeliveryID string `json:"delivery_id,omitempty"`
	Event      string `json:"event"`
	Action     string `json:"action,omitempty"`
	Duplicate  bool   `json:"duplicate,omitempty"`
}

// Dispatcher проверяет входящие доставки и ставит их в очередь.
type Dispatcher struct {
	verifier  *Verifier
	queue     Queue
	dedupe    coord.Store
	dedupeTTL time.Duration
	holderID  string
	logger    *slog.Logger
}

// DispatcherConfig — конфигурация Dispatcher.
type DispatcherConfig struct {
	Verifier *Verifier
	Queue    Queue

	// Dedupe — хранилище для отсечения повторных доставок.
	// nil или DedupeTTL <= 0 отключают проверку.
	Dedupe    coord.Store
	DedupeTTL time.Duration
	HolderID  string

	Logger *slog.Logger
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		verifier:  cfg.Verifier,
		queue:     cfg.Queue,
		dedupe:    cfg.Dedupe,
		dedupeTTL: cfg.DedupeTTL,
		holderID:  cfg.HolderID,
		logger:    logger.With("component", "webhook"),
	}
}

// Handle проверяет доставку и ставит событие в очередь.
//
// Ошибка проверки — *VerificationError: событие никуда не передаётся.
// ErrQueueFull и ErrQueueClosed означают, что доставку нужно повторить.
// Обработчик выполняется уже после возврата из Handle.
func (d *Dispatcher) Handle(ctx context.Context, body []byte, headers http.Header) (Ack, error) {
	evt, err := d.verifier.Verify(body, headers)
	if err != nil {
		var verr *VerificationError
		if errors.As(err, &verr) {
			d.logger.Warn("webhook delivery rejected",
				"reason", verr.Reason,
				"delivery_id", headers.Get(HeaderDelivery),
			)
			telemetry.WebhookDeliveries.WithLabelValues("unverified", string(verr.Reason)).Inc()
		}
		return Ack{}, err
	}

	logger := telemetry.WithDelivery(d.logger, evt.DeliveryID, evt.EventType)
	ack := Ack{OK: true, DeliveryID: evt.DeliveryID, Event: evt.EventType, Action: evt.Action}

	claim, duplicate := d.claim(ctx, logger, evt.DeliveryID)
	if duplicate {
		logger.Info("duplicate webhook delivery acknowledged")
		telemetry.WebhookDeliveries.WithLabelValues(evt.EventType, "duplicate").Inc()
		ack.Duplicate = true
		return ack, nil
	}

	if err := d.queue.Submit(ctx, evt); err != nil {
		if claim != "" {
			d.unclaim(ctx, evt.DeliveryID, claim)
		}
		logger.Error("failed to enqueue webhook event", "error", err)
		telemetry.WebhookDeliveries.WithLabelValues(evt.EventType, "enqueue_failed").Inc()
		return Ack{}, err
	}

	logger.Info("webhook delivery accepted", "action", evt.Action)
	telemetry.WebhookDeliveries.WithLabelValues(evt.EventType, "accepted").Inc()
	return ack, nil
}

// claim помечает доставку как принятую и возвращает владельца отметки.
// Владелец уникален для каждой попытки, иначе повтор той же доставки
// на том же экземпляре продлил бы отметку вместо отказа.
// Сбой хранилища не блокирует обработку: обработчики идемпотентны.
func (d *Dispatcher) claim(ctx context.Context, logger *slog.Logger, deliveryID string) (holder string, duplicate bool) {
	if d.dedupe == nil || d.dedupeTTL <= 0 || deliveryID == "" {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, dedupeTimeout)
	defer cancel()

	holder = d.holderID + "/" + uuid.NewString()
	_, ok, err := d.dedupe.Acquire(ctx, coord.DeliveryKey(deliveryID), holder, d.dedupeTTL)
	if err != nil {
		logger.Warn("delivery de-duplication unavailable", "error", err)
		return "", false
	}
	if !ok {
		return "", true
	}
	return holder, false
}

func (d *Dispatcher) unclaim(ctx context.Context, deliveryID, holder string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dedupeTimeout)
	defer cancel()

	if _, err := d.dedupe.Release(ctx, coord.DeliveryKey(deliveryID), holder); err != nil {
		d.logger.Warn("failed to release delivery claim", "delivery_id", deliveryID, "error", err)
	}
}
