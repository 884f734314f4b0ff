package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/wikiops/internal/domain"
	"github.com/shaiso/wikiops/internal/mq"
)

// ErrBrokerUnavailable — событие не удалось опубликовать в брокер.
// Доставка не принята, GitHub должен её повторить.
var ErrBrokerUnavailable = errors.New("message broker unavailable")

// EventPublisher публикует события в брокер. Реализуется mq.Publisher.
type EventPublisher interface {
	Ready() bool
	PublishWebhookEvent(ctx context.Context, messageID string, payload any) error
}

// AMQPQueue — Queue поверх RabbitMQ.
//
// Событие переживает рестарт экземпляра и обрабатывается любым
// экземпляром, на котором запущен потребитель (см. ConsumeHandler).
type AMQPQueue struct {
	publisher EventPublisher
}

// NewAMQPQueue создаёт очередь поверх publisher.
func NewAMQPQueue(publisher EventPublisher) *AMQPQueue {
	return &AMQPQueue{publisher: publisher}
}

// Submit реализует Queue. Пока брокер переподключается, сразу
// возвращает ErrBrokerUnavailable.
func (q *AMQPQueue) Submit(ctx context.Context, evt domain.WebhookEvent) error {
	if !q.publisher.Ready() {
		return ErrBrokerUnavailable
	}
	if err := q.publisher.PublishWebhookEvent(ctx, evt.DeliveryID, evt); err != nil {
		return fmt.Errorf("%w: publish webhook event: %w", ErrBrokerUnavailable, err)
	}
	return nil
}

// ConsumeHandler возвращает обработчик сообщений очереди webhooks.events.
// Ошибка dispatch отправляет сообщение в DLQ.
func ConsumeHandler(dispatch DispatchFunc) mq.Handler {
	return func(ctx context.Context, d *mq.Delivery) error {
		if d.Message.Type != mq.MessageTypeWebhookEvent {
			return fmt.Errorf("unexpected message type %q", d.Message.Type)
		}

		evt, err := mq.ParsePayload[domain.WebhookEvent](&d.Message)
		if err != nil {
			return err
		}
		return dispatch(ctx, evt)
	}
}
