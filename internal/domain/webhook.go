package domain

import (
	"encoding/json"
	"time"
)

// WebhookEvent — входящее событие GitHub после успешной проверки подписи.
//
// Не сохраняется: живёт от приёма запроса до завершения обработчика.
// Идемпотентность по DeliveryID — ответственность обработчиков.
type WebhookEvent struct {
	// DeliveryID — значение заголовка X-GitHub-Delivery.
	DeliveryID string `json:"delivery_id"`

	// EventType — значение заголовка X-GitHub-Event ("ping", "issues", ...).
	EventType string `json:"event_type"`

	// Action — поле action из payload, если есть.
	Action string `json:"action,omitempty"`

	// Payload — тело запроса в исходном виде.
	Payload json.RawMessage `json:"payload"`

	// ReceivedAt — время приёма.
	ReceivedAt time.Time `json:"received_at"`
}
