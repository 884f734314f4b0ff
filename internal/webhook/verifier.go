package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/wikiops/internal/domain"
)

// Заголовки GitHub webhook.
const (
	HeaderSignature = "X-Hub-Signature-256"
	HeaderEvent     = "X-GitHub-Event"
	HeaderDelivery  = "X-GitHub-Delivery"

	signaturePrefix = "sha256="
)

// Reason — машиночитаемая причина отказа в проверке.
type Reason string

// Причины отказа в порядке проверки.
const (
	ReasonMissingSignature Reason = "missing_signature"
	ReasonWebhookDisabled  Reason = "webhook_disabled"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonMissingEvent     Reason = "missing_event"
	ReasonInvalidPayload   Reason = "invalid_payload"
)

// VerificationError — отказ в проверке входящей доставки.
type VerificationError struct {
	Reason Reason
}

func (e *VerificationError) Error() string {
	return "webhook rejected: " + string(e.Reason)
}

// Message возвращает короткий текст для отправителя.
// Подробности остаются в логах сервера.
func (e *VerificationError) Message() string {
	switch e.Reason {
	case ReasonMissingSignature:
		return "missing signature"
	case ReasonWebhookDisabled:
		return "webhook disabled"
	case ReasonMissingEvent:
		return "missing event type"
	case ReasonInvalidPayload:
		return "invalid payload"
	default:
		return "invalid signature"
	}
}

func reject(r Reason) error {
	return &VerificationError{Reason: r}
}

// Verifier проверяет подпись HMAC-SHA256 над исходным телом запроса.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier создаёт Verifier. Пустой secret означает, что webhook
// отключён: все доставки отклоняются.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Enabled возвращает true, если секрет задан.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify проверяет доставку и возвращает событие.
//
// Проверки идут по порядку до первой ошибки:
//  1. заголовок подписи есть
//  2. секрет задан
//  3. подпись совпадает (сравнение за постоянное время)
//  4. заголовок типа события есть
//  5. тело — корректный JSON
//
// Ошибка всегда *VerificationError.
func (v *Verifier) Verify(body []byte, headers http.Header) (domain.WebhookEvent, error) {
	sig := strings.TrimSpace(headers.Get(HeaderSignature))
	if sig == "" {
		return domain.WebhookEvent{}, reject(ReasonMissingSignature)
	}

	if !v.Enabled() {
		return domain.WebhookEvent{}, reject(ReasonWebhookDisabled)
	}

	if !v.validSignature(body, sig) {
		return domain.WebhookEvent{}, reject(ReasonInvalidSignature)
	}

	eventType := strings.TrimSpace(headers.Get(HeaderEvent))
	if eventType == "" {
		return domain.WebhookEvent{}, reject(ReasonMissingEvent)
	}

	if !json.Valid(body) {
		return domain.WebhookEvent{}, reject(ReasonInvalidPayload)
	}

	// action есть не у всех событий; тело может быть не объектом.
	var envelope struct {
		Action string `json:"action"`
	}
	_ = json.Unmarshal(body, &envelope)

	payload := make([]byte, len(body))
	copy(payload, body)

	return domain.WebhookEvent{
		DeliveryID: strings.TrimSpace(headers.Get(HeaderDelivery)),
		EventType:  eventType,
		Action:     envelope.Action,
		Payload:    payload,
		ReceivedAt: v.now(),
	}, nil
}

func (v *Verifier) validSignature(body []byte, header string) bool {
	hexSig, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, mac(v.secret, body))
}

func mac(secret, body []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return h.Sum(nil)
}

// Sign возвращает значение заголовка X-Hub-Signature-256 для body.
func Sign(secret string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(mac([]byte(secret), body))
}
