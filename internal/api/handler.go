package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shaiso/wikiops/internal/auth"
	"github.com/shaiso/wikiops/internal/domain"
	"github.com/shaiso/wikiops/internal/history"
	"github.com/shaiso/wikiops/internal/scheduler"
	"github.com/shaiso/wikiops/internal/webhook"
)

// Default configuration values.
const (
	defaultManualRunTimeout = 2 * time.Minute
	defaultStopTimeout      = 30 * time.Second
	maxWebhookBody          = 25 << 20 // GitHub ограничивает payload 25 MB
)

// Scheduler — операции планировщика, доступные через API.
type Scheduler interface {
	Status(ctx context.Context) scheduler.Status
	Start(ctx context.Context) bool
	Stop(ctx context.Context) error
	RunManually(ctx context.Context, name string, opts scheduler.RunOptions) (*domain.JobRun, error)
}

// Webhooks принимает входящие доставки.
type Webhooks interface {
	Handle(ctx context.Context, body []byte, headers http.Header) (webhook.Ack, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	scheduler        Scheduler
	history          history.Store
	webhooks         Webhooks
	gate             *auth.Gate
	manualRunTimeout time.Duration
	stopTimeout      time.Duration
	webhookRateLimit float64
	logger           *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Scheduler Scheduler
	History   history.Store
	Webhooks  Webhooks
	Gate      *auth.Gate

	// ManualRunTimeout — сколько запрос ждёт ручной run (default: 2m).
	ManualRunTimeout time.Duration
	// StopTimeout — сколько запрос ждёт завершения run'ов при остановке (default: 30s).
	StopTimeout time.Duration
	// WebhookRateLimit — запросов в секунду к webhook; 0 отключает лимит.
	WebhookRateLimit float64

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gate := cfg.Gate
	if gate == nil {
		gate = auth.NewGate("", true)
	}
	manualRunTimeout := cfg.ManualRunTimeout
	if manualRunTimeout <= 0 {
		manualRunTimeout = defaultManualRunTimeout
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}

	return &Handler{
		scheduler:        cfg.Scheduler,
		history:          cfg.History,
		webhooks:         cfg.Webhooks,
		gate:             gate,
		manualRunTimeout: manualRunTimeout,
		stopTimeout:      stopTimeout,
		webhookRateLimit: cfg.WebhookRateLimit,
		logger:           logger.With("component", "api"),
	}
}
