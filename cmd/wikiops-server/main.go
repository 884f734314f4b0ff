// wikiops-server — планировщик задач вики и приёмник webhook GitHub.
//
// Сервер:
//   - Участвует в выборе лидера; задачи по расписанию запускает только лидер
//   - Принимает ручные запуски через административный API
//   - Проверяет и асинхронно обрабатывает webhook GitHub
//   - Хранит историю выполнений
//
// Экземпляры масштабируются горизонтально при общем Postgres (DB_URL).
// Без DB_URL координация и история живут в памяти процесса.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/wikiops/internal/api"
	"github.com/shaiso/wikiops/internal/auth"
	"github.com/shaiso/wikiops/internal/config"
	"github.com/shaiso/wikiops/internal/leader"
	"github.com/shaiso/wikiops/internal/scheduler"
	"github.com/shaiso/wikiops/internal/telemetry"
	"github.com/shaiso/wikiops/internal/webhook"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.SetupLogger("INFO", "json", "wikiops-server", "").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat, "wikiops-server", cfg.InstanceID)
	logger.Info("starting wikiops-server", "env", cfg.AppEnv)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Координация и история
	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Задачи
	reg, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to load jobs", "error", err)
		os.Exit(1)
	}

	// Выбор лидера и планировщик
	elector := leader.New(leader.Config{
		Store:          st.coord,
		HolderID:       cfg.InstanceID,
		LeaseDuration:  cfg.LeaderLease,
		RenewInterval:  cfg.LeaderRenewInterval,
		AttemptTimeout: cfg.LeaderAttemptTimeout,
		Logger:         logger,
	})

	sched := scheduler.New(scheduler.Config{
		Registry:     reg,
		Locks:        st.coord,
		History:      st.history,
		Elector:      elector,
		HolderID:     cfg.InstanceID,
		TickInterval: cfg.SchedulerTick,
		Logger:       logger,
	})

	// Webhook: обработчики, очередь, приём
	hooks := webhook.NewRegistry(logger)
	webhook.NewHandlers(webhook.HandlerConfig{
		Trigger:      sched,
		ContentLabel: cfg.ContentRequestLabel,
		Branch:       cfg.WikiBranch,
		Logger:       logger,
	}).Register(hooks)

	queue, err := startQueue(ctx, cfg, hooks, logger)
	if err != nil {
		logger.Error("failed to start webhook queue", "error", err)
		os.Exit(1)
	}

	if !cfg.Production() && cfg.WebhookSecret == "" {
		logger.Warn("GITHUB_WEBHOOK_SECRET is not set, webhook deliveries will be rejected")
	}
	dispatcher := webhook.NewDispatcher(webhook.DispatcherConfig{
		Verifier:  webhook.NewVerifier(cfg.WebhookSecret),
		Queue:     queue,
		Dedupe:    st.coord,
		DedupeTTL: cfg.WebhookDedupeTTL,
		HolderID:  cfg.InstanceID,
		Logger:    logger,
	})

	gate := auth.NewGate(cfg.AdminSecret, cfg.Production())
	if gate.Open() {
		logger.Warn("ADMIN_SECRET_KEY is not set, admin API is open (development only)")
	}

	// API
	handler := api.NewHandler(api.Config{
		Scheduler:        sched,
		History:          st.history,
		Webhooks:         dispatcher,
		Gate:             gate,
		ManualRunTimeout: cfg.ManualRunTimeout,
		WebhookRateLimit: cfg.WebhookRateLimit,
		Logger:           logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	if cfg.SchedulerEnabled {
		sched.Start(ctx)
	} else {
		logger.Info("scheduler disabled, waiting for start via API")
	}

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Сначала перестаём принимать запросы, затем разбираем очередь webhook
	// (её обработчики ещё могут запускать задачи), и только потом
	// закрываем планировщик: он дожидается run'ов и освобождает lease лидера.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if err := queue.Close(shutdownCtx); err != nil {
		logger.Error("webhook queue shutdown error", "error", err)
	}
	if err := sched.Close(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown error", "error", err)
	}

	logger.Info("wikiops-server stopped")
}
