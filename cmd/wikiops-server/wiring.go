package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/wikiops/internal/config"
	"github.com/shaiso/wikiops/internal/coord"
	"github.com/shaiso/wikiops/internal/history"
	"github.com/shaiso/wikiops/internal/jobs"
	"github.com/shaiso/wikiops/internal/mq"
	"github.com/shaiso/wikiops/internal/registry"
	"github.com/shaiso/wikiops/internal/repo"
	"github.com/shaiso/wikiops/internal/webhook"
)

// storage — координационное хранилище и история выполнений.
type storage struct {
	coord   coord.Store
	history history.Store
	pool    *pgxpool.Pool
}

// openStorage подключает Postgres, если задан DB_URL, иначе
// использует in-memory хранилища (только для одного экземпляра).
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage, error) {
	if cfg.DBURL == "" {
		logger.Warn("DB_URL is not set, using in-memory coordination; run a single instance only")
		return &storage{
			coord:   coord.NewMemoryStore(),
			history: history.NewMemoryStore(cfg.HistoryMax),
		}, nil
	}

	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to database")

	return &storage{
		coord:   coord.NewPostgresStore(pool),
		history: history.NewPostgresStore(pool, cfg.HistoryMax),
		pool:    pool,
	}, nil
}

func (s *storage) Close() {
	s.coord.Close()
	if s.pool != nil {
		s.pool.Close()
	}
}

// buildRegistry собирает реестр из JOBS_FILE или встроенного расписания.
func buildRegistry(cfg config.Config, logger *slog.Logger) (*registry.Registry, error) {
	handlers := jobs.Handlers(
		jobs.NewGitSync(jobs.GitSyncConfig{
			Dir:    cfg.WikiDir,
			Remote: cfg.WikiRemote,
			Branch: cfg.WikiBranch,
			Logger: logger,
		}),
		jobs.NewIndexer(jobs.IndexerConfig{
			ContentDir: cfg.WikiDir,
			IndexPath:  cfg.SearchIndexPath,
			Logger:     logger,
		}),
	)

	if cfg.JobsFile != "" {
		reg, err := registry.LoadFile(cfg.JobsFile, handlers)
		if err != nil {
			return nil, err
		}
		logger.Info("jobs loaded", "file", cfg.JobsFile, "count", reg.Len())
		return reg, nil
	}

	return registry.New(jobs.DefaultDefinitions(handlers)...)
}

// eventQueue — очередь webhook-событий с остановкой.
type eventQueue interface {
	webhook.Queue
	Close(ctx context.Context) error
}

// startQueue запускает очередь webhook-событий: RabbitMQ, если задан
// RABBITMQ_URL и брокер доступен, иначе пул воркеров в процессе.
//
// Обработчики событий работают в собственном контексте, а не в ctx сигнала:
// он отменяется только после того, как Close разобрал очередь.
func startQueue(ctx context.Context, cfg config.Config, hooks *webhook.Registry, logger *slog.Logger) (eventQueue, error) {
	if cfg.RabbitMQURL != "" {
		q, err := startAMQPQueue(ctx, cfg.RabbitMQURL, hooks, logger)
		if err == nil {
			return q, nil
		}
		logger.Warn("RabbitMQ not available, using in-process webhook queue", "error", err)
	}

	pool := webhook.NewPool(webhook.PoolConfig{
		Dispatch: hooks.Dispatch,
		Workers:  cfg.WebhookWorkers,
		Size:     cfg.WebhookQueueSize,
		Logger:   logger,
	})
	workCtx, cancel := context.WithCancel(context.Background())
	pool.Start(workCtx)
	return &poolQueue{Pool: pool, cancel: cancel}, nil
}

// poolQueue — пул воркеров со своим контекстом.
type poolQueue struct {
	*webhook.Pool
	cancel context.CancelFunc
}

func (q *poolQueue) Close(ctx context.Context) error {
	defer q.cancel()
	return q.Pool.Close(ctx)
}

// amqpQueue — публикация в RabbitMQ и потребитель в этом же процессе.
type amqpQueue struct {
	*webhook.AMQPQueue
	conn   *mq.Connection
	cancel context.CancelFunc
	done   chan struct{}
}

func startAMQPQueue(ctx context.Context, url string, hooks *webhook.Registry, logger *slog.Logger) (*amqpQueue, error) {
	conn, err := mq.NewConnection(url, logger)
	if err != nil {
		return nil, err
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setup topology: %w", err)
	}
	logger.Info("RabbitMQ connected")

	consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueWebhookEvents),
		Handler:  webhook.ConsumeHandler(hooks.Dispatch),
		Prefetch: 4,
	})

	consumeCtx, cancel := context.WithCancel(context.Background())
	q := &amqpQueue{
		AMQPQueue: webhook.NewAMQPQueue(mq.NewPublisher(conn, logger)),
		conn:      conn,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go func() {
		defer close(q.done)
		if err := consumer.Start(consumeCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("webhook consumer stopped", "error", err)
		}
	}()

	return q, nil
}

func (q *amqpQueue) Close(ctx context.Context) error {
	q.cancel()
	select {
	case <-q.done:
	case <-ctx.Done():
	}
	return q.conn.Close()
}
