// Package config читает конфигурацию процесса из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Окружения.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config — конфигурация wikiops-server.
type Config struct {
	AppEnv     string
	APIPort    string
	InstanceID string
	LogLevel   string
	LogFormat  string

	// Postgres; пусто — in-memory координация и история (один экземпляр).
	DBURL string
	// RabbitMQ; пусто — in-process очередь webhook-событий.
	RabbitMQURL string

	WebhookSecret string
	AdminSecret   string

	LeaderLease          time.Duration
	LeaderRenewInterval  time.Duration
	LeaderAttemptTimeout time.Duration

	SchedulerEnabled bool
	SchedulerTick    time.Duration
	HistoryMax       int
	ManualRunTimeout time.Duration

	JobsFile        string
	WikiDir         string
	WikiRemote      string
	WikiBranch      string
	SearchIndexPath string

	WebhookWorkers      int
	WebhookQueueSize    int
	WebhookRateLimit    float64
	WebhookDedupeTTL    time.Duration
	ContentRequestLabel string
}

// Production возвращает true для APP_ENV=production.
func (c Config) Production() bool {
	return c.AppEnv == EnvProduction
}

// Load читает конфигурацию из окружения.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}

	cfg := Config{
		AppEnv:     strings.ToLower(r.str("APP_ENV", EnvDevelopment)),
		APIPort:    r.str("API_PORT", "8080"),
		InstanceID: r.str("INSTANCE_ID", ""),
		LogLevel:   r.str("LOG_LEVEL", "INFO"),
		LogFormat:  r.str("LOG_FORMAT", "json"),

		DBURL:       r.str("DB_URL", ""),
		RabbitMQURL: r.str("RABBITMQ_URL", ""),

		WebhookSecret: getenv("GITHUB_WEBHOOK_SECRET"),
		AdminSecret:   getenv("ADMIN_SECRET_KEY"),

		LeaderLease:          r.duration("LEADER_LEASE", 30*time.Second),
		LeaderRenewInterval:  r.duration("LEADER_RENEW_INTERVAL", 0),
		LeaderAttemptTimeout: r.duration("LEADER_ATTEMPT_TIMEOUT", 0),

		SchedulerEnabled: r.boolean("SCHEDULER_ENABLED", true),
		SchedulerTick:    r.duration("SCHEDULER_TICK", time.Second),
		HistoryMax:       r.integer("HISTORY_MAX", 100),
		ManualRunTimeout: r.duration("MANUAL_RUN_TIMEOUT", 2*time.Minute),

		JobsFile:        r.str("JOBS_FILE", ""),
		WikiDir:         r.str("WIKI_DIR", "./wiki"),
		WikiRemote:      r.str("WIKI_REMOTE", "origin"),
		WikiBranch:      r.str("WIKI_BRANCH", "main"),
		SearchIndexPath: r.str("SEARCH_INDEX_PATH", "./data/search-index.json"),

		WebhookWorkers:      r.integer("WEBHOOK_WORKERS", 4),
		WebhookQueueSize:    r.integer("WEBHOOK_QUEUE_SIZE", 256),
		WebhookRateLimit:    r.float("WEBHOOK_RATE_LIMIT", 10),
		WebhookDedupeTTL:    r.duration("WEBHOOK_DEDUPE_TTL", time.Hour),
		ContentRequestLabel: r.str("CONTENT_REQUEST_LABEL", "content-request"),
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID()
	}

	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c Config) Validate() error {
	var errs []error

	switch c.AppEnv {
	case EnvProduction, EnvDevelopment, "test":
	default:
		errs = append(errs, fmt.Errorf("APP_ENV: unknown environment %q", c.AppEnv))
	}
	if c.LeaderLease < time.Second {
		errs = append(errs, fmt.Errorf("LEADER_LEASE: must be at least 1s"))
	}
	if c.LeaderRenewInterval < 0 || (c.LeaderRenewInterval > 0 && c.LeaderRenewInterval >= c.LeaderLease) {
		errs = append(errs, fmt.Errorf("LEADER_RENEW_INTERVAL: must be shorter than LEADER_LEASE"))
	}
	if c.SchedulerTick <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_TICK: must be positive"))
	}
	if c.HistoryMax <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_MAX: must be positive"))
	}
	if c.ManualRunTimeout <= 0 {
		errs = append(errs, fmt.Errorf("MANUAL_RUN_TIMEOUT: must be positive"))
	}
	if c.WebhookWorkers <= 0 || c.WebhookQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_WORKERS and WEBHOOK_QUEUE_SIZE: must be positive"))
	}
	if c.WebhookRateLimit < 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_RATE_LIMIT: must not be negative"))
	}

	return errors.Join(errs...)
}

// defaultInstanceID — hostname с случайным суффиксом: несколько
// процессов на одном хосте не должны делить lease.
func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "wikiops"
	}
	return host + "-" + uuid.NewString()[:8]
}

// reader разбирает значения и копит ошибки.
type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) integer(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (r *reader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
