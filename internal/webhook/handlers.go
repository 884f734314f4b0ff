package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shaiso/wikiops/internal/domain"
	"github.com/shaiso/wikiops/internal/scheduler"
	"github.com/shaiso/wikiops/internal/telemetry"
)

// Типы событий GitHub, для которых есть обработчики.
const (
	EventPing         = "ping"
	EventIssues       = "issues"
	EventIssueComment = "issue_comment"
	EventPush         = "push"
)

// defaultTriggerWait — сколько обработчик ждёт запущенный run,
// прежде чем отпустить воркер очереди.
const defaultTriggerWait = 5 * time.Second

// JobTrigger — точка ручного запуска задач (scheduler.Scheduler).
type JobTrigger interface {
	RunManually(ctx context.Context, name string, opts scheduler.RunOptions) (*domain.JobRun, error)
}

// ContentRequest — запрос на новый материал, оформленный issue.
type ContentRequest struct {
	DeliveryID string   `json:"delivery_id"`
	Repository string   `json:"repository"`
	Number     int      `json:"number"`
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	URL        string   `json:"url"`
	Labels     []string `json:"labels"`
}

// ContentRequestSink принимает запросы на материалы.
// Повтор одной доставки может прийти дважды: Record должен быть идемпотентным.
type ContentRequestSink interface {
	Record(ctx context.Context, req ContentRequest) error
}

// LogSink записывает запросы в структурированный лог.
type LogSink struct {
	Logger *slog.Logger
}

// Record реализует ContentRequestSink.
func (s LogSink) Record(_ context.Context, req ContentRequest) error {
	s.Logger.Info("content request received",
		"delivery_id", req.DeliveryID,
		"repository", req.Repository,
		"issue", req.Number,
		"title", req.Title,
		"author", req.Author,
		"url", req.URL,
	)
	return nil
}

// HandlerConfig — зависимости встроенных обработчиков.
type HandlerConfig struct {
	Trigger JobTrigger
	Sink    ContentRequestSink // default: LogSink

	SyncJob      string // задача синхронизации (default: "wiki-sync")
	ReindexJob   string // задача переиндексации (default: "search-reindex")
	ContentLabel string // метка запроса на материал (default: "content-request")
	Branch       string // ветка, push в которую запускает синхронизацию (default: "main")

	// TriggerWait — сколько ждать результат запущенного run (default: 5s).
	// Дольше run идёт в фоне и попадает в историю.
	TriggerWait time.Duration

	Logger *slog.Logger
}

// Handlers — встроенные обработчики событий GitHub.
type Handlers struct {
	cfg    HandlerConfig
	logger *slog.Logger
}

// NewHandlers создаёт обработчики с заполненными значениями по умолчанию.
func NewHandlers(cfg HandlerConfig) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = LogSink{Logger: cfg.Logger}
	}
	if cfg.SyncJob == "" {
		cfg.SyncJob = "wiki-sync"
	}
	if cfg.ReindexJob == "" {
		cfg.ReindexJob = "search-reindex"
	}
	if cfg.ContentLabel == "" {
		cfg.ContentLabel = "content-request"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.TriggerWait <= 0 {
		cfg.TriggerWait = defaultTriggerWait
	}
	return &Handlers{cfg: cfg, logger: cfg.Logger.With("component", "webhook")}
}

// Register регистрирует обработчики в реестре.
func (h *Handlers) Register(r *Registry) {
	r.Register(EventPing, HandlerFunc(h.Ping))
	r.Register(EventIssues, HandlerFunc(h.ContentRequest))
	r.Register(EventIssueComment, HandlerFunc(h.Comment))
	r.Register(EventPush, HandlerFunc(h.Push))
}

type repository struct {
	FullName string `json:"full_name"`
}

type user struct {
	Login string `json:"login"`
}

type label struct {
	Name string `json:"name"`
}

type issue struct {
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	HTMLURL string  `json:"html_url"`
	User    user    `json:"user"`
	Labels  []label `json:"labels"`
}

// Ping — проверка связи при создании webhook. Задачи не запускаются.
func (h *Handlers) Ping(_ context.Context, evt domain.WebhookEvent) error {
	var p struct {
		Zen    string `json:"zen"`
		HookID int64  `json:"hook_id"`
	}
	_ = json.Unmarshal(evt.Payload, &p)

	telemetry.WithDelivery(h.logger, evt.DeliveryID, evt.EventType).
		Info("webhook ping", "zen", p.Zen, "hook_id", p.HookID)
	return nil
}

// ContentRequest обрабатывает issue с меткой запроса на материал:
// записывает запрос и запускает синхронизацию вики.
func (h *Handlers) ContentRequest(ctx context.Context, evt domain.WebhookEvent) error {
	var p struct {
		Action     string     `json:"action"`
		Issue      issue      `json:"issue"`
		Label      *label     `json:"label"`
		Repository repository `json:"repository"`
	}
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return fmt.Errorf("decode issues payload: %w", err)
	}

	labels := make([]string, 0, len(p.Issue.Labels))
	for _, l := range p.Issue.Labels {
		labels = append(labels, l.Name)
	}

	switch p.Action {
	case "opened", "reopened":
		if !slices.Contains(labels, h.cfg.ContentLabel) {
			return nil
		}
	case "labeled":
		if p.Label == nil || p.Label.Name != h.cfg.ContentLabel {
			return nil
		}
	default:
		return nil
	}

	req := ContentRequest{
		DeliveryID: evt.DeliveryID,
		Repository: p.Repository.FullName,
		Number:     p.Issue.Number,
		Title:      p.Issue.Title,
		Author:     p.Issue.User.Login,
		URL:        p.Issue.HTMLURL,
		Labels:     labels,
	}
	if err := h.cfg.Sink.Record(ctx, req); err != nil {
		return fmt.Errorf("record content request #%d: %w", req.Number, err)
	}

	return h.trigger(ctx, evt, h.cfg.SyncJob, false)
}

// Comment выполняет slash-команды из комментариев к issue:
// "/sync" и "/reindex", опционально с "--dry-run".
func (h *Handlers) Comment(ctx context.Context, evt domain.WebhookEvent) error {
	var p struct {
		Action  string `json:"action"`
		Comment struct {
			Body string `json:"body"`
			User user   `json:"user"`
		} `json:"comment"`
		Issue issue `json:"issue"`
	}
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return fmt.Errorf("decode issue_comment payload: %w", err)
	}
	if p.Action != "created" {
		return nil
	}

	job, dryRun, ok := h.parseCommand(p.Comment.Body)
	if !ok {
		return nil
	}

	telemetry.WithDelivery(h.logger, evt.DeliveryID, evt.EventType).Info("comment command",
		"issue", p.Issue.Number,
		"author", p.Comment.User.Login,
		"job", job,
		"dry_run", dryRun,
	)
	return h.trigger(ctx, evt, job, dryRun)
}

// parseCommand ищет первую строку комментария, начинающуюся с команды.
func (h *Handlers) parseCommand(body string) (job string, dryRun bool, ok bool) {
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "/sync":
			job = h.cfg.SyncJob
		case "/reindex":
			job = h.cfg.ReindexJob
		default:
			continue
		}
		return job, slices.Contains(fields[1:], "--dry-run"), true
	}
	return "", false, false
}

// Push запускает синхронизацию при push в отслеживаемую ветку.
func (h *Handlers) Push(ctx context.Context, evt domain.WebhookEvent) error {
	var p struct {
		Ref     string `json:"ref"`
		Deleted bool   `json:"deleted"`
	}
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return fmt.Errorf("decode push payload: %w", err)
	}
	if p.Deleted || p.Ref != "refs/heads/"+h.cfg.Branch {
		return nil
	}
	return h.trigger(ctx, evt, h.cfg.SyncJob, false)
}

// trigger запускает задачу вручную. Уже идущий run — не ошибка:
// он и так подхватит изменения.
//
// Воркер очереди ждёт run не дольше TriggerWait, дальше run идёт в фоне.
func (h *Handlers) trigger(ctx context.Context, evt domain.WebhookEvent, job string, dryRun bool) error {
	logger := telemetry.WithJob(telemetry.WithDelivery(h.logger, evt.DeliveryID, evt.EventType), job)

	waitCtx, cancel := context.WithTimeout(ctx, h.cfg.TriggerWait)
	defer cancel()

	run, err := h.cfg.Trigger.RunManually(waitCtx, job, scheduler.RunOptions{DryRun: dryRun})
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		logger.Info("job already running, webhook trigger skipped")
		return nil
	case errors.Is(err, scheduler.ErrRequestTimeout) && ctx.Err() == nil:
		logger.Info("job triggered by webhook, run continues in background", "waited", h.cfg.TriggerWait)
		return nil
	case err != nil:
		return fmt.Errorf("trigger %s: %w", job, err)
	}

	logger.Info("job triggered by webhook", "run_id", run.ID, "status", run.Status)
	return nil
}
