package domain

import (
	"context"
	"time"
)

// JobDefinition — определение периодической задачи.
//
// Создаётся при старте процесса из статической конфигурации (реестр jobs)
// и больше не изменяется. Имя уникально в пределах реестра.
type JobDefinition struct {
	// Name — уникальное имя задачи ("wiki-sync", "search-reindex").
	Name string `json:"name"`

	// Schedule — выражение расписания.
	// Поддерживаются cron-выражения ("*/15 * * * *"), дескрипторы
	// ("@hourly", "@every 10m") и интервалы ("30m", "1h30m").
	Schedule string `json:"schedule"`

	// HandlerName — имя обработчика, к которому привязана задача.
	HandlerName string `json:"handler"`

	// Handler — реализация задачи.
	Handler JobHandler `json:"-"`

	// Concurrency — политика параллельного выполнения.
	Concurrency ConcurrencyPolicy `json:"concurrency"`

	// Timeout — максимальное время выполнения одного run.
	Timeout time.Duration `json:"timeout"`
}

// ForbidsOverlap возвращает true, если одновременно в кластере
// допускается не более одного run этой задачи.
func (j *JobDefinition) ForbidsOverlap() bool {
	return j.Concurrency == ConcurrencyForbidOverlap
}

// JobHandler — контракт обработчика задачи.
//
// Execute выполняет задачу с реальными побочными эффектами.
// ctx отменяется по таймауту задачи и при остановке планировщика;
// обработчик должен завершаться как можно скорее после отмены.
type JobHandler interface {
	Execute(ctx context.Context) error
}

// Validator — путь dry-run.
//
// Обработчик, реализующий Validator, умеет проверить свои предусловия
// без побочных эффектов. Для обработчиков без Validator dry-run
// завершается статусом skipped без вызова Execute.
type Validator interface {
	Validate(ctx context.Context) error
}

// HandlerFunc адаптирует функцию к JobHandler.
type HandlerFunc func(ctx context.Context) error

// Execute вызывает f(ctx).
func (f HandlerFunc) Execute(ctx context.Context) error {
	return f(ctx)
}
