// Package history хранит ограниченную историю выполнений задач.
//
// История — append-only журнал JobRun с вытеснением самых старых записей
// (по StartedAt) при превышении лимита. Записи добавляются в порядке
// завершения, поэтому Query всегда сортирует явно.
package history

import (
	"context"

	"github.com/shaiso/wikiops/internal/domain"
)

const (
	// DefaultMaxEntries — лимит записей по умолчанию.
	DefaultMaxEntries = 100

	// MinQueryLimit и MaxQueryLimit — допустимый диапазон limit в Query.
	MinQueryLimit = 1
	MaxQueryLimit = 100
)

// Store — хранилище истории выполнений.
type Store interface {
	// Append добавляет завершённый run и вытесняет самые старые записи
	// сверх лимита.
	Append(ctx context.Context, run *domain.JobRun) error

	// Query возвращает до limit записей, начиная с самых новых.
	// Пустой jobName — без фильтра. limit ограничивается ClampLimit.
	Query(ctx context.Context, limit int, jobName string) ([]domain.JobRun, error)
}

// ClampLimit приводит limit к диапазону [MinQueryLimit, MaxQueryLimit].
func ClampLimit(limit int) int {
	if limit < MinQueryLimit {
		return MinQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

func normalizeMax(maxEntries int) int {
	if maxEntries <= 0 {
		return DefaultMaxEntries
	}
	return maxEntries
}
