package jobs

import (
	"time"

	"github.com/shaiso/wikiops/internal/domain"
)

// Handlers возвращает обработчики встроенных задач по имени
// (для registry.Load).
func Handlers(sync *GitSync, indexer *Indexer) map[string]domain.JobHandler {
	return map[string]domain.JobHandler{
		WikiSync:      sync,
		SearchReindex: indexer,
	}
}

// DefaultDefinitions — расписание без файла задач: синхронизация
// каждые 15 минут, переиндексация раз в час.
func DefaultDefinitions(handlers map[string]domain.JobHandler) []domain.JobDefinition {
	return []domain.JobDefinition{
		{
			Name:        WikiSync,
			Schedule:    "*/15 * * * *",
			HandlerName: WikiSync,
			Handler:     handlers[WikiSync],
			Concurrency: domain.ConcurrencyForbidOverlap,
			Timeout:     5 * time.Minute,
		},
		{
			Name:        SearchReindex,
			Schedule:    "@hourly",
			HandlerName: SearchReindex,
			Handler:     handlers[SearchReindex],
			Concurrency: domain.ConcurrencyForbidOverlap,
			Timeout:     10 * time.Minute,
		},
	}
}
