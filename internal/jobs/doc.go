// Package jobs содержит обработчики задач wikiops.
//
//   - wiki-sync      — синхронизация рабочей копии вики с репозиторием (GitSync)
//   - search-reindex — перестроение поискового индекса по markdown (Indexer)
//
// Оба обработчика реализуют domain.JobHandler и domain.Validator:
// Validate проверяет предусловия без изменений на диске.
package jobs

import "github.com/shaiso/wikiops/internal/domain"

// Имена встроенных задач.
const (
	WikiSync      = "wiki-sync"
	SearchReindex = "search-reindex"
)

// Compile-time проверки.
var (
	_ domain.JobHandler = (*GitSync)(nil)
	_ domain.Validator  = (*GitSync)(nil)
	_ domain.JobHandler = (*Indexer)(nil)
	_ domain.Validator  = (*Indexer)(nil)
)
