package history

import (
	"context"
	"sort"
	"sync"

	"github.com/shaiso/wikiops/internal/domain"
)

// MemoryStore — in-process реализация Store.
type MemoryStore struct {
	mu         sync.RWMutex
	runs       []domain.JobRun
	maxEntries int
}

// NewMemoryStore создаёт хранилище с лимитом maxEntries
// (<= 0 — DefaultMaxEntries).
func NewMemoryStore(maxEntries int) *MemoryStore {
	maxEntries = normalizeMax(maxEntries)
	return &MemoryStore{
		runs:       make([]domain.JobRun, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Append реализует Store.
func (s *MemoryStore) Append(ctx context.Context, run *domain.JobRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, *run)
	for len(s.runs) > s.maxEntries {
		s.evictOldestLocked()
	}
	return nil
}

// evictOldestLocked удаляет запись с минимальным StartedAt.
func (s *MemoryStore) evictOldestLocked() {
	oldest := 0
	for i := 1; i < len(s.runs); i++ {
		if s.runs[i].StartedAt.Before(s.runs[oldest].StartedAt) {
			oldest = i
		}
	}
	s.runs = append(s.runs[:oldest], s.runs[oldest+1:]...)
}

// Query реализует Store.
func (s *MemoryStore) Query(ctx context.Context, limit int, jobName string) ([]domain.JobRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	s.mu.RLock()
	result := make([]domain.JobRun, 0, len(s.runs))
	for _, r := range s.runs {
		if jobName != "" && r.JobName != jobName {
			continue
		}
		result = append(result, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Len возвращает количество записей.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
