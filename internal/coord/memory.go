package coord

import (
	"context"
	"sync"
	"time"
)

// MemoryStore — in-process реализация Store.
//
// Корректна только в пределах одного процесса: подходит для
// одиночного экземпляра (DB_URL не задан) и для тестов.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]Lease
	now    func() time.Time
	closed bool
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leases: make(map[string]Lease),
		now:    time.Now,
	}
}

// WithClock подменяет источник времени (для тестов).
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Acquire реализует Store.
func (s *MemoryStore) Acquire(ctx context.Context, key, holderID string, ttl time.Duration) (Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return Lease{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Lease{}, false, ErrClosed
	}

	now := s.now()
	cur, exists := s.leases[key]

	switch {
	case !exists || cur.Expired(now):
		l := Lease{Key: key, HolderID: holderID, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
		s.leases[key] = l
		return l, true, nil
	case cur.HolderID == holderID:
		cur.ExpiresAt = now.Add(ttl)
		s.leases[key] = cur
		return cur, true, nil
	default:
		return cur, false, nil
	}
}

// Release реализует Store.
func (s *MemoryStore) Release(ctx context.Context, key, holderID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	cur, exists := s.leases[key]
	if !exists || cur.HolderID != holderID {
		return false, nil
	}
	delete(s.leases, key)
	return true, nil
}

// Get реализует Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return Lease{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.leases[key]
	if !exists || cur.Expired(s.now()) {
		return Lease{}, ErrNotFound
	}
	return cur, nil
}

// Close реализует Store. После Close все операции возвращают ошибку.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
