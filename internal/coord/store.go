package coord

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound — ключ отсутствует или истёк.
	ErrNotFound = errors.New("lease not found")

	// ErrClosed — клиент уже закрыт.
	ErrClosed = errors.New("coordination store closed")
)

// Lease — запись о владении ключом.
//
// Для ключа лидерства это LeadershipLease кластера; для ключей
// блокировок — владение блокировкой конкретным run.
type Lease struct {
	Key        string    `json:"key"`
	HolderID   string    `json:"holder_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired проверяет, истёк ли lease на момент now.
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Store — координационное хранилище с атомарной условной записью.
type Store interface {
	// Acquire атомарно занимает key для holderID на ttl.
	//
	// Запись успешна, если ключ отсутствует, истёк или уже принадлежит
	// holderID (продление; AcquiredAt сохраняется). Возвращает
	// (lease, true, nil) при успехе и (текущий lease, false, nil),
	// если ключ занят другим владельцем.
	Acquire(ctx context.Context, key, holderID string, ttl time.Duration) (Lease, bool, error)

	// Release удаляет key, только если им владеет holderID.
	// Возвращает true, если запись была удалена.
	Release(ctx context.Context, key, holderID string) (bool, error)

	// Get возвращает действующий lease или ErrNotFound.
	Get(ctx context.Context, key string) (Lease, error)

	// Close освобождает ресурсы клиента.
	Close() error
}

// Ключи в хранилище.
const (
	// LeaderKey — ключ lease лидера планировщика.
	LeaderKey = "scheduler:leader"

	jobLockPrefix  = "job-lock:"
	deliveryPrefix = "webhook:delivery:"
)

// JobLockKey возвращает ключ блокировки задачи.
func JobLockKey(jobName string) string {
	return jobLockPrefix + jobName
}

// DeliveryKey возвращает ключ дедупликации webhook-доставки.
func DeliveryKey(deliveryID string) string {
	return deliveryPrefix + deliveryID
}
