package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore — Store поверх таблицы coord_leases.
//
// Время истечения считается по часам сервера БД (now()), поэтому
// расхождение часов между экземплярами не влияет на условие записи.
// Пул принадлежит вызывающему: Close его не закрывает.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт Store поверх пула.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Acquire реализует Store одним условным upsert.
func (s *PostgresStore) Acquire(ctx context.Context, key, holderID string, ttl time.Duration) (Lease, bool, error) {
	query := `
		INSERT INTO coord_leases (key, holder_id, acquired_at, expires_at)
		VALUES ($1, $2, now(), now() + make_interval(secs => $3))
		ON CONFLICT (key) DO UPDATE
		SET holder_id   = EXCLUDED.holder_id,
		    acquired_at = CASE WHEN coord_leases.holder_id = EXCLUDED.holder_id
		                       THEN coord_leases.acquired_at
		                       ELSE EXCLUDED.acquired_at END,
		    expires_at  = EXCLUDED.expires_at
		WHERE coord_leases.expires_at <= now()
		   OR coord_leases.holder_id = EXCLUDED.holder_id
		RETURNING key, holder_id, acquired_at, expires_at
	`
	l, err := scanLease(s.pool.QueryRow(ctx, query, key, holderID, ttl.Seconds()))
	if err == nil {
		return l, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Lease{}, false, fmt.Errorf("acquire %s: %w", key, err)
	}

	// Конфликт без обновления — ключ занят другим владельцем.
	cur, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		// Lease истёк между запросами; следующая попытка его заберёт.
		return Lease{}, false, nil
	}
	if err != nil {
		return Lease{}, false, err
	}
	return cur, false, nil
}

// Release реализует Store.
func (s *PostgresStore) Release(ctx context.Context, key, holderID string) (bool, error) {
	result, err := s.pool.Exec(ctx,
		`DELETE FROM coord_leases WHERE key = $1 AND holder_id = $2`,
		key, holderID,
	)
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return result.RowsAffected() > 0, nil
}

// Get реализует Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (Lease, error) {
	query := `
		SELECT key, holder_id, acquired_at, expires_at
		FROM coord_leases
		WHERE key = $1 AND expires_at > now()
	`
	l, err := scanLease(s.pool.QueryRow(ctx, query, key))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Lease{}, fmt.Errorf("get %s: %w", key, err)
	}
	return l, err
}

// Close реализует Store.
func (s *PostgresStore) Close() error {
	return nil
}

// scanLease сканирует одну строку в Lease.
func scanLease(row pgx.Row) (Lease, error) {
	var l Lease
	err := row.Scan(&l.Key, &l.HolderID, &l.AcquiredAt, &l.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lease{}, ErrNotFound
	}
	if err != nil {
		return Lease{}, fmt.Errorf("scan lease: %w", err)
	}
	return l, nil
}
