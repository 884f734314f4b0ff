package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/wikiops/internal/domain"
)

// PostgresStore — Store поверх таблицы job_runs.
type PostgresStore struct {
	pool       *pgxpool.Pool
	maxEntries int
}

// NewPostgresStore создаёт Store с лимитом maxEntries
// (<= 0 — DefaultMaxEntries).
func NewPostgresStore(pool *pgxpool.Pool, maxEntries int) *PostgresStore {
	return &PostgresStore{pool: pool, maxEntries: normalizeMax(maxEntries)}
}

// Append вставляет run и вытесняет лишние записи в одной транзакции.
func (s *PostgresStore) Append(ctx context.Context, run *domain.JobRun) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO job_runs (id, job_name, started_at, finished_at, status, trigger, dry_run, error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		run.ID,
		run.JobName,
		run.StartedAt,
		run.FinishedAt,
		string(run.Status),
		string(run.Trigger),
		run.DryRun,
		nullString(run.Error),
		run.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	// FIFO по started_at: оставляем maxEntries самых новых.
	_, err = tx.Exec(ctx, `
		DELETE FROM job_runs
		WHERE id IN (
			SELECT id FROM job_runs
			ORDER BY started_at DESC, id DESC
			OFFSET $1
		)
	`, s.maxEntries)
	if err != nil {
		return fmt.Errorf("evict runs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Query реализует Store.
func (s *PostgresStore) Query(ctx context.Context, limit int, jobName string) ([]domain.JobRun, error) {
	query := `
		SELECT id, job_name, started_at, finished_at, status, trigger, dry_run, error, duration_ms
		FROM job_runs
		WHERE ($1::text IS NULL OR job_name = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, nullString(jobName), ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.JobRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// scanRun сканирует строку в JobRun.
func scanRun(rows pgx.Rows) (domain.JobRun, error) {
	var run domain.JobRun
	var status, trigger string
	var runError *string

	err := rows.Scan(
		&run.ID,
		&run.JobName,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&trigger,
		&run.DryRun,
		&runError,
		&run.DurationMs,
	)
	if err != nil {
		return domain.JobRun{}, fmt.Errorf("scan run: %w", err)
	}

	run.Status = domain.RunStatus(status)
	run.Trigger = domain.Trigger(trigger)
	if runError != nil {
		run.Error = *runError
	}
	return run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
