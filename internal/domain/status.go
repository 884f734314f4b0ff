package domain

import "fmt"

// RunStatus — статус выполнения job run.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED
//	        ↘ TIMED_OUT
//	SKIPPED — run не запускался (dry-run без валидатора, занятая блокировка)
type RunStatus string

const (
	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded — run успешно завершён.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed — обработчик вернул ошибку или запаниковал.
	RunStatusFailed RunStatus = "failed"

	// RunStatusSkipped — run пропущен без выполнения обработчика.
	RunStatusSkipped RunStatus = "skipped"

	// RunStatusTimedOut — run превысил таймаут. Истинный результат
	// работы обработчика неизвестен.
	RunStatusTimedOut RunStatus = "timed-out"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusSkipped, RunStatusTimedOut:
		return true
	default:
		return false
	}
}

// Trigger — источник запуска run.
type Trigger string

const (
	// TriggerScheduled — запуск по расписанию (только лидер).
	TriggerScheduled Trigger = "scheduled"

	// TriggerManual — ручной запуск через API, CLI или webhook.
	TriggerManual Trigger = "manual"
)

// ConcurrencyPolicy — политика параллельного выполнения задачи.
type ConcurrencyPolicy string

const (
	// ConcurrencyForbidOverlap — не более одного run задачи в кластере.
	ConcurrencyForbidOverlap ConcurrencyPolicy = "forbid-overlap"

	// ConcurrencyAllowOverlap — run'ы могут пересекаться.
	ConcurrencyAllowOverlap ConcurrencyPolicy = "allow-overlap"
)

// ParseConcurrencyPolicy парсит строку в ConcurrencyPolicy.
// Пустая строка означает forbid-overlap.
func ParseConcurrencyPolicy(s string) (ConcurrencyPolicy, error) {
	switch s {
	case "", "forbid", string(ConcurrencyForbidOverlap):
		return ConcurrencyForbidOverlap, nil
	case "allow", string(ConcurrencyAllowOverlap):
		return ConcurrencyAllowOverlap, nil
	default:
		return "", fmt.Errorf("unknown concurrency policy %q", s)
	}
}
