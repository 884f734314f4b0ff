package scheduler

import (
	"errors"

	"github.com/shaiso/wikiops/internal/registry"
)

var (
	// ErrJobNotFound — задачи нет в реестре.
	ErrJobNotFound = registry.ErrJobNotFound

	// ErrRunInProgress — forbid-overlap задача уже выполняется где-то в кластере.
	ErrRunInProgress = errors.New("run in progress")

	// ErrLockUnavailable — координационное хранилище недоступно,
	// безопасно взять блокировку задачи нельзя.
	ErrLockUnavailable = errors.New("job lock unavailable")

	// ErrRequestTimeout — вызывающий перестал ждать ручной run.
	// Сам run продолжается и будет записан в историю.
	ErrRequestTimeout = errors.New("request timed out waiting for run")

	// ErrShuttingDown — экземпляр завершается и новых ручных run'ов не начинает.
	ErrShuttingDown = errors.New("scheduler is shutting down")
)
