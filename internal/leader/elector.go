// Package leader реализует выбор лидера планировщика через lease
// в координационном хранилище.
//
// Лидер — единственный экземпляр, который запускает задачи по расписанию.
// Лидерство только снижает число дублирующих триггеров; от двойного
// выполнения forbid-overlap задач защищает блокировка задачи.
//
// Использование:
//
//	el := leader.New(leader.Config{
//	    Store:         store,
//	    HolderID:      instanceID,
//	    LeaseDuration: 30 * time.Second,
//	    Logger:        logger,
//	})
//	go el.Run(ctx) // продлевает lease каждые LeaseDuration/3
//
//	if el.IsLeader() { ... }
package leader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/wikiops/internal/coord"
	"github.com/shaiso/wikiops/internal/telemetry"
)

// Default configuration values.
const (
	defaultLeaseDuration  = 30 * time.Second
	defaultAttemptTimeout = 5 * time.Second
)

// Elector — менеджер лидерства одного экземпляра.
type Elector struct {
	store          coord.Store
	key            string
	holderID       string
	leaseDuration  time.Duration
	renewInterval  time.Duration
	attemptTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time

	mu     sync.RWMutex
	leader bool
	// validUntil — локальный срок лидерства: время начала успешной
	// попытки + LeaseDuration. Считается по локальным часам и никогда
	// не позже срока lease в хранилище.
	validUntil time.Time
	lease      coord.Lease
}

// Config — конфигурация Elector.
type Config struct {
	Store    coord.Store
	Key      string // ключ lease (default: coord.LeaderKey)
	HolderID string // идентификатор экземпляра (default: случайный UUID)

	LeaseDuration  time.Duration // срок lease (default: 30s)
	RenewInterval  time.Duration // интервал продления (default: LeaseDuration/3)
	AttemptTimeout time.Duration // таймаут одной попытки (default: min(RenewInterval, 5s))

	Logger *slog.Logger
}

// Status — локальное представление о лидерстве.
type Status struct {
	HolderID  string    `json:"holder_id"`
	Leader    bool      `json:"leader"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// New создаёт Elector.
func New(cfg Config) *Elector {
	leaseDuration := cfg.LeaseDuration
	if leaseDuration <= 0 {
		leaseDuration = defaultLeaseDuration
	}

	renewInterval := cfg.RenewInterval
	if renewInterval <= 0 || renewInterval >= leaseDuration {
		renewInterval = leaseDuration / 3
	}

	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = min(renewInterval, defaultAttemptTimeout)
	}

	key := cfg.Key
	if key == "" {
		key = coord.LeaderKey
	}

	holderID := cfg.HolderID
	if holderID == "" {
		holderID = uuid.NewString()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Elector{
		store:          cfg.Store,
		key:            key,
		holderID:       holderID,
		leaseDuration:  leaseDuration,
		renewInterval:  renewInterval,
		attemptTimeout: attemptTimeout,
		logger:         logger.With("component", "leader", "holder_id", holderID),
		now:            time.Now,
	}
}

// HolderID возвращает идентификатор экземпляра.
func (e *Elector) HolderID() string {
	return e.holderID
}

// TryAcquireOrRenew делает одну попытку занять или продлить lease.
//
// Попытка ограничена AttemptTimeout. Любая ошибка хранилища означает
// "не лидер" на этот цикл: лучше пропустить запуск по расписанию,
// чем выполнить его дважды.
func (e *Elector) TryAcquireOrRenew(ctx context.Context) bool {
	start := e.now()

	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	lease, ok, err := e.store.Acquire(attemptCtx, e.key, e.holderID, e.leaseDuration)
	if err != nil {
		e.logger.Warn("leadership attempt failed, acting as follower", "error", err)
		e.setFollower()
		return false
	}
	if !ok {
		e.logger.Debug("lease held by another instance", "leader_id", lease.HolderID, "expires_at", lease.ExpiresAt)
		e.setFollower()
		return false
	}

	e.setLeader(lease, start.Add(e.leaseDuration))
	return true
}

// IsLeader возвращает локальное представление о лидерстве.
// Лидерство не действует дольше локального срока без успешного продления.
func (e *Elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leader && e.now().Before(e.validUntil)
}

// Status возвращает текущее локальное состояние.
func (e *Elector) Status() Status {
	leader := e.IsLeader()

	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Status{HolderID: e.holderID, Leader: leader}
	if leader {
		st.ExpiresAt = e.validUntil
	}
	return st
}

// Release освобождает lease (best-effort) и переводит экземпляр в follower.
// Окончательную защиту от упавшего лидера даёт истечение lease.
func (e *Elector) Release(ctx context.Context) {
	e.setFollower()

	releaseCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	released, err := e.store.Release(releaseCtx, e.key, e.holderID)
	if err != nil {
		e.logger.Warn("failed to release leadership lease", "error", err)
		return
	}
	if released {
		e.logger.Info("leadership lease released")
	}
}

// Run продлевает lease каждые RenewInterval до отмены ctx,
// затем освобождает его.
func (e *Elector) Run(ctx context.Context) {
	e.logger.Info("leader election started",
		"lease_duration", e.leaseDuration,
		"renew_interval", e.renewInterval,
	)

	ticker := time.NewTicker(e.renewInterval)
	defer ticker.Stop()

	e.TryAcquireOrRenew(ctx)

	for {
		select {
		case <-ctx.Done():
			e.Release(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			e.TryAcquireOrRenew(ctx)
		}
	}
}

func (e *Elector) setLeader(lease coord.Lease, validUntil time.Time) {
	e.mu.Lock()
	was := e.leader
	e.leader = true
	e.lease = lease
	e.validUntil = validUntil
	e.mu.Unlock()

	if !was {
		e.logger.Info("became leader", "acquired_at", lease.AcquiredAt)
		telemetry.SetLeader(true)
	}
}

func (e *Elector) setFollower() {
	e.mu.Lock()
	was := e.leader
	e.leader = false
	e.lease = coord.Lease{}
	e.validUntil = time.Time{}
	e.mu.Unlock()

	if was {
		e.logger.Warn("lost leadership")
		telemetry.SetLeader(false)
	}
}
