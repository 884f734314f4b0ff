package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/wikiops/internal/coord"
	"github.com/shaiso/wikiops/internal/domain"
	"github.com/shaiso/wikiops/internal/history"
	"github.com/shaiso/wikiops/internal/registry"
)

// Default configuration values.
const (
	defaultTickInterval = time.Second
	defaultLockGrace    = 30 * time.Second
	storeOpTimeout      = 5 * time.Second
)

// Elector — участие в выборе лидера.
// Реализуется leader.Elector.
type Elector interface {
	IsLeader() bool
	Run(ctx context.Context)
}

// Scheduler — ядро планировщика.
type Scheduler struct {
	registry     *registry.Registry
	locks        coord.Store
	history      history.Store
	elector      Elector
	holderID     string
	tickInterval time.Duration
	lockGrace    time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	jobs     map[string]*jobState

	// inflight — run'ы, запущенные таймером. Ручные run'ы Stop не ждёт.
	inflight sync.WaitGroup

	// closing выставляется Close: новые ручные run'ы отклоняются,
	// а уже начатые (manual) дожидаются.
	closing bool
	manual  sync.WaitGroup
}

// jobState — локальное состояние задачи.
type jobState struct {
	nextFire time.Time
	running  int
	lastRun  *domain.JobRun
}

// Config — конфигурация Scheduler.
type Config struct {
	Registry *registry.Registry
	Locks    coord.Store   // блокировки задач (default: coord.MemoryStore)
	History  history.Store // история run'ов (default: history.MemoryStore)
	Elector  Elector       // nil — экземпляр всегда лидер
	HolderID string        // идентификатор экземпляра для блокировок

	TickInterval time.Duration // период проверки расписаний (default: 1s)
	LockGrace    time.Duration // запас TTL блокировки сверх таймаута задачи (default: 30s)

	Logger *slog.Logger
}

// New создаёт Scheduler в остановленном состоянии.
func New(cfg Config) *Scheduler {
	locks := cfg.Locks
	if locks == nil {
		locks = coord.NewMemoryStore()
	}

	hist := cfg.History
	if hist == nil {
		hist = history.NewMemoryStore(history.DefaultMaxEntries)
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}

	grace := cfg.LockGrace
	if grace <= 0 {
		grace = defaultLockGrace
	}

	holderID := cfg.HolderID
	if holderID == "" {
		holderID = "local"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := cfg.Registry
	if reg == nil {
		reg, _ = registry.New()
	}

	jobs := make(map[string]*jobState, reg.Len())
	for _, def := range reg.List() {
		jobs[def.Name] = &jobState{}
	}

	return &Scheduler{
		registry:     reg,
		locks:        locks,
		history:      hist,
		elector:      cfg.Elector,
		holderID:     holderID,
		tickInterval: tick,
		lockGrace:    grace,
		logger:       logger.With("component", "scheduler"),
		now:          time.Now,
		jobs:         jobs,
	}
}

// Start запускает цикл таймера и участие в выборе лидера.
// Повторный вызов на работающем планировщике (или после Close) ничего не делает.
//
// Цикл живёт до Stop; ctx задаёт только родительский контекст.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.closing {
		return false
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.running = true

	// Пропущенные за время остановки запуски не догоняем.
	now := s.now()
	for name, st := range s.jobs {
		next, err := s.registry.Next(name, now)
		if err != nil {
			continue
		}
		st.nextFire = next
	}

	var wg sync.WaitGroup
	if s.elector != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.elector.Run(loopCtx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop(loopCtx)
	}()

	done := s.loopDone
	go func() {
		wg.Wait()
		close(done)
	}()

	s.logger.Info("scheduler started", "jobs", len(s.jobs), "tick_interval", s.tickInterval)
	return true
}

// Stop останавливает таймер, отправляет сигнал отмены run'ам,
// запущенным по расписанию, и ждёт их завершения (каждый ограничен своим таймаутом) либо
// отмены ctx. Повторный вызов на остановленном планировщике ничего не делает.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, loopDone := s.cancel, s.loopDone
	s.cancel = nil
	s.mu.Unlock()

	cancel()

	select {
	case <-loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	idle := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stopped with runs still in flight", "error", ctx.Err())
		return ctx.Err()
	}
}

// Close — завершение процесса: останавливает таймер как Stop, перестаёт
// принимать ручные запуски (ErrShuttingDown) и ждёт уже начатые ручные run'ы.
// В отличие от Stop, обратно не запускается.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	stopErr := s.Stop(ctx)

	idle := make(chan struct{})
	go func() {
		s.manual.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return stopErr
	case <-ctx.Done():
		s.logger.Warn("manual runs still in flight at shutdown", "error", ctx.Err())
		return ctx.Err()
	}
}

// Running возвращает true, если цикл таймера запущен.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// loop — цикл таймера.
func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick проверяет наступившие задачи.
//
// Следующее время запуска сдвигается на всех экземплярах, но run
// запускает только лидер. Так новый лидер не догоняет запуски,
// которые уже сделал предыдущий.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	leader := s.isLeader()

	var due []domain.JobDefinition

	s.mu.Lock()
	for _, def := range s.registry.List() {
		st := s.jobs[def.Name]
		if st.nextFire.IsZero() || now.Before(st.nextFire) {
			continue
		}

		next, err := s.registry.Next(def.Name, now)
		if err != nil {
			s.logger.Error("failed to compute next fire time", "job", def.Name, "error", err)
			continue
		}
		st.nextFire = next

		if !leader {
			continue
		}
		if def.ForbidsOverlap() && st.running > 0 {
			s.logger.Debug("job still running locally, skipping tick", "job", def.Name)
			continue
		}
		due = append(due, def)
	}
	s.mu.Unlock()

	for _, def := range due {
		s.inflight.Add(1)
		go func(def domain.JobDefinition) {
			defer s.inflight.Done()
			s.runScheduled(ctx, def)
		}(def)
	}
}

func (s *Scheduler) isLeader() bool {
	return s.elector == nil || s.elector.IsLeader()
}

// Status — состояние планировщика.
type Status struct {
	Running  bool         `json:"running"`
	Leader   bool         `json:"leader"`
	HolderID string       `json:"holder_id"`
	Jobs     []JobSummary `json:"jobs"`
}

// JobSummary — состояние одной задачи.
type JobSummary struct {
	Name        string                   `json:"name"`
	Schedule    string                   `json:"schedule"`
	Handler     string                   `json:"handler,omitempty"`
	Concurrency domain.ConcurrencyPolicy `json:"concurrency"`
	Timeout     string                   `json:"timeout"`
	NextFireAt  *time.Time               `json:"next_fire_at,omitempty"`
	Running     int                      `json:"running"`
	LastRun     *domain.JobRun           `json:"last_run,omitempty"`
}

// Status возвращает состояние планировщика без побочных эффектов.
//
// Последний результат берётся из истории (общей для кластера), а при её
// недоступности — из локального кэша экземпляра.
func (s *Scheduler) Status(ctx context.Context) Status {
	latest := make(map[string]domain.JobRun)
	for _, def := range s.registry.List() {
		runs, err := s.history.Query(ctx, 1, def.Name)
		if err != nil {
			s.logger.Warn("failed to read history for status", "job", def.Name, "error", err)
			break
		}
		if len(runs) > 0 {
			latest[def.Name] = runs[0]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.running,
		Leader:   s.running && s.isLeader(),
		HolderID: s.holderID,
		Jobs:     make([]JobSummary, 0, len(s.jobs)),
	}

	for _, def := range s.registry.List() {
		js := s.jobs[def.Name]
		sum := JobSummary{
			Name:        def.Name,
			Schedule:    def.Schedule,
			Handler:     def.HandlerName,
			Concurrency: def.Concurrency,
			Timeout:     def.Timeout.String(),
			Running:     js.running,
		}
		if s.running && !js.nextFire.IsZero() {
			next := js.nextFire
			sum.NextFireAt = &next
		}
		if r, ok := latest[def.Name]; ok {
			sum.LastRun = &r
		} else if js.lastRun != nil {
			r := *js.lastRun
			sum.LastRun = &r
		}
		st.Jobs = append(st.Jobs, sum)
	}
	return st
}
