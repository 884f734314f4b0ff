package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/wikiops/internal/coord"
	"github.com/shaiso/wikiops/internal/domain"
	"github.com/shaiso/wikiops/internal/history"
	"github.com/shaiso/wikiops/internal/registry"
	"github.com/shaiso/wikiops/internal/telemetry"
)

// --- test doubles ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeElector struct {
	leader atomic.Bool
}

func (e *fakeElector) IsLeader() bool { return e.leader.Load() }

func (e *fakeElector) Run(ctx context.Context) { <-ctx.Done() }

// countingHandler считает вызовы Execute и Validate.
type countingHandler struct {
	executed  atomic.Int32
	validated atomic.Int32
	err       error
}

func (h *countingHandler) Execute(context.Context) error {
	h.executed.Add(1)
	return h.err
}

func (h *countingHandler) Validate(context.Context) error {
	h.validated.Add(1)
	return nil
}

// blockingHandler блокируется до закрытия release.
type blockingHandler struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (h *blockingHandler) Execute(ctx context.Context) error {
	h.calls.Add(1)
	h.started <- struct{}{}
	<-h.release
	return nil
}

type failingLocks struct{ coord.Store }

func (failingLocks) Acquire(context.Context, string, string, time.Duration) (coord.Lease, bool, error) {
	return coord.Lease{}, false, errors.New("connection refused")
}

// --- helpers ---

type fixture struct {
	sched   *Scheduler
	history *history.MemoryStore
	locks   *coord.MemoryStore
}

func newFixture(t *testing.T, defs ...domain.JobDefinition) *fixture {
	t.Helper()

	reg, err := registry.New(defs...)
	require.NoError(t, err)

	hist := history.NewMemoryStore(0)
	locks := coord.NewMemoryStore()

	s := New(Config{
		Registry:     reg,
		Locks:        locks,
		History:      hist,
		HolderID:     "test",
		TickInterval: time.Hour,
		Logger:       telemetry.Discard(),
	})
	return &fixture{sched: s, history: hist, locks: locks}
}

func job(name string, h domain.JobHandler) domain.JobDefinition {
	return domain.JobDefinition{Name: name, Schedule: "1m", Handler: h, Timeout: 5 * time.Second}
}

func waitStarted(t *testing.T, h *blockingHandler) {
	t.Helper()
	select {
	case <-h.started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not start")
	}
}

func allRuns(t *testing.T, f *fixture) []domain.JobRun {
	t.Helper()
	runs, err := f.history.Query(context.Background(), history.MaxQueryLimit, "")
	require.NoError(t, err)
	return runs
}

// --- manual runs ---

func TestRunManually_Succeeded(t *testing.T) {
	h := &countingHandler{}
	f := newFixture(t, job("wiki-sync", h))

	run, err := f.sched.RunManually(context.Background(), "wiki-sync", RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	assert.Equal(t, domain.TriggerManual, run.Trigger)
	assert.False(t, run.DryRun)
	assert.NotNil(t, run.FinishedAt)
	assert.EqualValues(t, 1, h.executed.Load())

	runs := allRuns(t, f)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	// Блокировка освобождена.
	_, err = f.locks.Get(context.Background(), coord.JobLockKey("wiki-sync"))
	assert.ErrorIs(t, err, coord.ErrNotFound)
}

func TestRunManually_HandlerError(t *testing.T) {
	h := &countingHandler{err: errors.New("git fetch: exit status 128")}
	f := newFixture(t, job("wiki-sync", h))

	run, err := f.sched.RunManually(context.Background(), "wiki-sync", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, "git fetch: exit status 128", run.Error)
}

func TestRunManually_HandlerPanic(t *testing.T) {
	h := domain.HandlerFunc(func(context.Context) error { panic("boom") })
	f := newFixture(t, job("wiki-sync", h))

	run, err := f.sched.RunManually(context.Background(), "wiki-sync", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "boom")

	// Планировщик продолжает работать.
	_, err = f.sched.RunManually(context.Background(), "wiki-sync", RunOptions{})
	require.NoError(t, err)
}

func TestRunManually_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.sched.RunManually(context.Background(), "missing", RunOptions{})
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Empty(t, allRuns(t, f))
}

func TestRunManually_TimeoutStopsWaiting(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)

	h := domain.HandlerFunc(func(context.Context) error {
		<-stuck // игнорирует отмену
		return nil
	})
	def := job("wiki-sync", h)
	def.Timeout = 50 * time.Millisecond
	f := newFixture(t, def)

	start := time.Now()
	run, err := f.sched.RunManually(context.Background(), "wiki-sync", RunOptions{})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, domain.RunStatusTimedOut, run.Status)
	assert.Equal(t, "timed out after 50ms", run.Error)

	// Блокировка освобождена, следующий запуск возможен.
	_, err = f.locks.Get(context.Background(), coord.JobLockKey("wiki-sync"))
	assert.ErrorIs(t, err, coord.ErrNotFound)
}

func TestRunManually_CooperativeTimeout(t *testing.T) {
	h := domain.HandlerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	def := job("search-reindex", h)
	def.Timeout = 30 * time.Millisecond
	f := newFixture(t, def)

	run, err := f.sched.RunManually(context.Background(), "search-reindex", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusTimedOut, run.Status)
}

func TestRunManually_ForbidOverlapBackToBack(t *testing.T) {
	h := newBlockingHandler()
	f := newFixture(t, job("wiki-sync", h))

	type result struct {
		run *domain.JobRun
		err error
	}
	first := make(chan result, 1)
	go func() {
		run, err := f.sched.RunManually(context.Background(), "wiki-sync", RunOptions{})
		first <- result{run, err}
	}()
	waitStarted(t, h)

	second, err := f.sched.RunManually(context.Background(), "wiki-sync", RunOptions{})
	assert.ErrorIs(t, err, ErrRunInProgress)
	require.NotNil(t, second)
	assert.Equal(t, domain.RunStatusSkipped, second.Status)
	assert.Equal(t, "run in progress", second.Error)

	close(h.release)
	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, domain.RunStatusSucceeded, r.run.Status)

	assert.EqualValues(t, 1, h.calls.Load())

	nonSkipped := 0
	for _, run := range allRuns(t, f) {
		if run.Status != domain.RunStatusSkipped {
			nonSkipped++
		}
	}
	assert.Equal(t, 1, nonSkipped)
}

func TestRunManually_LockHeldByAnotherInstance(t *testing.T) {
	h := &countingHandler{}
	f := newFixture(t, job("wiki-sync", h))

	_, ok, err := f.locks.Acquire(context.Background(), coord.JobLockKey("wiki-sync"), "other/run", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.sched.RunManually(context.Background(), "wiki-sync", RunOptions{})
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Zero(t, h.executed.Load())
}

func TestRunManually_AllowOverlapRunsConcurrently(t *testing.T) {
	h := newBlockingHandler()
	def := job("search-reindex", h)
	def.Concurrency = domain.ConcurrencyAllowOverlap
	f := newFixture(t, def)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := f.sched.RunManually(context.Background(), "search-reindex", RunOptions{})
			assert.NoError(t, err)
			assert.Equal(t, domain.RunStatusSucceeded, run.Status)
		}()
	}

	waitStarted(t, h)
	waitStarted(t, h)
	close(h.release)
	wg.Wait()

	assert.EqualValues(t, 2, h.calls.Load())
}

func TestRunManually_StoreUnavailableFailsSafe(t *testing.T) {
	h := &countingHandler{}
	reg, err := registry.New(job("wiki-sync", h))
	require.NoError(t, err)

	hist := history.NewMemoryStore(0)
	s := New(Config{
		Registry: reg,
		Locks:    failingLocks{coord.NewMemoryStore()},
		History:  hist,
		Logger:   telemetry.Discard(),
	})

	_, err = s.RunManually(context.Background(), "wiki-sync", RunOptions{})
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.Zero(t, h.executed.Load())
}

func TestRunManually_DryRunUsesValidator(t *testing.T) {
	h := &countingHandler{}
	f := newFixture(t, job("wiki-sync", h))

	run, err := f.sched.RunManually(context.Background(), "wiki-sync", RunOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, run.DryRun)
	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	assert.Zero(t, h.executed.Load(), "dry run must not execute the handler")
	assert.EqualValues(t, 1, h.validated.Load())

	runs := allRuns(t, f)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].DryRun)
	assert.True(t, runs[0].Status.IsTerminal())
}

func TestRunManually_DryRunWithoutValidatorIsSkipped(t *testing.T) {
	var executed atomic.Int32
	h := domain.HandlerFunc(func(context.Context) error {
		executed.Add(1)
		return nil
	})
	f := newFixture(t, job("wiki-sync", h))

	run, err := f.sched.RunManually(context.Background(), "wiki-sync", RunOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusSkipped, run.Status)
	assert.True(t, run.DryRun)
	assert.Zero(t, executed.Load())
	assert.Len(t, allRuns(t, f), 1)
}

func TestRunManually_RequestTimeoutKeepsRunning(t *testing.T) {
	release := make(chan struct{})
	h := domain.HandlerFunc(func(context.Context) error {
		<-release
		return nil
	})
	f := newFixture(t, job("wiki-sync", h))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.sched.RunManually(ctx, "wiki-sync", RunOptions{})
	assert.ErrorIs(t, err, ErrRequestTimeout)

	close(release)
	require.Eventually(t, func() bool {
		runs := allRuns(t, f)
		return len(runs) == 1 && runs[0].Status == domain.RunStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunManually_CancelledContextDoesNotStart(t *testing.T) {
	h := &countingHandler{}
	f := newFixture(t, job("wiki-sync", h))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := f.sched.RunManually(ctx, "wiki-sync", RunOptions{})
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, run)

	// Горутина не запускалась: ждать нечего.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, h.executed.Load())
	assert.Empty(t, allRuns(t, f))
}

// --- timer ---

func newTickFixture(t *testing.T, elector Elector, defs ...domain.JobDefinition) (*fixture, *fakeClock) {
	t.Helper()
	f := newFixture(t, defs...)
	f.sched.elector = elector

	clock := &fakeClock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	f.sched.now = clock.Now
	return f, clock
}

func TestTick_OnlyLeaderRuns(t *testing.T) {
	h := &countingHandler{}
	el := &fakeElector{}
	f, clock := newTickFixture(t, el, job("wiki-sync", h))

	require.True(t, f.sched.Start(context.Background()))
	defer f.sched.Stop(context.Background())

	clock.Advance(time.Minute)
	f.sched.tick(context.Background())
	f.sched.inflight.Wait()
	assert.Zero(t, h.executed.Load(), "follower must not run scheduled jobs")

	el.leader.Store(true)
	clock.Advance(time.Minute)
	f.sched.tick(context.Background())
	f.sched.inflight.Wait()
	assert.EqualValues(t, 1, h.executed.Load())

	runs := allRuns(t, f)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.TriggerScheduled, runs[0].Trigger)
}

func TestTick_NotDueYet(t *testing.T) {
	h := &countingHandler{}
	el := &fakeElector{}
	el.leader.Store(true)
	f, clock := newTickFixture(t, el, job("wiki-sync", h))

	require.True(t, f.sched.Start(context.Background()))
	defer f.sched.Stop(context.Background())

	clock.Advance(30 * time.Second)
	f.sched.tick(context.Background())
	f.sched.inflight.Wait()
	assert.Zero(t, h.executed.Load())
}

func TestTick_CoalescesMissedIntervals(t *testing.T) {
	h := &countingHandler{}
	el := &fakeElector{}
	el.leader.Store(true)
	f, clock := newTickFixture(t, el, job("wiki-sync", h))

	require.True(t, f.sched.Start(context.Background()))
	defer f.sched.Stop(context.Background())

	// Пропущено 10 интервалов.
	clock.Advance(10 * time.Minute)
	f.sched.tick(context.Background())
	f.sched.tick(context.Background())
	f.sched.inflight.Wait()

	assert.EqualValues(t, 1, h.executed.Load())

	st := f.sched.Status(context.Background())
	require.Len(t, st.Jobs, 1)
	require.NotNil(t, st.Jobs[0].NextFireAt)
	assert.Equal(t, clock.Now().Add(time.Minute), *st.Jobs[0].NextFireAt)
}

func TestTick_ContentionDoesNotRecordRun(t *testing.T) {
	h := &countingHandler{}
	f, clock := newTickFixture(t, nil, job("wiki-sync", h))

	_, ok, err := f.locks.Acquire(context.Background(), coord.JobLockKey("wiki-sync"), "other/run", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, f.sched.Start(context.Background()))
	defer f.sched.Stop(context.Background())

	clock.Advance(time.Minute)
	f.sched.tick(context.Background())
	f.sched.inflight.Wait()

	assert.Zero(t, h.executed.Load())
	assert.Empty(t, allRuns(t, f))
}

func TestTick_TimedOutRunReleasesLockAndNextTickRuns(t *testing.T) {
	// Обработчик игнорирует отмену и не возвращается до конца теста.
	h := newBlockingHandler()
	t.Cleanup(func() { close(h.release) })

	def := job("wiki-sync", h)
	def.Timeout = 50 * time.Millisecond
	f, clock := newTickFixture(t, nil, def)

	require.True(t, f.sched.Start(context.Background()))
	defer f.sched.Stop(context.Background())

	clock.Advance(time.Minute)
	f.sched.tick(context.Background())
	f.sched.inflight.Wait()

	runs := allRuns(t, f)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusTimedOut, runs[0].Status)

	_, err := f.locks.Get(context.Background(), coord.JobLockKey("wiki-sync"))
	assert.ErrorIs(t, err, coord.ErrNotFound, "lock must be released after timeout")

	clock.Advance(time.Minute)
	f.sched.tick(context.Background())
	f.sched.inflight.Wait()

	assert.EqualValues(t, 2, h.calls.Load())
	runs = allRuns(t, f)
	require.Len(t, runs, 2)
	assert.Equal(t, domain.RunStatusTimedOut, runs[0].Status)
	assert.Equal(t, domain.RunStatusTimedOut, runs[1].Status)
}

func TestStop_CancelsAndWaitsForScheduledRun(t *testing.T) {
	started := make(chan struct{})
	h := domain.HandlerFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	f, clock := newTickFixture(t, nil, job("wiki-sync", h))
	f.sched.tickInterval = 10 * time.Millisecond

	require.True(t, f.sched.Start(context.Background()))
	clock.Advance(time.Minute)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled run did not start")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.sched.Stop(stopCtx))

	runs := allRuns(t, f)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusFailed, runs[0].Status)
	assert.Equal(t, context.Canceled.Error(), runs[0].Error)
}

// --- lifecycle ---

func TestStartStop_Idempotent(t *testing.T) {
	f := newFixture(t, job("wiki-sync", &countingHandler{}))
	ctx := context.Background()

	assert.False(t, f.sched.Running())
	assert.NoError(t, f.sched.Stop(ctx))

	assert.True(t, f.sched.Start(ctx))
	assert.False(t, f.sched.Start(ctx))
	assert.True(t, f.sched.Running())

	assert.NoError(t, f.sched.Stop(ctx))
	assert.NoError(t, f.sched.Stop(ctx))
	assert.False(t, f.sched.Running())

	assert.True(t, f.sched.Start(ctx))
	assert.NoError(t, f.sched.Stop(ctx))
}

func TestClose_RefusesNewManualRunsAndWaitsForStarted(t *testing.T) {
	h := newBlockingHandler()
	f := newFixture(t, job("wiki-sync", h), job("search-reindex", &countingHandler{}))
	ctx := context.Background()

	manualDone := make(chan error, 1)
	go func() {
		_, err := f.sched.RunManually(ctx, "wiki-sync", RunOptions{})
		manualDone <- err
	}()
	waitStarted(t, h)

	closed := make(chan error, 1)
	go func() { closed <- f.sched.Close(ctx) }()

	require.Eventually(t, func() bool {
		f.sched.mu.Lock()
		defer f.sched.mu.Unlock()
		return f.sched.closing
	}, 2*time.Second, 5*time.Millisecond)

	_, err := f.sched.RunManually(ctx, "search-reindex", RunOptions{})
	assert.ErrorIs(t, err, ErrShuttingDown)

	select {
	case <-closed:
		t.Fatal("Close returned while a manual run was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(h.release)
	require.NoError(t, <-manualDone)
	require.NoError(t, <-closed)

	assert.False(t, f.sched.Start(ctx), "closed scheduler must not restart")

	runs := allRuns(t, f)
	require.Len(t, runs, 1)
	assert.Equal(t, "wiki-sync", runs[0].JobName)
}

func TestStatus(t *testing.T) {
	h := &countingHandler{}
	f, clock := newTickFixture(t, nil,
		job("wiki-sync", h),
		job("search-reindex", h),
	)
	ctx := context.Background()

	st := f.sched.Status(ctx)
	assert.False(t, st.Running)
	assert.False(t, st.Leader)
	assert.Equal(t, "test", st.HolderID)
	require.Len(t, st.Jobs, 2)
	assert.Equal(t, "search-reindex", st.Jobs[0].Name)
	assert.Nil(t, st.Jobs[0].NextFireAt)
	assert.Nil(t, st.Jobs[0].LastRun)

	_, err := f.sched.RunManually(ctx, "wiki-sync", RunOptions{})
	require.NoError(t, err)

	require.True(t, f.sched.Start(ctx))
	defer f.sched.Stop(ctx)

	st = f.sched.Status(ctx)
	assert.True(t, st.Running)
	assert.True(t, st.Leader)

	ws := st.Jobs[1]
	assert.Equal(t, "wiki-sync", ws.Name)
	assert.Equal(t, domain.ConcurrencyForbidOverlap, ws.Concurrency)
	assert.Equal(t, "5s", ws.Timeout)
	require.NotNil(t, ws.NextFireAt)
	assert.Equal(t, clock.Now().Add(time.Minute), *ws.NextFireAt)
	require.NotNil(t, ws.LastRun)
	assert.Equal(t, domain.RunStatusSucceeded, ws.LastRun.Status)
}

func TestStatus_LastRunOfRarelyRunJob(t *testing.T) {
	f := newFixture(t, job("wiki-sync", &countingHandler{}), job("search-reindex", &countingHandler{}))
	hist := history.NewMemoryStore(1000)
	f.sched.history = hist
	ctx := context.Background()

	// Запуски сделал другой экземпляр: локального кэша нет.
	rare := domain.NewJobRun("search-reindex", domain.TriggerScheduled, false)
	rare.MarkSucceeded()
	require.NoError(t, hist.Append(ctx, rare))
	for range history.MaxQueryLimit + 50 {
		r := domain.NewJobRun("wiki-sync", domain.TriggerScheduled, false)
		r.MarkSucceeded()
		require.NoError(t, hist.Append(ctx, r))
	}

	st := f.sched.Status(ctx)
	require.Len(t, st.Jobs, 2)
	require.Equal(t, "search-reindex", st.Jobs[0].Name)
	require.NotNil(t, st.Jobs[0].LastRun)
	assert.Equal(t, rare.ID, st.Jobs[0].LastRun.ID)
	require.NotNil(t, st.Jobs[1].LastRun)
}
