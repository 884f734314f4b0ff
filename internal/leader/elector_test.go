package leader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/wikiops/internal/coord"
	"github.com/shaiso/wikiops/internal/telemetry"
)

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

// failingStore всегда возвращает ошибку.
type failingStore struct{}

var errUnavailable = errors.New("store unavailable")

func (failingStore) Acquire(context.Context, string, string, time.Duration) (coord.Lease, bool, error) {
	return coord.Lease{}, false, errUnavailable
}

func (failingStore) Release(context.Context, string, string) (bool, error) {
	return false, errUnavailable
}

func (failingStore) Get(context.Context, string) (coord.Lease, error) {
	return coord.Lease{}, errUnavailable
}

func (failingStore) Close() error { return nil }

func newElector(store coord.Store, clock *fakeClock, holder string) *Elector {
	e := New(Config{
		Store:         store,
		HolderID:      holder,
		LeaseDuration: 30 * time.Second,
		Logger:        telemetry.Discard(),
	})
	e.now = clock.Now
	return e
}

func newCluster() (*coord.MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return coord.NewMemoryStore().WithClock(clock.Now), clock
}

func TestNew_Defaults(t *testing.T) {
	e := New(Config{Store: coord.NewMemoryStore(), Logger: telemetry.Discard()})

	assert.Equal(t, coord.LeaderKey, e.key)
	assert.NotEmpty(t, e.HolderID())
	assert.Equal(t, 30*time.Second, e.leaseDuration)
	assert.Equal(t, 10*time.Second, e.renewInterval)
	assert.Equal(t, 5*time.Second, e.attemptTimeout)
}

func TestNew_RenewIntervalNotShorterThanLease(t *testing.T) {
	e := New(Config{
		Store:         coord.NewMemoryStore(),
		LeaseDuration: 9 * time.Second,
		RenewInterval: 20 * time.Second,
		Logger:        telemetry.Discard(),
	})
	assert.Equal(t, 3*time.Second, e.renewInterval)
	assert.Equal(t, 3*time.Second, e.attemptTimeout)
}

func TestElector_SingleLeader(t *testing.T) {
	store, clock := newCluster()
	ctx := context.Background()

	a := newElector(store, clock, "a")
	b := newElector(store, clock, "b")

	assert.True(t, a.TryAcquireOrRenew(ctx))
	assert.False(t, b.TryAcquireOrRenew(ctx))

	assert.True(t, a.IsLeader())
	assert.False(t, b.IsLeader())
}

func TestElector_RenewKeepsLeadership(t *testing.T) {
	store, clock := newCluster()
	ctx := context.Background()

	a := newElector(store, clock, "a")
	b := newElector(store, clock, "b")

	require.True(t, a.TryAcquireOrRenew(ctx))
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		assert.True(t, a.TryAcquireOrRenew(ctx))
		assert.False(t, b.TryAcquireOrRenew(ctx))
	}
	assert.True(t, a.IsLeader())
}

func TestElector_FailoverAfterExpiry(t *testing.T) {
	store, clock := newCluster()
	ctx := context.Background()

	a := newElector(store, clock, "a")
	b := newElector(store, clock, "b")

	require.True(t, a.TryAcquireOrRenew(ctx))

	// a перестал продлевать lease.
	clock.Advance(31 * time.Second)

	assert.False(t, a.IsLeader(), "local expiry must end leadership without renewal")
	assert.True(t, b.TryAcquireOrRenew(ctx))
	assert.True(t, b.IsLeader())

	assert.False(t, a.TryAcquireOrRenew(ctx))
	assert.False(t, a.IsLeader())
}

func TestElector_NoOverlapAcrossRenewCycles(t *testing.T) {
	store, clock := newCluster()
	ctx := context.Background()

	electors := []*Elector{
		newElector(store, clock, "a"),
		newElector(store, clock, "b"),
		newElector(store, clock, "c"),
	}

	for step := 0; step < 40; step++ {
		// Экземпляр "a" периодически пропускает продления.
		for i, e := range electors {
			if i == 0 && step%7 < 4 {
				continue
			}
			e.TryAcquireOrRenew(ctx)
		}

		leaders := 0
		for _, e := range electors {
			if e.IsLeader() {
				leaders++
			}
		}
		assert.LessOrEqual(t, leaders, 1, "step %d", step)

		clock.Advance(10 * time.Second)
	}
}

func TestElector_StoreErrorMeansFollower(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	e := newElector(failingStore{}, clock, "a")

	assert.False(t, e.TryAcquireOrRenew(context.Background()))
	assert.False(t, e.IsLeader())
}

func TestElector_StoreErrorDropsExistingLeadership(t *testing.T) {
	store, clock := newCluster()
	ctx := context.Background()

	e := newElector(store, clock, "a")
	require.True(t, e.TryAcquireOrRenew(ctx))

	e.store = failingStore{}
	assert.False(t, e.TryAcquireOrRenew(ctx))
	assert.False(t, e.IsLeader())
}

func TestElector_ReleaseHandsOver(t *testing.T) {
	store, clock := newCluster()
	ctx := context.Background()

	a := newElector(store, clock, "a")
	b := newElector(store, clock, "b")

	require.True(t, a.TryAcquireOrRenew(ctx))
	a.Release(ctx)

	assert.False(t, a.IsLeader())
	assert.True(t, b.TryAcquireOrRenew(ctx))
}

func TestElector_Status(t *testing.T) {
	store, clock := newCluster()
	ctx := context.Background()

	e := newElector(store, clock, "a")

	st := e.Status()
	assert.Equal(t, "a", st.HolderID)
	assert.False(t, st.Leader)
	assert.True(t, st.ExpiresAt.IsZero())

	require.True(t, e.TryAcquireOrRenew(ctx))
	st = e.Status()
	assert.True(t, st.Leader)
	assert.Equal(t, clock.Now().Add(30*time.Second), st.ExpiresAt)
}

func TestElector_RunReleasesOnCancel(t *testing.T) {
	store := coord.NewMemoryStore()
	e := New(Config{
		Store:         store,
		HolderID:      "a",
		LeaseDuration: 300 * time.Millisecond,
		Logger:        telemetry.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	require.Eventually(t, e.IsLeader, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.False(t, e.IsLeader())
	_, err := store.Get(context.Background(), coord.LeaderKey)
	assert.ErrorIs(t, err, coord.ErrNotFound)
}
