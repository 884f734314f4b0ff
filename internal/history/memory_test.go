package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/wikiops/internal/domain"
)

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func runAt(job string, i int) *domain.JobRun {
	r := domain.NewJobRun(job, domain.TriggerScheduled, false)
	r.StartedAt = base.Add(time.Duration(i) * time.Minute)
	r.MarkSucceeded()
	return r
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{50, 50},
		{100, 100},
		{101, 100},
		{1 << 20, 100},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, ClampLimit(tt.in))
		})
	}
}

func TestMemoryStore_QueryFewerThanLimit(t *testing.T) {
	s := NewMemoryStore(100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(ctx, runAt("wiki-sync", i)))
	}

	runs, err := s.Query(ctx, 5, "")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, base.Add(2*time.Minute), runs[0].StartedAt)
	assert.Equal(t, base, runs[2].StartedAt)
}

func TestMemoryStore_RetentionEvictsOldest(t *testing.T) {
	s := NewMemoryStore(100)
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		require.NoError(t, s.Append(ctx, runAt("wiki-sync", i)))
	}
	assert.Equal(t, 100, s.Len())

	runs, err := s.Query(ctx, 100, "")
	require.NoError(t, err)
	require.Len(t, runs, 100)
	assert.Equal(t, base.Add(149*time.Minute), runs[0].StartedAt)
	assert.Equal(t, base.Add(50*time.Minute), runs[99].StartedAt)

	for _, r := range runs {
		assert.False(t, r.StartedAt.Before(base.Add(50*time.Minute)), "evicted run returned: %s", r.StartedAt)
	}
}

func TestMemoryStore_EvictsByStartedAtNotInsertionOrder(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()

	// Пересекающиеся run'ы завершаются не в порядке старта.
	require.NoError(t, s.Append(ctx, runAt("a", 5)))
	require.NoError(t, s.Append(ctx, runAt("b", 1)))
	require.NoError(t, s.Append(ctx, runAt("c", 9)))

	runs, err := s.Query(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].JobName)
	assert.Equal(t, "a", runs[1].JobName)
}

func TestMemoryStore_QueryFilterByJob(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		job := "wiki-sync"
		if i%2 == 1 {
			job = "search-reindex"
		}
		require.NoError(t, s.Append(ctx, runAt(job, i)))
	}

	runs, err := s.Query(ctx, 100, "search-reindex")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for _, r := range runs {
		assert.Equal(t, "search-reindex", r.JobName)
	}
}

func TestMemoryStore_QueryClampsLimit(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(ctx, runAt("wiki-sync", i)))
	}

	runs, err := s.Query(ctx, 0, "")
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	runs, err = s.Query(ctx, -1, "")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestMemoryStore_AppendCopiesRun(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	r := runAt("wiki-sync", 0)
	require.NoError(t, s.Append(ctx, r))
	r.Error = "mutated"

	runs, err := s.Query(ctx, 1, "")
	require.NoError(t, err)
	assert.Empty(t, runs[0].Error)
}
