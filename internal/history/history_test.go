package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(startedAt time.Time) RunRecord {
	return RunRecord{
		ID:         uuid.NewString(),
		Market:     "spot",
		DataType:   "klines",
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(5 * time.Minute),
		Total:      100,
		Downloaded: 90,
		Failed:     4,
		Skipped:    6,
		Bytes:      1 << 20,
		Aborted:    false,
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("record and read back", func(t *testing.T) {
		store := newTestStore(t)
		rec := sampleRecord(time.Now().UTC().Truncate(time.Second))
		require.NoError(t, store.RecordRun(ctx, rec))

		runs, err := store.RecentRuns(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)

		got := runs[0]
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.Market, got.Market)
		assert.Equal(t, rec.DataType, got.DataType)
		assert.Equal(t, rec.Total, got.Total)
		assert.Equal(t, rec.Downloaded, got.Downloaded)
		assert.Equal(t, rec.Failed, got.Failed)
		assert.Equal(t, rec.Skipped, got.Skipped)
		assert.Equal(t, rec.Bytes, got.Bytes)
		assert.False(t, got.Aborted)
	})

	t.Run("newest first with a limit", func(t *testing.T) {
		store := newTestStore(t)
		base := time.Now().UTC().Truncate(time.Second)
		for i := 0; i < 5; i++ {
			require.NoError(t, store.RecordRun(ctx, sampleRecord(base.Add(time.Duration(i)*time.Hour))))
		}

		runs, err := store.RecentRuns(ctx, 3)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
		assert.True(t, runs[1].StartedAt.After(runs[2].StartedAt))
	})

	t.Run("empty store", func(t *testing.T) {
		store := newTestStore(t)
		runs, err := store.RecentRuns(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("aborted flag round-trips", func(t *testing.T) {
		store := newTestStore(t)
		rec := sampleRecord(time.Now().UTC())
		rec.Aborted = true
		require.NoError(t, store.RecordRun(ctx, rec))

		runs, err := store.RecentRuns(ctx, 1)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.True(t, runs[0].Aborted)
	})
}
