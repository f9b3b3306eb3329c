package downloader

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/go-binance-vision/internal/fetcher"
)

func TestWorkerPool(t *testing.T) {
	t.Run("processes every submitted task", func(t *testing.T) {
		var processed atomic.Int32
		pool := NewWorkerPool(4, func(ctx context.Context, task Task) fetcher.Result {
			processed.Add(1)
			return fetcher.Result{Outcome: fetcher.OutcomeSuccess, Bytes: 1}
		}, nil)
		require.NoError(t, pool.Start())

		var wg sync.WaitGroup
		var callbacks atomic.Int32
		for i := 0; i < 20; i++ {
			wg.Add(1)
			pool.Submit(context.Background(), Task{Symbol: "BTCUSDT"}, func(r fetcher.Result) {
				callbacks.Add(1)
				wg.Done()
			})
		}
		wg.Wait()

		assert.Equal(t, int32(20), processed.Load())
		assert.Equal(t, int32(20), callbacks.Load())
		require.NoError(t, pool.Stop(context.Background()))
	})

	t.Run("double start fails", func(t *testing.T) {
		pool := NewWorkerPool(1, func(ctx context.Context, task Task) fetcher.Result {
			return fetcher.Result{Outcome: fetcher.OutcomeSuccess}
		}, nil)
		require.NoError(t, pool.Start())
		assert.Error(t, pool.Start())
		require.NoError(t, pool.Stop(context.Background()))
	})

	t.Run("stop before start fails", func(t *testing.T) {
		pool := NewWorkerPool(1, nil, nil)
		assert.Error(t, pool.Stop(context.Background()))
	})

	t.Run("cancelled submit still fires the callback", func(t *testing.T) {
		block := make(chan struct{})
		pool := NewWorkerPool(1, func(ctx context.Context, task Task) fetcher.Result {
			<-block
			return fetcher.Result{Outcome: fetcher.OutcomeSuccess}
		}, nil)
		require.NoError(t, pool.Start())
		defer func() {
			close(block)
			pool.Stop(context.Background())
		}()

		// fill the worker and the queue so the next submit blocks
		for i := 0; i < 3; i++ {
			pool.Submit(context.Background(), Task{}, func(fetcher.Result) {})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		done := make(chan fetcher.Result, 1)
		pool.Submit(ctx, Task{}, func(r fetcher.Result) { done <- r })

		select {
		case r := <-done:
			assert.Equal(t, fetcher.OutcomeFailed, r.Outcome)
			assert.Error(t, r.Err)
		case <-time.After(time.Second):
			t.Fatal("callback never fired")
		}
	})

	t.Run("panicking handler yields a failed result", func(t *testing.T) {
		pool := NewWorkerPool(1, func(ctx context.Context, task Task) fetcher.Result {
			panic("boom")
		}, nil)
		require.NoError(t, pool.Start())
		defer pool.Stop(context.Background())

		done := make(chan fetcher.Result, 1)
		pool.Submit(context.Background(), Task{Symbol: "BTCUSDT", DateLabel: "2023-01"}, func(r fetcher.Result) {
			done <- r
		})

		select {
		case r := <-done:
			assert.Equal(t, fetcher.OutcomeFailed, r.Outcome)
			assert.Contains(t, r.Err.Error(), "panicked")
		case <-time.After(time.Second):
			t.Fatal("panic was not surfaced as a result")
		}
	})
}
