// Package downloader plans and executes bulk archive downloads. It expands
// a requested symbol/date/interval space into per-symbol task batches,
// prunes tasks the start-date cache proves impossible, fans each batch out
// to a bounded worker pool, and aborts the run early when failures are so
// sustained that the requested range clearly has no data.
package downloader

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quantfeed/go-binance-vision/internal/datatypes"
	"github.com/quantfeed/go-binance-vision/internal/fetcher"
	"github.com/quantfeed/go-binance-vision/internal/symboldates"
	"github.com/quantfeed/go-binance-vision/internal/verrors"
	"github.com/quantfeed/go-binance-vision/internal/vision"
)

const (
	// DefaultMaxWorkers bounds per-symbol download parallelism.
	DefaultMaxWorkers = 10

	// DefaultFailureThreshold is how many consecutive failures within one
	// symbol abort the remaining run.
	DefaultFailureThreshold = 100
)

// Config tunes a Downloader.
type Config struct {
	MaxWorkers       int
	FailureThreshold int // 0 disables the circuit breaker
	DataRoot         string
	UseSymbolDates   bool
	RunTimeout       time.Duration // 0 means no run deadline
}

// Downloader is bound to one (market, data type) pair at construction; the
// pairing is validated there so unsupported combinations never reach task
// expansion.
type Downloader struct {
	cfg     Config
	market  datatypes.Market
	spec    datatypes.Spec
	fetcher *fetcher.Fetcher
	dates   *symboldates.Cache
	logger  *slog.Logger
}

// New creates a downloader for one market and data type.
func New(market datatypes.Market, dataType datatypes.DataType, cfg Config, f *fetcher.Fetcher, dates *symboldates.Cache, logger *slog.Logger) (*Downloader, error) {
	spec, err := datatypes.SpecFor(dataType)
	if err != nil {
		return nil, verrors.New(verrors.KindConfiguration, "new_downloader", err)
	}
	if !spec.SupportsMarket(market) {
		return nil, verrors.Newf(verrors.KindConfiguration, "new_downloader",
			"%s is not published for the %s market", dataType, market)
	}

	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dates == nil || !cfg.UseSymbolDates {
		dates = symboldates.Empty()
	}

	return &Downloader{
		cfg:     cfg,
		market:  market,
		spec:    spec,
		fetcher: f,
		dates:   dates,
		logger:  logger.With("market", market, "data_type", dataType),
	}, nil
}

// Download runs the full job for the data type: the monthly expansion first
// (when the type publishes monthly archives), then the daily one. Both
// phases share one stats tracker, one circuit breaker and one date window.
func (d *Downloader) Download(ctx context.Context, req Request) (*Summary, error) {
	return d.run(ctx, req, d.spec.SupportsMonthly, d.spec.SupportsDaily)
}

// DownloadMonthly runs only the monthly expansion.
func (d *Downloader) DownloadMonthly(ctx context.Context, req Request) (*Summary, error) {
	return d.run(ctx, req, true, false)
}

// DownloadDaily runs only the daily expansion.
func (d *Downloader) DownloadDaily(ctx context.Context, req Request) (*Summary, error) {
	return d.run(ctx, req, false, true)
}

func (d *Downloader) run(ctx context.Context, req Request, monthly, daily bool) (*Summary, error) {
	plan, err := newPlanner(d.market, d.spec, d.dates, d.cfg.DataRoot, req, time.Now())
	if err != nil {
		return nil, err
	}

	if d.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.RunTimeout)
		defer cancel()
	}

	runID := uuid.NewString()
	logger := d.logger.With("run_id", runID)
	tracker := NewTracker(logger)
	breaker := newCircuitBreaker(d.cfg.FailureThreshold)

	pool := NewWorkerPool(d.cfg.MaxWorkers, d.execute, logger)
	if err := pool.Start(); err != nil {
		return nil, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pool.Stop(stopCtx); err != nil {
			logger.Warn("worker pool did not stop cleanly", "error", err)
		}
	}()

	if monthly {
		if d.spec.SupportsMonthly {
			d.runPeriod(ctx, logger, plan, vision.PeriodMonthly, pool, tracker, breaker)
		} else {
			logger.Info("no monthly archives for data type, skipping monthly phase")
		}
	}
	if daily && !breaker.tripped() && ctx.Err() == nil {
		if d.spec.SupportsDaily {
			d.runPeriod(ctx, logger, plan, vision.PeriodDaily, pool, tracker, breaker)
		} else {
			logger.Info("no daily archives for data type, skipping daily phase")
		}
	}

	return tracker.Finish(runID, breaker.tripped()), nil
}

// runPeriod processes one publication cadence, symbol by symbol. Symbol
// N+1's tasks never start before symbol N's batch has fully resolved,
// including its circuit-breaker decision.
func (d *Downloader) runPeriod(ctx context.Context, logger *slog.Logger, plan *planner, period vision.Period, pool *WorkerPool, tracker *Tracker, breaker *circuitBreaker) {
	for _, symbol := range plan.symbols() {
		if breaker.tripped() || ctx.Err() != nil {
			return
		}

		var tasks []Task
		if period == vision.PeriodMonthly {
			tasks = plan.monthlyTasks(symbol)
		} else {
			tasks = plan.dailyTasks(symbol)
		}
		if len(tasks) == 0 {
			continue
		}

		if start, ok := d.dates.StartDate(d.market, d.spec.DataType, symbol, plan.intervals[0]); ok {
			logger.Info("known start date for symbol", "symbol", symbol, "start_date", start)
		}
		logger.Info("downloading archives", "period", period, "symbol", symbol, "tasks", len(tasks))

		breaker.startSymbol()
		d.runBatch(ctx, logger, symbol, tasks, pool, tracker, breaker)
	}
}

// runBatch submits one symbol's tasks to the pool and collects results as
// they complete. Submission stops as soon as the breaker trips; tasks
// already dispatched are allowed to finish and their results are recorded.
func (d *Downloader) runBatch(ctx context.Context, logger *slog.Logger, symbol string, tasks []Task, pool *WorkerPool, tracker *Tracker, breaker *circuitBreaker) {
	type taskResult struct {
		task   Task
		result fetcher.Result
	}

	results := make(chan taskResult, len(tasks))
	var wg sync.WaitGroup

	go func() {
		for _, t := range tasks {
			if breaker.tripped() || ctx.Err() != nil {
				break
			}
			t := t
			wg.Add(1)
			pool.Submit(ctx, t, func(r fetcher.Result) {
				results <- taskResult{task: t, result: r}
				wg.Done()
			})
		}
		wg.Wait()
		close(results)
	}()

	for tr := range results {
		tracker.Update(symbol, tr.result.Outcome, tr.result.Bytes)

		switch tr.result.Outcome {
		case fetcher.OutcomeSuccess, fetcher.OutcomeSkipped:
			breaker.recordSuccess()
		case fetcher.OutcomeFailed:
			if breaker.recordFailure() {
				logger.Warn("sustained consecutive download failures, stopping run early",
					"symbol", symbol,
					"consecutive_failures", breaker.threshold)
				logger.Warn("data may not be available for the requested date range; narrow it with start/end dates")
			}
		}
	}
}

// execute is the worker-pool handler for one task.
func (d *Downloader) execute(ctx context.Context, t Task) fetcher.Result {
	return d.fetcher.Fetch(ctx, t.RemoteDir, t.Filename, t.SavePath)
}

// circuitBreaker counts consecutive failures within the current symbol's
// batch. Any Success or Skipped resets the count; reaching the threshold
// trips the breaker for the remainder of the whole run. The counter itself
// is only touched by the result-collection goroutine; the tripped flag is
// read concurrently by submitters.
type circuitBreaker struct {
	threshold   int
	consecutive int
	isTripped   atomic.Bool
}

func newCircuitBreaker(threshold int) *circuitBreaker {
	return &circuitBreaker{threshold: threshold}
}

func (b *circuitBreaker) startSymbol() { b.consecutive = 0 }

func (b *circuitBreaker) recordSuccess() { b.consecutive = 0 }

// recordFailure increments the consecutive count and reports whether this
// failure tripped the breaker.
func (b *circuitBreaker) recordFailure() bool {
	if b.threshold <= 0 {
		return false
	}
	b.consecutive++
	if b.consecutive >= b.threshold && b.isTripped.CompareAndSwap(false, true) {
		return true
	}
	return false
}

func (b *circuitBreaker) tripped() bool { return b.isTripped.Load() }
