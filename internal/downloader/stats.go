package downloader

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quantfeed/go-binance-vision/internal/fetcher"
)

// progressLogEvery controls how often the tracker emits a progress line.
const progressLogEvery = 50

// Tracker accumulates task outcomes across one or more planner runs. All
// counters are updated atomically; Update is safe to call from every worker
// concurrently.
type Tracker struct {
	logger *slog.Logger

	total      int64
	downloaded int64
	failed     int64
	skipped    int64
	bytes      int64

	started time.Time
}

// Summary is the final accounting of a run. Downloaded excludes Skipped:
// skipped files were already on disk and cost no network call.
type Summary struct {
	RunID      string
	Total      int64
	Downloaded int64
	Failed     int64
	Skipped    int64
	Bytes      int64
	Duration   time.Duration
	Aborted    bool
}

// SuccessRate returns the fraction of tasks that ended in Success or
// Skipped, as a percentage.
func (s *Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Downloaded+s.Skipped) / float64(s.Total) * 100
}

// NewTracker creates a tracker; the clock starts immediately.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger, started: time.Now()}
}

// Update records one completed task.
func (t *Tracker) Update(symbol string, outcome fetcher.Outcome, bytes int64) {
	processed := atomic.AddInt64(&t.total, 1)

	switch outcome {
	case fetcher.OutcomeSuccess:
		atomic.AddInt64(&t.downloaded, 1)
		atomic.AddInt64(&t.bytes, bytes)
	case fetcher.OutcomeSkipped:
		atomic.AddInt64(&t.skipped, 1)
	case fetcher.OutcomeFailed:
		atomic.AddInt64(&t.failed, 1)
	}

	if processed%progressLogEvery == 0 {
		t.logger.Info("progress",
			"processed", processed,
			"downloaded", atomic.LoadInt64(&t.downloaded),
			"failed", atomic.LoadInt64(&t.failed),
			"skipped", atomic.LoadInt64(&t.skipped),
			"symbol", symbol)
	}
}

// Downloaded returns the number of files newly fetched so far.
func (t *Tracker) Downloaded() int64 {
	return atomic.LoadInt64(&t.downloaded)
}

// Finish closes the run and emits the summary block. It is emitted even on
// early termination so a partial run still reports what it did.
func (t *Tracker) Finish(runID string, aborted bool) *Summary {
	s := &Summary{
		RunID:      runID,
		Total:      atomic.LoadInt64(&t.total),
		Downloaded: atomic.LoadInt64(&t.downloaded),
		Failed:     atomic.LoadInt64(&t.failed),
		Skipped:    atomic.LoadInt64(&t.skipped),
		Bytes:      atomic.LoadInt64(&t.bytes),
		Duration:   time.Since(t.started),
		Aborted:    aborted,
	}

	t.logger.Info("download summary",
		"run_id", s.RunID,
		"total", s.Total,
		"downloaded", s.Downloaded,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"success_rate", s.SuccessRate(),
		"bytes", s.Bytes,
		"duration", s.Duration,
		"aborted", s.Aborted)

	return s
}
