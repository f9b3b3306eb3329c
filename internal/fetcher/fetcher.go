// Package fetcher performs single idempotent archive downloads: skip if the
// file already exists locally, otherwise stream the remote body to disk with
// bounded retries, cleaning up partial writes so a failed transfer can never
// masquerade as a complete file on the next run.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantfeed/go-binance-vision/internal/verrors"
	"github.com/quantfeed/go-binance-vision/internal/vision"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultChunkSize      = 64 * 1024
	userAgent             = "go-binance-vision/1.0"
)

// Outcome is the tri-state result of one fetch. Failures are reported by
// value, never as errors escaping the executor's result loop.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result describes one completed fetch.
type Result struct {
	Outcome Outcome
	Bytes   int64
	Err     error // set only when Outcome is OutcomeFailed
}

// Config tunes the fetcher.
type Config struct {
	BaseURL          string // defaults to vision.BaseURL
	Timeout          time.Duration
	RequestsPerSec   int // 0 disables rate limiting
	Retry            RetryPolicy
	DownloadChecksum bool // also fetch the .CHECKSUM artifact on success
	VerifyChecksum   bool // verify the digest after download (advisory)
}

// Fetcher downloads archive files to the local mirror tree.
type Fetcher struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a fetcher with a tuned HTTP client.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = vision.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.RequestsPerSec)
	}

	return &Fetcher{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
		logger:  logger,
	}
}

// Fetch downloads one file from remoteDir into savePath.
//
// If savePath already exists the fetch returns Skipped without touching the
// network; this is the idempotence guarantee that makes repeated runs cheap.
// On success, the companion checksum artifact is fetched and verified when
// so configured; a mismatch is logged but does not change the Success
// outcome and does not remove the data file.
func (f *Fetcher) Fetch(ctx context.Context, remoteDir, filename, savePath string) Result {
	if _, err := os.Stat(savePath); err == nil {
		f.logger.Info("file exists locally, skipping", "file", filename)
		return Result{Outcome: OutcomeSkipped}
	}

	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		err = verrors.New(verrors.KindLocalIO, "fetch", err)
		f.logger.Error("failed to create local directory", "file", filename, "error", err)
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	url := vision.DownloadURL(f.cfg.BaseURL, remoteDir+filename)

	var bytes int64
	err := f.cfg.Retry.Run(ctx, func() error {
		n, err := f.transfer(ctx, url, savePath)
		bytes = n
		return err
	})
	if err != nil {
		if verrors.IsNotFound(err) {
			f.logger.Info("remote file not found", "file", filename)
		} else {
			f.logger.Warn("download failed", "file", filename, "timeout", verrors.IsTimeout(err), "error", err)
		}
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	f.logger.Info("download completed", "file", filename, "bytes", bytes)

	if f.cfg.DownloadChecksum {
		f.fetchChecksum(ctx, remoteDir, filename, savePath)
	}

	return Result{Outcome: OutcomeSuccess, Bytes: bytes}
}

// transfer performs one download attempt, streaming the body to savePath in
// bounded chunks. Any error removes the partial file before returning so the
// skip-if-exists check stays trustworthy.
func (f *Fetcher) transfer(ctx context.Context, url, savePath string) (int64, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return 0, verrors.Classify("fetch", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, verrors.Newf(verrors.KindConfiguration, "fetch", "failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, verrors.Classify("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, verrors.FromHTTPStatus("fetch", resp.StatusCode)
	}

	out, err := os.Create(savePath)
	if err != nil {
		return 0, verrors.New(verrors.KindLocalIO, "fetch", err)
	}

	buf := make([]byte, defaultChunkSize)
	written, copyErr := io.CopyBuffer(out, resp.Body, buf)
	closeErr := out.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(savePath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return 0, verrors.Classify("fetch", fmt.Errorf("transfer interrupted: %w", copyErr))
	}

	return written, nil
}

// fetchChecksum downloads the companion checksum artifact next to the data
// file and, when verification is on, checks the digest. Both steps are
// advisory: failures are logged and the data file is left in place.
func (f *Fetcher) fetchChecksum(ctx context.Context, remoteDir, filename, savePath string) {
	checksumName := vision.ChecksumFilename(filename)
	checksumPath := savePath + ".CHECKSUM"

	url := vision.DownloadURL(f.cfg.BaseURL, remoteDir+checksumName)
	if err := f.cfg.Retry.Run(ctx, func() error {
		_, err := f.transfer(ctx, url, checksumPath)
		return err
	}); err != nil {
		f.logger.Warn("failed to fetch checksum artifact", "file", checksumName, "error", err)
		return
	}

	if !f.cfg.VerifyChecksum {
		return
	}

	ok, err := VerifyChecksum(savePath, checksumPath)
	switch {
	case err != nil:
		f.logger.Warn("checksum verification errored", "file", filename, "error", err)
	case !ok:
		mismatch := verrors.Newf(verrors.KindChecksumMismatch, "verify_checksum", "digest does not match %s", checksumName)
		f.logger.Warn("checksum mismatch, keeping file", "file", filename, "error", mismatch)
	default:
		f.logger.Debug("checksum verified", "file", filename)
	}
}
