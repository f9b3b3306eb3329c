package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/go-binance-vision/internal/verrors"
)

const testRemoteDir = "data/spot/monthly/klines/BTCUSDT/1h/"

func newTestFetcher(baseURL string, cfg Config) *Fetcher {
	cfg.BaseURL = baseURL
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry = RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, ExponentialBackoff: false}
	}
	return New(cfg, nil)
}

func TestFetch(t *testing.T) {
	t.Run("downloads to the save path", func(t *testing.T) {
		payload := []byte("zip-bytes")
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/"+testRemoteDir+"BTCUSDT-1h-2023-01.zip", r.URL.Path)
			w.Write(payload)
		}))
		defer server.Close()

		savePath := filepath.Join(t.TempDir(), "mirror", "BTCUSDT-1h-2023-01.zip")
		f := newTestFetcher(server.URL, Config{})
		res := f.Fetch(context.Background(), testRemoteDir, "BTCUSDT-1h-2023-01.zip", savePath)

		require.NoError(t, res.Err)
		assert.Equal(t, OutcomeSuccess, res.Outcome)
		assert.Equal(t, int64(len(payload)), res.Bytes)

		written, err := os.ReadFile(savePath)
		require.NoError(t, err)
		assert.Equal(t, payload, written)
	})

	t.Run("existing file is skipped without a request", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.Write([]byte("fresh"))
		}))
		defer server.Close()

		savePath := filepath.Join(t.TempDir(), "BTCUSDT-1h-2023-01.zip")
		require.NoError(t, os.WriteFile(savePath, []byte("already here"), 0644))

		f := newTestFetcher(server.URL, Config{})
		res := f.Fetch(context.Background(), testRemoteDir, "BTCUSDT-1h-2023-01.zip", savePath)

		assert.Equal(t, OutcomeSkipped, res.Outcome)
		assert.Equal(t, int32(0), requests.Load())

		// the existing content is left untouched
		content, err := os.ReadFile(savePath)
		require.NoError(t, err)
		assert.Equal(t, "already here", string(content))
	})

	t.Run("404 fails after a single request", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		savePath := filepath.Join(t.TempDir(), "BTCUSDT-1h-2017-01.zip")
		f := newTestFetcher(server.URL, Config{})
		res := f.Fetch(context.Background(), testRemoteDir, "BTCUSDT-1h-2017-01.zip", savePath)

		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.True(t, verrors.IsNotFound(res.Err))
		assert.Equal(t, int32(1), requests.Load())
		assert.NoFileExists(t, savePath)
	})

	t.Run("server errors are retried", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("recovered"))
		}))
		defer server.Close()

		savePath := filepath.Join(t.TempDir(), "BTCUSDT-1h-2023-02.zip")
		f := newTestFetcher(server.URL, Config{})
		res := f.Fetch(context.Background(), testRemoteDir, "BTCUSDT-1h-2023-02.zip", savePath)

		require.NoError(t, res.Err)
		assert.Equal(t, OutcomeSuccess, res.Outcome)
		assert.Equal(t, int32(3), requests.Load())
	})

	t.Run("interrupted transfer removes the partial file", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// promise more bytes than are sent so the client sees an
			// unexpected EOF mid-body
			w.Header().Set("Content-Length", "1048576")
			w.Write([]byte("partial"))
			w.(http.Flusher).Flush()
		}))
		defer server.Close()

		savePath := filepath.Join(t.TempDir(), "BTCUSDT-1h-2023-03.zip")
		f := newTestFetcher(server.URL, Config{
			Retry: RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond},
		})
		res := f.Fetch(context.Background(), testRemoteDir, "BTCUSDT-1h-2023-03.zip", savePath)

		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.NoFileExists(t, savePath, "partial download must not survive")
	})
}

func TestFetchChecksum(t *testing.T) {
	payload := []byte("archive-bytes")
	digest := sha256.Sum256(payload)
	goodDigest := hex.EncodeToString(digest[:])
	badDigest := strings.Repeat("0", 64)

	newChecksumServer := func(digest string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, ".CHECKSUM") {
				fmt.Fprintf(w, "%s  BTCUSDT-1h-2023-01.zip\n", digest)
				return
			}
			w.Write(payload)
		}))
	}

	t.Run("downloads the artifact alongside the file", func(t *testing.T) {
		server := newChecksumServer(goodDigest)
		defer server.Close()

		savePath := filepath.Join(t.TempDir(), "BTCUSDT-1h-2023-01.zip")
		f := newTestFetcher(server.URL, Config{DownloadChecksum: true, VerifyChecksum: true})
		res := f.Fetch(context.Background(), testRemoteDir, "BTCUSDT-1h-2023-01.zip", savePath)

		assert.Equal(t, OutcomeSuccess, res.Outcome)
		assert.FileExists(t, savePath+".CHECKSUM")
	})

	t.Run("mismatch keeps the file and the success outcome", func(t *testing.T) {
		server := newChecksumServer(badDigest)
		defer server.Close()

		savePath := filepath.Join(t.TempDir(), "BTCUSDT-1h-2023-01.zip")
		f := newTestFetcher(server.URL, Config{DownloadChecksum: true, VerifyChecksum: true})
		res := f.Fetch(context.Background(), testRemoteDir, "BTCUSDT-1h-2023-01.zip", savePath)

		assert.Equal(t, OutcomeSuccess, res.Outcome)
		assert.FileExists(t, savePath, "verification is advisory, the data file stays")
	})

	t.Run("disabled by default", func(t *testing.T) {
		server := newChecksumServer(goodDigest)
		defer server.Close()

		savePath := filepath.Join(t.TempDir(), "BTCUSDT-1h-2023-01.zip")
		f := newTestFetcher(server.URL, Config{})
		res := f.Fetch(context.Background(), testRemoteDir, "BTCUSDT-1h-2023-01.zip", savePath)

		assert.Equal(t, OutcomeSuccess, res.Outcome)
		assert.NoFileExists(t, savePath+".CHECKSUM")
	})
}
