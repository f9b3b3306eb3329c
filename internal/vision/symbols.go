package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/quantfeed/go-binance-vision/internal/datatypes"
	"github.com/quantfeed/go-binance-vision/internal/verrors"
)

const (
	symbolRequestTimeout = 10 * time.Second
	symbolMaxRetries     = 3
	symbolRetryDelay     = 500 * time.Millisecond
)

// exchangeInfoURLs maps each market to its exchangeInfo endpoint.
var exchangeInfoURLs = map[datatypes.Market]string{
	datatypes.MarketSpot:   "https://api.binance.com/api/v3/exchangeInfo",
	datatypes.MarketUM:     "https://fapi.binance.com/fapi/v1/exchangeInfo",
	datatypes.MarketCM:     "https://dapi.binance.com/dapi/v1/exchangeInfo",
	datatypes.MarketOption: "https://eapi.binance.com/eapi/v1/exchangeInfo",
}

// optionSymbols are the only symbols published under the BVOLIndex tree.
var optionSymbols = []string{"BTCBVOLUSDT", "ETHBVOLUSDT"}

// SymbolProvider fetches the tradable symbol list for a market from the
// exchange's public exchangeInfo endpoint.
type SymbolProvider struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	urls       map[datatypes.Market]string
}

// NewSymbolProvider creates a symbol provider with a tuned HTTP client.
func NewSymbolProvider(logger *slog.Logger) *SymbolProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &SymbolProvider{
		httpClient: &http.Client{
			Timeout: symbolRequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		logger:  logger,
		urls:    exchangeInfoURLs,
	}
}

// FetchSymbols returns all trading symbols for the market. The option
// market has a fixed symbol set and needs no network call.
func (p *SymbolProvider) FetchSymbols(ctx context.Context, market datatypes.Market) ([]string, error) {
	if market == datatypes.MarketOption {
		return append([]string(nil), optionSymbols...), nil
	}

	endpoint, ok := p.urls[market]
	if !ok {
		return nil, verrors.Newf(verrors.KindConfiguration, "fetch_symbols", "unsupported market: %s", market)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	body, err := p.getWithRetry(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange info for %s: %w", market, err)
	}

	var info struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse exchange info response: %w", err)
	}

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		symbols = append(symbols, s.Symbol)
	}

	p.logger.Debug("fetched symbols", "market", market, "count", len(symbols))
	return symbols, nil
}

func (p *SymbolProvider) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = symbolRetryDelay
	policy.MaxElapsedTime = 0

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "go-binance-vision/1.0")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return verrors.Classify("fetch_symbols", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := verrors.FromHTTPStatus("fetch_symbols", resp.StatusCode)
			if !verrors.Retryable(statusErr) {
				return backoff.Permanent(statusErr)
			}
			return statusErr
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return verrors.Classify("fetch_symbols", err)
		}
		return nil
	}

	wrapped := backoff.WithContext(backoff.WithMaxRetries(policy, symbolMaxRetries), ctx)
	if err := backoff.Retry(operation, wrapped); err != nil {
		return nil, err
	}
	return body, nil
}
