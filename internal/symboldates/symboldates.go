// Package symboldates loads the symbol start-date cache: a JSON side
// artifact mapping market → data type → symbol → interval to the earliest
// date known to have data. The planner uses it to prune requests for dates
// before a symbol existed. The cache is produced by an external scanner;
// this package treats it as read-only.
//
// An absent or unreadable cache is not an error: downloads simply proceed
// unpruned. Likewise the absence of an entry means "unknown", never
// "no data".
package symboldates

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/quantfeed/go-binance-vision/internal/datatypes"
)

// DefaultCachePath is where the scanner writes the artifact by default.
const DefaultCachePath = "data/symbol_dates.json"

// defaultKey holds the start date for data types without intervals.
const defaultKey = "_default"

const metadataKey = "_metadata"

// markets → data types → symbols → interval-or-_default → YYYY-MM-DD
type tree map[string]map[string]map[string]map[string]string

// Cache is the in-memory view of the start-date artifact, loaded once per
// run and never mutated afterwards.
type Cache struct {
	data     tree
	metadata map[string]any
	logger   *slog.Logger
}

// Load reads the cache artifact from path. Missing or corrupt files yield
// an empty (unavailable) cache, logged at WARN, not an error.
func Load(path string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{data: tree{}, metadata: map[string]any{}, logger: logger}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read symbol dates cache", "path", path, "error", err)
		} else {
			logger.Debug("symbol dates cache not found", "path", path)
		}
		return c
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		logger.Warn("failed to parse symbol dates cache", "path", path, "error", err)
		return c
	}

	for key, section := range sections {
		if key == metadataKey {
			var meta map[string]any
			if err := json.Unmarshal(section, &meta); err == nil {
				c.metadata = meta
			}
			continue
		}
		var market map[string]map[string]map[string]string
		if err := json.Unmarshal(section, &market); err != nil {
			logger.Warn("skipping malformed cache section", "market", key, "error", err)
			continue
		}
		c.data[key] = market
	}

	logger.Debug("loaded symbol dates cache", "path", path, "markets", len(c.data))
	return c
}

// Empty returns a cache with no data, for callers that disable pruning.
func Empty() *Cache {
	return &Cache{data: tree{}, metadata: map[string]any{}, logger: slog.Default()}
}

// Available reports whether any usable symbol data was loaded.
func (c *Cache) Available() bool {
	return len(c.data) > 0
}

// StartDate returns the earliest known date with data for the symbol, and
// whether an entry exists. Data types without intervals pass interval="".
func (c *Cache) StartDate(market datatypes.Market, dt datatypes.DataType, symbol, interval string) (string, bool) {
	symbols, ok := c.data[string(market)][string(dt)]
	if !ok {
		return "", false
	}
	entry, ok := symbols[symbol]
	if !ok {
		return "", false
	}
	key := interval
	if key == "" {
		key = defaultKey
	}
	date, ok := entry[key]
	return date, ok && date != ""
}

// EffectiveStartDate resolves the start date for a download: the later of
// the requested start and the symbol's cached start. ISO dates compare
// correctly as strings.
func (c *Cache) EffectiveStartDate(market datatypes.Market, dt datatypes.DataType, symbol, interval, requestedStart string) string {
	cached, ok := c.StartDate(market, dt, symbol, interval)
	if !ok {
		return requestedStart
	}
	if requestedStart == "" || cached > requestedStart {
		return cached
	}
	return requestedStart
}

// Metadata returns the artifact's _metadata section, if any.
func (c *Cache) Metadata() map[string]any {
	return c.metadata
}
