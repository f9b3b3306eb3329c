package symboldates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/go-binance-vision/internal/datatypes"
)

const sampleCache = `{
	"spot": {
		"klines": {
			"BTCUSDT": {"1h": "2017-08-17", "1d": "2017-08-17"},
			"NEWCOIN": {"1h": "2024-03-01"}
		},
		"trades": {
			"BTCUSDT": {"_default": "2017-08-17"}
		}
	},
	"um": {
		"fundingRate": {
			"BTCUSDT": {"_default": "2019-09-10"}
		}
	},
	"_metadata": {"generated_at": "2024-06-01T00:00:00Z", "version": 2}
}`

func writeCache(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbol_dates.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("valid cache", func(t *testing.T) {
		c := Load(writeCache(t, sampleCache), nil)
		assert.True(t, c.Available())

		date, ok := c.StartDate(datatypes.MarketSpot, datatypes.Klines, "BTCUSDT", "1h")
		require.True(t, ok)
		assert.Equal(t, "2017-08-17", date)
	})

	t.Run("missing file yields empty cache", func(t *testing.T) {
		c := Load(filepath.Join(t.TempDir(), "nope.json"), nil)
		assert.False(t, c.Available())

		_, ok := c.StartDate(datatypes.MarketSpot, datatypes.Klines, "BTCUSDT", "1h")
		assert.False(t, ok)
	})

	t.Run("corrupt file yields empty cache", func(t *testing.T) {
		c := Load(writeCache(t, "{broken"), nil)
		assert.False(t, c.Available())
	})

	t.Run("metadata section is kept separate", func(t *testing.T) {
		c := Load(writeCache(t, sampleCache), nil)
		assert.Equal(t, "2024-06-01T00:00:00Z", c.Metadata()["generated_at"])

		// _metadata must never be treated as a market
		_, ok := c.StartDate(datatypes.Market("_metadata"), datatypes.Klines, "BTCUSDT", "1h")
		assert.False(t, ok)
	})
}

func TestStartDate(t *testing.T) {
	c := Load(writeCache(t, sampleCache), nil)

	t.Run("interval-free types use the default key", func(t *testing.T) {
		date, ok := c.StartDate(datatypes.MarketSpot, datatypes.Trades, "BTCUSDT", "")
		require.True(t, ok)
		assert.Equal(t, "2017-08-17", date)
	})

	t.Run("absent symbol means unknown", func(t *testing.T) {
		_, ok := c.StartDate(datatypes.MarketSpot, datatypes.Klines, "DOGEUSDT", "1h")
		assert.False(t, ok)
	})

	t.Run("absent interval means unknown", func(t *testing.T) {
		_, ok := c.StartDate(datatypes.MarketSpot, datatypes.Klines, "BTCUSDT", "5m")
		assert.False(t, ok)
	})

	t.Run("absent market means unknown", func(t *testing.T) {
		_, ok := c.StartDate(datatypes.MarketCM, datatypes.Klines, "BTCUSD_PERP", "1h")
		assert.False(t, ok)
	})
}

func TestEffectiveStartDate(t *testing.T) {
	c := Load(writeCache(t, sampleCache), nil)

	t.Run("cached start wins when later", func(t *testing.T) {
		got := c.EffectiveStartDate(datatypes.MarketSpot, datatypes.Klines, "NEWCOIN", "1h", "2017-01-01")
		assert.Equal(t, "2024-03-01", got)
	})

	t.Run("requested start wins when later", func(t *testing.T) {
		got := c.EffectiveStartDate(datatypes.MarketSpot, datatypes.Klines, "BTCUSDT", "1h", "2023-01-01")
		assert.Equal(t, "2023-01-01", got)
	})

	t.Run("unknown symbol keeps the request", func(t *testing.T) {
		got := c.EffectiveStartDate(datatypes.MarketSpot, datatypes.Klines, "DOGEUSDT", "1h", "2021-05-01")
		assert.Equal(t, "2021-05-01", got)
	})
}

func TestEmpty(t *testing.T) {
	c := Empty()
	assert.False(t, c.Available())
	_, ok := c.StartDate(datatypes.MarketSpot, datatypes.Klines, "BTCUSDT", "1h")
	assert.False(t, ok)
}
