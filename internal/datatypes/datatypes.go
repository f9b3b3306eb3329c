// Package datatypes defines the registry of archive data types published on
// the Binance Vision static tree. Each data type carries flags describing
// which market segments publish it, whether it is parameterized by a kline
// interval, and whether monthly and/or daily archives exist for it.
package datatypes

import (
	"fmt"
	"sort"
)

// Market identifies a trading venue on the exchange.
type Market string

const (
	MarketSpot   Market = "spot"   // spot market
	MarketUM     Market = "um"     // USD-margined futures
	MarketCM     Market = "cm"     // coin-margined futures
	MarketOption Market = "option" // volatility index data (BVOLIndex)
)

// DataType identifies a published archive category.
type DataType string

const (
	Klines              DataType = "klines"
	Trades              DataType = "trades"
	AggTrades           DataType = "aggTrades"
	IndexPriceKlines    DataType = "indexPriceKlines"
	MarkPriceKlines     DataType = "markPriceKlines"
	PremiumIndexKlines  DataType = "premiumIndexKlines"
	FundingRate         DataType = "fundingRate"
	LiquidationSnapshot DataType = "liquidationSnapshot"
	BookTicker          DataType = "bookTicker"
	Depth               DataType = "depth"
	Option              DataType = "option"
)

// Spec describes one data type's availability and path naming.
type Spec struct {
	DataType          DataType
	PathSegment       string
	SupportsSpot      bool
	SupportsUM        bool
	SupportsCM        bool
	SupportsIntervals bool
	SupportsMonthly   bool
	SupportsDaily     bool
}

// SupportsMarket reports whether the data type is published for the market.
// Option data lives in its own tree and is only reachable via MarketOption.
func (s Spec) SupportsMarket(m Market) bool {
	switch m {
	case MarketSpot:
		return s.SupportsSpot
	case MarketUM:
		return s.SupportsUM
	case MarketCM:
		return s.SupportsCM
	case MarketOption:
		return s.DataType == Option
	default:
		return false
	}
}

var registry = map[DataType]Spec{
	Klines: {
		DataType:          Klines,
		PathSegment:       "klines",
		SupportsSpot:      true,
		SupportsUM:        true,
		SupportsCM:        true,
		SupportsIntervals: true,
		SupportsMonthly:   true,
		SupportsDaily:     true,
	},
	Trades: {
		DataType:        Trades,
		PathSegment:     "trades",
		SupportsSpot:    true,
		SupportsUM:      true,
		SupportsCM:      true,
		SupportsMonthly: true,
		SupportsDaily:   true,
	},
	AggTrades: {
		DataType:        AggTrades,
		PathSegment:     "aggTrades",
		SupportsSpot:    true,
		SupportsUM:      true,
		SupportsCM:      true,
		SupportsMonthly: true,
		SupportsDaily:   true,
	},
	IndexPriceKlines: {
		DataType:          IndexPriceKlines,
		PathSegment:       "indexPriceKlines",
		SupportsUM:        true,
		SupportsCM:        true,
		SupportsIntervals: true,
		SupportsMonthly:   true,
		SupportsDaily:     true,
	},
	MarkPriceKlines: {
		DataType:          MarkPriceKlines,
		PathSegment:       "markPriceKlines",
		SupportsUM:        true,
		SupportsCM:        true,
		SupportsIntervals: true,
		SupportsMonthly:   true,
		SupportsDaily:     true,
	},
	PremiumIndexKlines: {
		DataType:          PremiumIndexKlines,
		PathSegment:       "premiumIndexKlines",
		SupportsUM:        true,
		SupportsIntervals: true,
		SupportsMonthly:   true,
		SupportsDaily:     true,
	},
	FundingRate: {
		// Funding rate archives are published monthly only.
		DataType:        FundingRate,
		PathSegment:     "fundingRate",
		SupportsUM:      true,
		SupportsCM:      true,
		SupportsMonthly: true,
	},
	LiquidationSnapshot: {
		DataType:      LiquidationSnapshot,
		PathSegment:   "liquidationSnapshot",
		SupportsCM:    true,
		SupportsDaily: true,
	},
	BookTicker: {
		DataType:      BookTicker,
		PathSegment:   "bookTicker",
		SupportsUM:    true,
		SupportsCM:    true,
		SupportsDaily: true,
	},
	Depth: {
		DataType:      Depth,
		PathSegment:   "depth",
		SupportsSpot:  true,
		SupportsUM:    true,
		SupportsDaily: true,
	},
	Option: {
		// Volatility index data; published under data/option/daily/BVOLIndex.
		DataType:      Option,
		PathSegment:   "BVOLIndex",
		SupportsDaily: true,
	},
}

// SpecFor returns the specification for a data type.
func SpecFor(dt DataType) (Spec, error) {
	spec, ok := registry[dt]
	if !ok {
		return Spec{}, fmt.Errorf("unknown data type: %s", dt)
	}
	return spec, nil
}

// All returns every registered data type in stable order.
func All() []DataType {
	types := make([]DataType, 0, len(registry))
	for dt := range registry {
		types = append(types, dt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// SupportedBy returns the data types published for a market, in stable order.
func SupportedBy(m Market) []DataType {
	var types []DataType
	for _, dt := range All() {
		if registry[dt].SupportsMarket(m) {
			types = append(types, dt)
		}
	}
	return types
}

// ParseMarket validates a market string.
func ParseMarket(s string) (Market, error) {
	switch Market(s) {
	case MarketSpot, MarketUM, MarketCM, MarketOption:
		return Market(s), nil
	}
	return "", fmt.Errorf("invalid market: %q (expected spot, um, cm or option)", s)
}

// ParseDataType validates a data type string against the registry.
func ParseDataType(s string) (DataType, error) {
	if _, ok := registry[DataType(s)]; !ok {
		return "", fmt.Errorf("unknown data type: %q", s)
	}
	return DataType(s), nil
}
