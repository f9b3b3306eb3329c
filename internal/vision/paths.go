// Package vision maps (market, data type, period, symbol, interval) tuples
// to the remote layout of the Binance Vision archive tree and to the
// mirrored local layout. All functions here are pure string construction;
// the layout is reproduced bit-exactly from the published tree.
package vision

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/quantfeed/go-binance-vision/internal/datatypes"
)

// BaseURL is the root of the public archive host.
const BaseURL = "https://data.binance.vision/"

// Period is the archive publication cadence.
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodDaily   Period = "daily"
)

// DownloadURL builds the full URL for a relative archive path.
func DownloadURL(baseURL, relPath string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(relPath, "/")
}

// DataPath builds the remote directory (with trailing slash) holding the
// archives for one symbol. The option market is a special case: its data
// lives under data/option regardless of the data type's own segment.
func DataPath(market datatypes.Market, spec datatypes.Spec, period Period, symbol, interval string) string {
	var base string
	switch market {
	case datatypes.MarketOption:
		base = fmt.Sprintf("data/option/%s/BVOLIndex", period)
	case datatypes.MarketSpot:
		base = fmt.Sprintf("data/spot/%s/%s", period, spec.PathSegment)
	default:
		base = fmt.Sprintf("data/futures/%s/%s/%s", market, period, spec.PathSegment)
	}

	p := base + "/" + strings.ToUpper(symbol)
	if interval != "" {
		p += "/" + interval
	}
	return p + "/"
}

// MonthlyFilename formats the canonical monthly archive name:
// {SYMBOL}-{interval|segment}-{YYYY-MM}.zip. Interval-bearing data types
// use the interval as the middle token, all others use the path segment.
//
// Calling this for a data type without monthly archives is a programmer
// error: callers must consult the registry first.
func MonthlyFilename(spec datatypes.Spec, symbol, interval string, year int, month time.Month) string {
	if !spec.SupportsMonthly {
		panic(fmt.Sprintf("vision: %s has no monthly archives", spec.DataType))
	}
	return fmt.Sprintf("%s-%s-%04d-%02d.zip", strings.ToUpper(symbol), filenameToken(spec, interval), year, month)
}

// DailyFilename formats the canonical daily archive name:
// {SYMBOL}-{interval|segment}-{YYYY-MM-DD}.zip.
//
// Calling this for a data type without daily archives is a programmer
// error: callers must consult the registry first.
func DailyFilename(spec datatypes.Spec, symbol, interval, dateStr string) string {
	if !spec.SupportsDaily {
		panic(fmt.Sprintf("vision: %s has no daily archives", spec.DataType))
	}
	return fmt.Sprintf("%s-%s-%s.zip", strings.ToUpper(symbol), filenameToken(spec, interval), dateStr)
}

func filenameToken(spec datatypes.Spec, interval string) string {
	if spec.SupportsIntervals && interval != "" {
		return interval
	}
	return spec.PathSegment
}

// ChecksumFilename returns the name of the companion checksum artifact.
func ChecksumFilename(dataFilename string) string {
	return dataFilename + ".CHECKSUM"
}

// SavePath builds the local path a file is stored under. The local tree
// mirrors the remote tree; when a custom root folder is supplied the
// leading "data/" prefix is stripped because the root already is the data
// directory.
func SavePath(root string, market datatypes.Market, spec datatypes.Spec, period Period, symbol, interval, filename string) string {
	rel := DataPath(market, spec, period, symbol, interval)
	if root != "" {
		rel = strings.TrimPrefix(rel, "data/")
	}
	return filepath.Join(root, filepath.FromSlash(rel), filename)
}

var filenameRe = regexp.MustCompile(`^([A-Z0-9]+)-(.+)-(\d{4}-\d{2}(?:-\d{2})?)\.zip$`)

// ParsedFilename is the result of decomposing a canonical archive name.
type ParsedFilename struct {
	Symbol string
	Token  string // interval for interval-bearing types, path segment otherwise
	Date   string // YYYY-MM for monthly, YYYY-MM-DD for daily
}

// ParseFilename decomposes a canonical archive filename back into its
// symbol, interval-or-segment token and period fields.
func ParseFilename(name string) (ParsedFilename, error) {
	m := filenameRe.FindStringSubmatch(path.Base(name))
	if m == nil {
		return ParsedFilename{}, fmt.Errorf("not a canonical archive filename: %q", name)
	}
	return ParsedFilename{Symbol: m[1], Token: m[2], Date: m[3]}, nil
}
