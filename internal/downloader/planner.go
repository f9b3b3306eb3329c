package downloader

import (
	"fmt"
	"time"

	"github.com/quantfeed/go-binance-vision/internal/datatypes"
	"github.com/quantfeed/go-binance-vision/internal/symboldates"
	"github.com/quantfeed/go-binance-vision/internal/verrors"
	"github.com/quantfeed/go-binance-vision/internal/vision"
)

const dateLayout = "2006-01-02"

// defaultStartYear is the first year any archive was published.
const defaultStartYear = 2017

// Task is one unit of download work: a single archive file for a symbol and
// period. Tasks are constructed during plan expansion, consumed exactly once
// by the executor and never mutated.
type Task struct {
	Symbol    string
	Interval  string // empty for data types without intervals
	Period    vision.Period
	DateLabel string // YYYY-MM for monthly, YYYY-MM-DD for daily

	RemoteDir string
	Filename  string
	SavePath  string
}

// Request describes one download job: the symbol/interval/date space to
// expand. Zero-valued fields fall back to defaults covering the whole
// published history.
type Request struct {
	Symbols   []string
	Intervals []string // required iff the data type supports intervals

	// Monthly expansion space. Empty means all years since 2017 and all
	// twelve months.
	Years  []int
	Months []time.Month

	// Daily expansion space. Empty means every date in the window.
	Dates []string

	// Inclusive date window, YYYY-MM-DD. Empty start means the beginning
	// of the published history; empty end means today.
	StartDate string
	EndDate   string
}

// planner expands a Request into pruned task lists for one symbol at a
// time. It holds the parsed window bounds so validation happens exactly
// once, before any expansion.
type planner struct {
	market datatypes.Market
	spec   datatypes.Spec
	cache  *symboldates.Cache
	root   string

	syms      []string
	intervals []string
	years     []int
	months    []time.Month
	dates     []string
	start     time.Time
	end       time.Time
}

// newPlanner validates the request and resolves defaults. All
// configuration errors surface here, before any task is dispatched.
func newPlanner(market datatypes.Market, spec datatypes.Spec, cache *symboldates.Cache, root string, req Request, now time.Time) (*planner, error) {
	if len(req.Symbols) == 0 {
		return nil, verrors.Newf(verrors.KindConfiguration, "plan", "no symbols requested")
	}

	intervals := req.Intervals
	if spec.SupportsIntervals {
		if len(intervals) == 0 {
			return nil, verrors.Newf(verrors.KindConfiguration, "plan", "%s requires at least one interval", spec.DataType)
		}
	} else {
		if len(intervals) > 0 {
			return nil, verrors.Newf(verrors.KindConfiguration, "plan", "%s does not take intervals", spec.DataType)
		}
		intervals = []string{""}
	}

	start := time.Date(defaultStartYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	if req.StartDate != "" {
		var err error
		if start, err = parseDate(req.StartDate); err != nil {
			return nil, err
		}
	}
	end := now.UTC().Truncate(24 * time.Hour)
	if req.EndDate != "" {
		var err error
		if end, err = parseDate(req.EndDate); err != nil {
			return nil, err
		}
	}
	if end.Before(start) {
		return nil, verrors.Newf(verrors.KindConfiguration, "plan", "end date %s precedes start date %s",
			end.Format(dateLayout), start.Format(dateLayout))
	}

	for _, d := range req.Dates {
		if _, err := parseDate(d); err != nil {
			return nil, err
		}
	}

	years := req.Years
	if len(years) == 0 {
		for y := defaultStartYear; y <= now.Year(); y++ {
			years = append(years, y)
		}
	}
	months := req.Months
	if len(months) == 0 {
		for m := time.January; m <= time.December; m++ {
			months = append(months, m)
		}
	}

	if cache == nil {
		cache = symboldates.Empty()
	}

	return &planner{
		market:    market,
		spec:      spec,
		cache:     cache,
		root:      root,
		syms:      req.Symbols,
		intervals: intervals,
		years:     years,
		months:    months,
		dates:     req.Dates,
		start:     start,
		end:       end,
	}, nil
}

// symbols returns the requested symbols in request order.
func (p *planner) symbols() []string {
	return p.syms
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, verrors.Newf(verrors.KindConfiguration, "plan", "invalid date %q (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// monthlyTasks expands one symbol's monthly task list, pruned by the
// requested window and by the symbol's cached start date. An absent cache
// entry prunes nothing.
func (p *planner) monthlyTasks(symbol string) []Task {
	var tasks []Task
	for _, interval := range p.intervals {
		cachedStart, hasStart := p.cache.StartDate(p.market, p.spec.DataType, symbol, interval)
		for _, year := range p.years {
			for _, month := range p.months {
				firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
				if firstOfMonth.Before(p.start) || firstOfMonth.After(p.end) {
					continue
				}
				if hasStart && firstOfMonth.Format(dateLayout) < cachedStart {
					continue
				}
				tasks = append(tasks, p.buildTask(vision.PeriodMonthly, symbol, interval,
					fmt.Sprintf("%04d-%02d", year, month),
					vision.MonthlyFilename(p.spec, symbol, interval, year, month)))
			}
		}
	}
	return tasks
}

// dailyTasks expands one symbol's daily task list over the explicit date
// list or the whole window, with the same pruning rules as monthlyTasks.
func (p *planner) dailyTasks(symbol string) []Task {
	dates := p.dates
	if len(dates) == 0 {
		dates = dateRange(p.start, p.end)
	}

	var tasks []Task
	for _, interval := range p.intervals {
		cachedStart, hasStart := p.cache.StartDate(p.market, p.spec.DataType, symbol, interval)
		for _, date := range dates {
			d, err := parseDate(date)
			if err != nil {
				continue // validated in newPlanner; unreachable
			}
			if d.Before(p.start) || d.After(p.end) {
				continue
			}
			if hasStart && date < cachedStart {
				continue
			}
			tasks = append(tasks, p.buildTask(vision.PeriodDaily, symbol, interval, date,
				vision.DailyFilename(p.spec, symbol, interval, date)))
		}
	}
	return tasks
}

func (p *planner) buildTask(period vision.Period, symbol, interval, label, filename string) Task {
	return Task{
		Symbol:    symbol,
		Interval:  interval,
		Period:    period,
		DateLabel: label,
		RemoteDir: vision.DataPath(p.market, p.spec, period, symbol, interval),
		Filename:  filename,
		SavePath:  vision.SavePath(p.root, p.market, p.spec, period, symbol, interval, filename),
	}
}

func dateRange(start, end time.Time) []string {
	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates
}
