// Binance Vision Archive Downloader CLI
// This application downloads bulk historical market data archives from the
// public Binance Vision repository into a local mirror tree.
//
// Usage:
//
//	binance-vision download --market spot --type klines --symbols BTCUSDT --intervals 1h --start 2023-01-01 --end 2023-03-31
//	binance-vision symbols --market um
//	binance-vision history --limit 20
//
// For detailed help on any command, use: binance-vision <command> --help
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/quantfeed/go-binance-vision/internal/config"
	"github.com/quantfeed/go-binance-vision/internal/datatypes"
	"github.com/quantfeed/go-binance-vision/internal/downloader"
	"github.com/quantfeed/go-binance-vision/internal/fetcher"
	"github.com/quantfeed/go-binance-vision/internal/history"
	"github.com/quantfeed/go-binance-vision/internal/logger"
	"github.com/quantfeed/go-binance-vision/internal/symboldates"
	"github.com/quantfeed/go-binance-vision/internal/vision"
)

const (
	Version    = "1.0.0"
	AppName    = "binance-vision"
	ConfigFile = "binance-vision.json"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0
	ExitUsageError  = 1
	ExitConfigError = 2
	ExitDataError   = 4
	ExitInterrupt   = 130
)

// CLI holds the wired application components.
type CLI struct {
	config  *config.AppConfig
	logMgr  *logger.Manager
	logger  *slog.Logger
	fetcher *fetcher.Fetcher
	dates   *symboldates.Cache
	history *history.Store
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "--version", "-v", "version":
		fmt.Printf("%s version %s\n", AppName, Version)
		return
	case "--help", "-h", "help":
		if len(args) > 0 {
			printCommandHelp(args[0])
		} else {
			printUsage()
		}
		return
	}

	cli := &CLI{}
	if err := cli.initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer cli.shutdown()

	var err error
	switch command {
	case "download":
		err = cli.handleDownload(ctx, args)
	case "symbols":
		err = cli.handleSymbols(ctx, args)
	case "history":
		err = cli.handleHistory(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(ExitUsageError)
	}

	if err != nil {
		if ctx.Err() != nil {
			cli.logger.Warn("interrupted", "command", command)
			os.Exit(ExitInterrupt)
		}
		cli.logger.Error("command failed", "command", command, "error", err)
		os.Exit(ExitDataError)
	}
}

// initialize loads configuration and wires the shared components.
func (cli *CLI) initialize(ctx context.Context) error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		if _, err := os.Stat(ConfigFile); err == nil {
			configPath = ConfigFile
		}
	}

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.NewManager(configPath, bootLogger).LoadConfig(ctx)
	if err != nil {
		return err
	}
	cli.config = cfg

	logMgr, err := logger.NewManager(cfg.Logging)
	if err != nil {
		return err
	}
	cli.logMgr = logMgr
	cli.logger = logMgr.GetLogger()

	cli.fetcher = fetcher.New(fetcher.Config{
		BaseURL:        cfg.HTTP.BaseURL,
		Timeout:        config.Duration(cfg.HTTP.Timeout, 30*time.Second),
		RequestsPerSec: cfg.HTTP.RequestsPerSec,
		Retry: fetcher.RetryPolicy{
			MaxRetries:         cfg.HTTP.MaxRetries,
			InitialDelay:       config.Duration(cfg.HTTP.InitialDelay, time.Second),
			ExponentialBackoff: true,
		},
		DownloadChecksum: cfg.Download.DownloadChecksum,
		VerifyChecksum:   cfg.Download.VerifyChecksum,
	}, logMgr.ComponentLogger("fetcher"))

	if cfg.SymbolDates.Enabled {
		cli.dates = symboldates.Load(cfg.SymbolDates.CachePath, logMgr.ComponentLogger("symboldates"))
	} else {
		cli.dates = symboldates.Empty()
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.DatabasePath, logMgr.ComponentLogger("history"))
		if err != nil {
			return err
		}
		if err := store.Initialize(ctx); err != nil {
			store.Close()
			return err
		}
		cli.history = store
	}

	return nil
}

func (cli *CLI) shutdown() {
	if cli.history != nil {
		if err := cli.history.Close(); err != nil {
			cli.logger.Warn("failed to close history store", "error", err)
		}
	}
	if cli.logMgr != nil {
		cli.logMgr.Close()
	}
}

// DownloadFlags holds parsed flags for the download command.
type DownloadFlags struct {
	Market     string
	Type       string
	Symbols    []string
	AllSymbols bool
	Intervals  []string
	Years      []int
	Months     []time.Month
	Dates      []string
	Start      string
	End        string
	Period     string // monthly, daily or both
	Workers    int
	DataRoot   string
	Checksum   bool
	Verify     bool
	Help       bool
}

func (cli *CLI) handleDownload(ctx context.Context, args []string) error {
	flags, err := parseDownloadFlags(args)
	if err != nil {
		return err
	}
	if flags.Help {
		printCommandHelp("download")
		return nil
	}

	market, err := datatypes.ParseMarket(flags.Market)
	if err != nil {
		return err
	}
	dataType, err := datatypes.ParseDataType(flags.Type)
	if err != nil {
		return err
	}

	symbols := flags.Symbols
	if flags.AllSymbols {
		provider := vision.NewSymbolProvider(cli.logMgr.ComponentLogger("symbols"))
		symbols, err = provider.FetchSymbols(ctx, market)
		if err != nil {
			return err
		}
	}

	cfg := downloader.Config{
		MaxWorkers:       cli.config.Download.MaxWorkers,
		FailureThreshold: cli.config.Download.FailureThreshold,
		DataRoot:         cli.config.Download.DataRoot,
		UseSymbolDates:   cli.config.SymbolDates.Enabled,
		RunTimeout:       config.Duration(cli.config.Download.RunTimeout, 0),
	}
	if flags.Workers > 0 {
		cfg.MaxWorkers = flags.Workers
	}
	if flags.DataRoot != "" {
		cfg.DataRoot = flags.DataRoot
	}

	f := cli.fetcher
	if flags.Checksum || flags.Verify {
		f = fetcher.New(fetcher.Config{
			BaseURL:        cli.config.HTTP.BaseURL,
			Timeout:        config.Duration(cli.config.HTTP.Timeout, 30*time.Second),
			RequestsPerSec: cli.config.HTTP.RequestsPerSec,
			Retry: fetcher.RetryPolicy{
				MaxRetries:         cli.config.HTTP.MaxRetries,
				InitialDelay:       config.Duration(cli.config.HTTP.InitialDelay, time.Second),
				ExponentialBackoff: true,
			},
			DownloadChecksum: true,
			VerifyChecksum:   flags.Verify,
		}, cli.logMgr.ComponentLogger("fetcher"))
	}

	dl, err := downloader.New(market, dataType, cfg, f, cli.dates, cli.logMgr.ComponentLogger("downloader"))
	if err != nil {
		return err
	}

	req := downloader.Request{
		Symbols:   symbols,
		Intervals: flags.Intervals,
		Years:     flags.Years,
		Months:    flags.Months,
		Dates:     flags.Dates,
		StartDate: flags.Start,
		EndDate:   flags.End,
	}

	started := time.Now()
	var summary *downloader.Summary
	switch flags.Period {
	case "monthly":
		summary, err = dl.DownloadMonthly(ctx, req)
	case "daily":
		summary, err = dl.DownloadDaily(ctx, req)
	default:
		summary, err = dl.Download(ctx, req)
	}
	if err != nil {
		return err
	}

	if cli.history != nil {
		rec := history.RunRecord{
			ID:         summary.RunID,
			Market:     string(market),
			DataType:   string(dataType),
			StartedAt:  started,
			FinishedAt: time.Now(),
			Total:      summary.Total,
			Downloaded: summary.Downloaded,
			Failed:     summary.Failed,
			Skipped:    summary.Skipped,
			Bytes:      summary.Bytes,
			Aborted:    summary.Aborted,
		}
		if err := cli.history.RecordRun(ctx, rec); err != nil {
			cli.logger.Warn("failed to record run history", "error", err)
		}
	}

	fmt.Printf("Run %s: %d total, %d downloaded, %d skipped, %d failed (%.1f%% success)\n",
		summary.RunID, summary.Total, summary.Downloaded, summary.Skipped, summary.Failed, summary.SuccessRate())
	if summary.Aborted {
		fmt.Println("Run was aborted early due to sustained failures; try a narrower date range.")
	}
	return nil
}

func (cli *CLI) handleSymbols(ctx context.Context, args []string) error {
	marketName := "spot"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--market", "-m":
			if i+1 >= len(args) {
				return fmt.Errorf("--market requires a value")
			}
			marketName = args[i+1]
			i++
		case "--help", "-h":
			printCommandHelp("symbols")
			return nil
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	market, err := datatypes.ParseMarket(marketName)
	if err != nil {
		return err
	}

	provider := vision.NewSymbolProvider(cli.logMgr.ComponentLogger("symbols"))
	symbols, err := provider.FetchSymbols(ctx, market)
	if err != nil {
		return err
	}

	for _, s := range symbols {
		fmt.Println(s)
	}
	fmt.Fprintf(os.Stderr, "%d symbols\n", len(symbols))
	return nil
}

func (cli *CLI) handleHistory(ctx context.Context, args []string) error {
	limit := 10
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--limit", "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--limit requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid limit value: %w", err)
			}
			limit = n
			i++
		case "--help", "-h":
			printCommandHelp("history")
			return nil
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if cli.history == nil {
		return fmt.Errorf("run history is disabled; enable it in the configuration first")
	}

	runs, err := cli.history.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	fmt.Printf("%-36s  %-7s  %-20s  %8s  %10s  %7s  %6s  %s\n",
		"RUN", "MARKET", "TYPE", "TOTAL", "DOWNLOADED", "SKIPPED", "FAILED", "STARTED")
	for _, r := range runs {
		fmt.Printf("%-36s  %-7s  %-20s  %8d  %10d  %7d  %6d  %s\n",
			r.ID, r.Market, r.DataType, r.Total, r.Downloaded, r.Skipped, r.Failed,
			r.StartedAt.Format(time.RFC3339))
	}
	return nil
}

func parseDownloadFlags(args []string) (*DownloadFlags, error) {
	flags := &DownloadFlags{
		Market: "spot",
		Type:   "klines",
		Period: "both",
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--market", "-m":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--market requires a value")
			}
			flags.Market = args[i+1]
			i++
		case "--type", "-t":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--type requires a value")
			}
			flags.Type = args[i+1]
			i++
		case "--symbols", "-s":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--symbols requires a value")
			}
			flags.Symbols = splitList(args[i+1])
			i++
		case "--all-symbols":
			flags.AllSymbols = true
		case "--intervals", "-i":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--intervals requires a value")
			}
			flags.Intervals = splitList(args[i+1])
			i++
		case "--years":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--years requires a value")
			}
			for _, y := range splitList(args[i+1]) {
				n, err := strconv.Atoi(y)
				if err != nil {
					return nil, fmt.Errorf("invalid year %q: %w", y, err)
				}
				flags.Years = append(flags.Years, n)
			}
			i++
		case "--months":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--months requires a value")
			}
			for _, m := range splitList(args[i+1]) {
				n, err := strconv.Atoi(m)
				if err != nil || n < 1 || n > 12 {
					return nil, fmt.Errorf("invalid month %q (expected 1-12)", m)
				}
				flags.Months = append(flags.Months, time.Month(n))
			}
			i++
		case "--dates":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--dates requires a value")
			}
			flags.Dates = splitList(args[i+1])
			i++
		case "--start":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--start requires a value")
			}
			flags.Start = args[i+1]
			i++
		case "--end":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--end requires a value")
			}
			flags.End = args[i+1]
			i++
		case "--period":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--period requires a value")
			}
			period := args[i+1]
			if period != "monthly" && period != "daily" && period != "both" {
				return nil, fmt.Errorf("invalid period %q (expected monthly, daily or both)", period)
			}
			flags.Period = period
			i++
		case "--workers", "-w":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--workers requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return nil, fmt.Errorf("invalid workers value: %w", err)
			}
			flags.Workers = n
			i++
		case "--data-root":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--data-root requires a value")
			}
			flags.DataRoot = args[i+1]
			i++
		case "--checksum":
			flags.Checksum = true
		case "--verify-checksum":
			flags.Checksum = true
			flags.Verify = true
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if !flags.Help && len(flags.Symbols) == 0 && !flags.AllSymbols {
		return nil, fmt.Errorf("either --symbols or --all-symbols is required")
	}
	return flags, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printUsage() {
	fmt.Printf(`%s - Binance Vision Archive Downloader v%s

USAGE:
    %s <command> [options]

COMMANDS:
    download    Download historical archives for a market and data type
    symbols     List tradable symbols for a market
    history     Show recent download runs

GLOBAL OPTIONS:
    --help, -h     Show help information
    --version, -v  Show version information

EXAMPLES:
    # Hourly spot klines for BTCUSDT over Q1 2023
    %s download --market spot --type klines --symbols BTCUSDT --intervals 1h --start 2023-01-01 --end 2023-03-31

    # All USD-M futures funding rates for two symbols
    %s download --market um --type fundingRate --symbols BTCUSDT,ETHUSDT

    # Every spot symbol, daily trades archives for one day
    %s download --market spot --type trades --all-symbols --dates 2024-06-01 --period daily

CONFIGURATION:
    Configuration can be provided via:
    - Config file: %s (JSON format), or CONFIG_PATH
    - Environment variables (e.g. DATA_ROOT, MAX_WORKERS, LOG_LEVEL)

For detailed help on any command, use: %s <command> --help
`, AppName, Version, AppName, AppName, AppName, AppName, ConfigFile, AppName)
}

func printCommandHelp(command string) {
	switch command {
	case "download":
		fmt.Printf(`%s download - Download historical archives

USAGE:
    %s download [options]

OPTIONS:
    --market, -m     Market: spot, um, cm, option (default: spot)
    --type, -t       Data type, e.g. klines, trades, aggTrades, fundingRate (default: klines)
    --symbols, -s    Comma-separated symbols, e.g. BTCUSDT,ETHUSDT
    --all-symbols    Download every symbol the exchange currently lists
    --intervals, -i  Comma-separated intervals for interval data types, e.g. 1h,4h,1d
    --years          Comma-separated years for monthly archives, e.g. 2023,2024
    --months         Comma-separated months (1-12) for monthly archives
    --dates          Comma-separated dates (YYYY-MM-DD) for daily archives
    --start          Inclusive start date, YYYY-MM-DD (default: 2017-01-01)
    --end            Inclusive end date, YYYY-MM-DD (default: today)
    --period         Which archives to fetch: monthly, daily or both (default: both)
    --workers, -w    Download parallelism within one symbol
    --data-root      Local folder to mirror into (default: ./data)
    --checksum       Also download .CHECKSUM artifacts
    --verify-checksum  Download and verify checksums (mismatches are logged, files kept)
    --help, -h       Show this help
`, AppName, AppName)
	case "symbols":
		fmt.Printf(`%s symbols - List tradable symbols

USAGE:
    %s symbols [--market <spot|um|cm|option>]
`, AppName, AppName)
	case "history":
		fmt.Printf(`%s history - Show recent download runs

USAGE:
    %s history [--limit <n>]

Run history must be enabled in the configuration.
`, AppName, AppName)
	default:
		printUsage()
	}
}
