package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alejandrodnm/volbot/config"
	"github.com/alejandrodnm/volbot/internal/adapters/csvfeed"
	"github.com/alejandrodnm/volbot/internal/adapters/notify"
	"github.com/alejandrodnm/volbot/internal/adapters/storage"
	"github.com/alejandrodnm/volbot/internal/adapters/synthetic"
	"github.com/alejandrodnm/volbot/internal/application/runner"
	"github.com/alejandrodnm/volbot/internal/domain"
	"github.com/alejandrodnm/volbot/internal/domain/montecarlo"
	"github.com/alejandrodnm/volbot/internal/domain/pricing"
	"github.com/alejandrodnm/volbot/internal/domain/vix"
	"github.com/alejandrodnm/volbot/internal/domain/volatility"
	"github.com/alejandrodnm/volbot/internal/ports"
)

// dataSource agrupa los tres proveedores; csvfeed y synthetic implementan los tres.
type dataSource interface {
	ports.PriceProvider
	ports.ChainProvider
	ports.RateProvider
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	mode := flag.String("mode", "vol", "vol | implied | hedge | phoenix | vix | runs")
	model := flag.String("model", "", "volatility model, comma list or 'all' (overrides config)")
	window := flag.Int("window", 0, "rolling window in return observations (overrides config)")
	method := flag.String("method", "", "vix method: varswap | whaley | both (overrides config)")
	seed := flag.Uint64("seed", 0, "random seed for phoenix and synthetic data (overrides config)")
	dryRun := flag.Bool("dry-run", false, "use synthetic data and do not persist")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print summary and tail tables (default: compact 1-line)")
	tail := flag.Int("tail", 10, "dates listed in table mode")
	show := flag.String("show", "", "print a saved run by id and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to load config", "err", err, "path", *configPath)
			os.Exit(1)
		}
		slog.Warn("config file not found, using defaults", "path", *configPath)
		cfg = config.Default()
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *model != "" {
		cfg.Estimator.Model = *model
	}
	if *window > 0 {
		cfg.Estimator.Window = *window
	}
	if *method != "" {
		cfg.VIX.Method = *method
	}
	if *seed != 0 {
		cfg.Phoenix.Seed = *seed
	}
	setupLogger(cfg.Log)

	if cfg.Phoenix.Seed == 0 {
		cfg.Phoenix.Seed = uint64(time.Now().UnixNano())
		slog.Info("random seed derived from clock", "seed", cfg.Phoenix.Seed)
	}

	slog.Info("volbot starting",
		"config", *configPath,
		"mode", *mode,
		"dry_run", *dryRun,
		"workers", cfg.Runner.Workers,
		"on_error", cfg.Runner.OnError,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store ports.Storage
	if !*dryRun {
		s, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer s.Close()
		store = s
	}

	notifier := notify.NewConsole(*table, *tail)

	if *show != "" || *mode == "runs" {
		if err := browse(ctx, store, notifier, *show); err != nil {
			slog.Error("browse failed", "err", err)
			os.Exit(1)
		}
		return
	}

	var data dataSource
	if *dryRun {
		data = synthetic.NewGenerator(cfg.Phoenix.Seed)
	} else {
		data = &csvfeed.Feed{
			OHLCPath:    cfg.Data.OHLCCSV,
			OptionsPath: cfg.Data.OptionsCSV,
			RatesPath:   cfg.Data.RatesCSV,
			SpotPath:    cfg.Data.SpotCSV,
			DefaultRate: cfg.Rates.DefaultRate,
		}
	}

	runCfg, err := runnerConfig(cfg)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	r := runner.New(runCfg, data, data, data, store, notifier)

	start := time.Now()
	run, err := execute(ctx, r, *mode, cfg)
	if err != nil {
		slog.Error("run failed", "mode", *mode, "err", err)
		os.Exit(1)
	}
	run, err = r.Publish(ctx, run)
	if err != nil {
		slog.Error("publish failed", "err", err)
		os.Exit(1)
	}

	slog.Info("volbot done",
		"id", run.ID,
		"mode", *mode,
		"skipped", run.Failures,
		"rate_fallbacks", run.Fallbacks,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
}

func execute(ctx context.Context, r *runner.Runner, mode string, cfg *config.Config) (domain.Run, error) {
	switch mode {
	case "vol":
		return r.RollingVolatility(ctx, modelNames(cfg.Estimator.Model), cfg.Estimator.Window)
	case "implied":
		return r.RollingPseudoImplied(ctx)
	case "hedge":
		return r.RollingHedgeImplied(ctx)
	case "phoenix":
		return r.PhoenixGrid(ctx)
	case "vix":
		m, err := runner.ParseVIXMethod(cfg.VIX.Method)
		if err != nil {
			return domain.Run{}, err
		}
		return r.VIXSeries(ctx, m)
	default:
		return domain.Run{}, fmt.Errorf("unknown mode %q", mode)
	}
}

// browse lista las ejecuciones guardadas o muestra una por id.
func browse(ctx context.Context, store ports.Storage, notifier *notify.Console, id string) error {
	if store == nil {
		return errors.New("storage disabled in dry-run")
	}
	if id != "" {
		run, err := store.GetRun(ctx, id)
		if err != nil {
			return err
		}
		return notifier.Notify(ctx, run)
	}
	runs, err := store.ListRuns(ctx, "", 20)
	if err != nil {
		return err
	}
	notifier.PrintRuns(runs)
	return nil
}

func runnerConfig(cfg *config.Config) (runner.Config, error) {
	policy, err := runner.ParsePolicy(cfg.Runner.OnError)
	if err != nil {
		return runner.Config{}, err
	}
	return runner.Config{
		Workers:    cfg.Runner.Workers,
		OnError:    policy,
		AnnualDays: cfg.Estimator.AnnualDays,
		Implied: runner.ImpliedConfig{
			TenorYears: cfg.Implied.TenorYears,
			AnnualDays: cfg.Implied.AnnualDays,
			Paths:      cfg.Implied.Paths,
			Newton: pricing.NewtonOptions{
				Iterations:   cfg.Implied.Iterations,
				InitialSigma: cfg.Implied.InitialSigma,
			},
			Bracket: pricing.BracketOptions{
				Lo: cfg.Implied.BracketLo,
				Hi: cfg.Implied.BracketHi,
			},
		},
		VIX: vix.Config{
			MinNearDays: cfg.VIX.MinNearDays,
			TargetDays:  cfg.VIX.TargetDays,
			YearDays:    cfg.VIX.YearDays,
		},
		Phoenix: montecarlo.GridParams{
			Template: montecarlo.PhoenixContract{
				Spot:         cfg.Phoenix.Spot,
				Upper:        cfg.Phoenix.Upper,
				Lower:        cfg.Phoenix.Lower,
				Coupon:       cfg.Phoenix.Coupon,
				DaysPerMonth: cfg.Phoenix.DaysPerMonth,
			},
			Sigmas: cfg.Phoenix.Sigmas,
			Tenors: cfg.Phoenix.Tenors,
			Rate:   cfg.Phoenix.Rate,
			Paths:  cfg.Phoenix.Paths,
			Seed:   cfg.Phoenix.Seed,
			Bump:   cfg.Phoenix.Bump,
		},
	}, nil
}

// modelNames expande "all" y separa listas por comas.
func modelNames(s string) []string {
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		names := make([]string, len(volatility.Models))
		for i, m := range volatility.Models {
			names[i] = m.String()
		}
		return names
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
