// Command ftarb scans 42.space markets for probability discrepancies against
// curated Polymarket comparables. It loads configuration, applies command-line
// overrides, validates the result and runs the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/ftarb/internal/app"
	"github.com/alanyoungcy/ftarb/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "run mode: snapshot, scan, full, watch or server (overrides config)")
	limit := flag.Int("limit", 0, "maximum number of markets to fetch (overrides config)")
	offset := flag.Int("offset", -1, "market list offset to start from (overrides config)")
	input := flag.String("input", "", "scan: snapshot file to scan instead of the latest one; snapshot/full: saved market list to detail instead of paginating the API")
	output := flag.String("output", "", "also write the run's markets or scan result to this file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	if *mode != "" {
		cfg.Mode = *mode
	}
	if *limit > 0 {
		cfg.FortyTwo.Limit = *limit
	}
	if *offset >= 0 {
		cfg.FortyTwo.Offset = *offset
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("ftarb starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, app.Options{Input: *input, Output: *output}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = application.Run(ctx)
	stop()
	application.Close()

	if err != nil {
		// An interrupted one-shot run produced nothing and is a failure.
		if errors.Is(err, context.Canceled) && (cfg.Mode == "watch" || cfg.Mode == "server") {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("ftarb stopped")
}
