package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"matchpool/config"
	"matchpool/indexer"
	"matchpool/observability/logging"
	telemetry "matchpool/observability/otel"
)

const serviceName = "matchpoold"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	exportPath := flag.String("export-payouts", "", "Write indexed payouts to this parquet file and exit")
	exportFrom := flag.Uint64("export-from", 0, "First notification sequence included in the export")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(os.Getenv("MATCHPOOL_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.SetupWithOptions(serviceName, env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	if *exportPath != "" {
		if err := exportPayouts(cfg, logger, *exportPath, *exportFrom); err != nil {
			logger.Error("Payout export failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		logger.Error("Failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	node, err := newNode(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialise node", slog.Any("error", err))
		os.Exit(1)
	}
	defer node.Close()

	if err := node.Run(ctx); err != nil {
		logger.Error("matchpoold terminated", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("matchpoold stopped")
}

func exportPayouts(cfg *config.Config, logger *slog.Logger, path string, from uint64) error {
	if strings.TrimSpace(cfg.Indexer.Path) == "" {
		return fmt.Errorf("indexer is not configured")
	}
	ix, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.Path, logger)
	if err != nil {
		return err
	}
	_, err = ix.ExportPayouts(path, from)
	return err
}
