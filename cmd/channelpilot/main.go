package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ChannelPilot/internal/app"
	"ChannelPilot/internal/config"
	"ChannelPilot/internal/logging"
)

func main() {
	exportCSV := flag.String("export-csv", "", "write high-value channels as CSV to the given file and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if *exportCSV != "" {
		if err := exportHighValue(ctx, application, *exportCSV); err != nil {
			logger.Error("export failed", "error", err)
			os.Exit(1)
		}
		logger.Info("high-value channels exported", "path", *exportCSV)
		return
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("harvest cycle failed", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := application.Stop(stopCtx); err != nil {
		logger.Error("scheduler stop failed", "error", err)
	}
}

func exportHighValue(ctx context.Context, application *app.Application, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := application.ExportHighValue(ctx, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
