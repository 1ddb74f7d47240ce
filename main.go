package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"authflow/internal/configuration"
	"authflow/internal/core"

	"go.uber.org/zap"
)

func main() {
	zap.ReplaceGlobals(zap.Must(zap.NewProduction()))

	config := configuration.Read()
	logger := core.NewLogger(config.App.LogLevel)
	defer func() { _ = logger.Sync() }()

	profile := configuration.GetProfile(config.App.Profile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := core.InitTelemetry(ctx, config.Telemetry)
	if err != nil {
		zap.L().Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			zap.L().Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	app, err := core.NewApp(config, profile, logger)
	if err != nil {
		zap.L().Fatal("Failed to initialize the app", zap.Error(err))
	}

	if err = app.Run(ctx, os.Stdin, os.Stdout); err != nil {
		zap.L().Error("App stopped with an error", zap.Error(err))
	}
}
