package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/runner"
	"github.com/Vector/vector-trip-scraper/runner/databaserunner"
	"github.com/Vector/vector-trip-scraper/runner/filerunner"
	"github.com/Vector/vector-trip-scraper/runner/installplaywright"
	"github.com/Vector/vector-trip-scraper/runner/lambdaaws"
	"github.com/Vector/vector-trip-scraper/runner/migraterunner"
	"github.com/Vector/vector-trip-scraper/runner/redisrunner"
	"github.com/Vector/vector-trip-scraper/runner/webrunner"
)

func main() {
	_ = godotenv.Load() // Load .env file if present
	ctx, cancel := context.WithCancel(context.Background())

	cfg := runner.ParseConfig()
	runner.Banner(runner.ModeName(cfg.RunMode))

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	defer func() {
		_ = logger.Sync()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan

		logger.Info("received signal, shutting down")

		cancel()
	}()

	runnerInstance, err := runnerFactory(ctx, cfg, logger)
	if err != nil {
		cancel()
		logger.Error("could not start", zap.Error(err))

		runner.Telemetry().Close()

		os.Exit(1)
	}

	// closing must outlive the cancelled run context
	closeCtx := context.WithoutCancel(ctx)

	if err := runnerInstance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run failed", zap.Error(err))

		_ = runnerInstance.Close(closeCtx)
		runner.Telemetry().Close()

		cancel()

		os.Exit(1)
	}

	if err := runnerInstance.Close(closeCtx); err != nil {
		logger.Warn("close failed", zap.Error(err))
	}

	runner.Telemetry().Close()

	cancel()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

func runnerFactory(ctx context.Context, cfg *runner.Config, log *zap.Logger) (runner.Runner, error) {
	switch cfg.RunMode {
	case runner.RunModeFile:
		return filerunner.New(ctx, cfg, log)
	case runner.RunModeDatabase, runner.RunModeDatabaseProduce:
		return databaserunner.New(ctx, cfg, log)
	case runner.RunModeInstallPlaywright:
		return installplaywright.New(cfg)
	case runner.RunModeWeb:
		return webrunner.New(ctx, cfg, log)
	case runner.RunModeRedis:
		return redisrunner.New(ctx, cfg, log)
	case runner.RunModeMigrate:
		return migraterunner.New(cfg, log)
	case runner.RunModeAwsLambda:
		return lambdaaws.New(ctx, cfg, log)
	case runner.RunModeAwsLambdaInvoker:
		return lambdaaws.NewInvoker(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}
}
