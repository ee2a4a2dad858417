// Package redisrunner works scrape tasks from the redis queue.
package redisrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/redis"
	"github.com/Vector/vector-trip-scraper/redis/config"
	"github.com/Vector/vector-trip-scraper/redis/tasks"
	"github.com/Vector/vector-trip-scraper/runner"
	"github.com/Vector/vector-trip-scraper/scrapeapp"
	"github.com/Vector/vector-trip-scraper/tlmt"
)

const healthInterval = 30 * time.Second

type RedisRunner struct {
	cfg    *config.RedisConfig
	deps   *runner.Deps
	server *redis.Server
	client *redis.Client
	mux    *asynq.ServeMux
	log    *zap.Logger
}

func New(ctx context.Context, cfg *runner.Config, log *zap.Logger) (*RedisRunner, error) {
	if cfg.RunMode != runner.RunModeRedis {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	redisCfg, err := config.NewRedisConfig()
	if err != nil {
		return nil, err
	}

	client, err := redis.NewClient(ctx, redisCfg)
	if err != nil {
		return nil, err
	}

	deps, err := runner.NewDeps(ctx, cfg, log)
	if err != nil {
		client.Close()

		return nil, err
	}

	svc := deps.Service(scrapeapp.WithLocker(client.Locker()))

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeScrapeTrip, tasks.NewHandler(svc, log, tasks.WithTaskTimeout(redisCfg.TaskTimeout)))

	return &RedisRunner{
		cfg:    redisCfg,
		deps:   deps,
		server: redis.NewServer(redisCfg, log),
		client: client,
		mux:    mux,
		log:    log,
	}, nil
}

// Run serves tasks until ctx is cancelled.
func (r *RedisRunner) Run(ctx context.Context) error {
	_ = runner.Telemetry().Send(ctx, tlmt.NewEvent(tlmt.EventRunnerStart, map[string]any{"mode": runner.ModeName(runner.RunModeRedis), "workers": r.cfg.Workers}))

	r.log.Info("starting redis worker", zap.Int("workers", r.cfg.Workers), zap.String("addr", r.cfg.GetRedisAddr()))

	if err := r.server.Start(r.mux); err != nil {
		return err
	}

	r.monitorHealth(ctx)

	return nil
}

func (r *RedisRunner) Close(context.Context) error {
	r.log.Info("shutting down redis worker")

	r.server.Shutdown()

	if err := r.client.Close(); err != nil {
		r.log.Warn("could not close redis client", zap.Error(err))
	}

	return r.deps.Close()
}

func (r *RedisRunner) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.client.IsHealthy(ctx) {
				r.log.Warn("redis connection is not healthy")
			}
		}
	}
}
