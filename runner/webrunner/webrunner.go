// Package webrunner serves the trip scrape HTTP API.
package webrunner

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/redis"
	"github.com/Vector/vector-trip-scraper/redis/config"
	"github.com/Vector/vector-trip-scraper/runner"
	"github.com/Vector/vector-trip-scraper/scrapeapp"
	"github.com/Vector/vector-trip-scraper/tlmt"
	"github.com/Vector/vector-trip-scraper/web"
	"github.com/Vector/vector-trip-scraper/web/handlers"
)

type webrunner struct {
	cfg   *runner.Config
	deps  *runner.Deps
	queue *redis.Client
	srv   web.Config
	log   *zap.Logger
}

// New wires the API. When redis is configured the async endpoint is enabled
// and scrapes of one URL are serialized across instances.
func New(ctx context.Context, cfg *runner.Config, log *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeWeb {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	deps, err := runner.NewDeps(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	ans := &webrunner{cfg: cfg, deps: deps, log: log}

	var opts []scrapeapp.Option

	if redisConfigured() {
		redisCfg, err := config.NewRedisConfig()
		if err != nil {
			deps.Close()

			return nil, err
		}

		ans.queue, err = redis.NewClient(ctx, redisCfg)
		if err != nil {
			deps.Close()

			return nil, err
		}

		opts = append(opts, scrapeapp.WithLocker(ans.queue.Locker()))
	}

	hdeps := handlers.Dependencies{
		Logger:   log,
		Scraper:  deps.Service(opts...),
		Trips:    deps.Store,
		Validate: validator.New(),
	}

	// a nil *redis.Client must not become a non-nil interface
	if ans.queue != nil {
		hdeps.Queue = ans.queue
	}

	ans.srv = web.Config{
		Addr:             cfg.Addr,
		Deps:             hdeps,
		ScrapesPerMinute: cfg.ScrapesPerMinute,
	}

	return ans, nil
}

func (w *webrunner) Run(ctx context.Context) error {
	_ = runner.Telemetry().Send(ctx, tlmt.NewEvent(tlmt.EventRunnerStart, map[string]any{"mode": runner.ModeName(w.cfg.RunMode), "queue": w.queue != nil}))

	return web.Start(ctx, w.srv)
}

func (w *webrunner) Close(context.Context) error {
	if w.queue != nil {
		if err := w.queue.Close(); err != nil {
			w.log.Warn("could not close redis client", zap.Error(err))
		}
	}

	return w.deps.Close()
}

func redisConfigured() bool {
	return os.Getenv("REDIS_URL") != "" || os.Getenv("REDIS_HOST") != ""
}
