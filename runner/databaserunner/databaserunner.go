package databaserunner

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gosom/scrapemate"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/deduper"
	"github.com/Vector/vector-trip-scraper/fetchers"
	"github.com/Vector/vector-trip-scraper/postgres"
	"github.com/Vector/vector-trip-scraper/runner"
	"github.com/Vector/vector-trip-scraper/scrapeapp"
	"github.com/Vector/vector-trip-scraper/tlmt"
	"github.com/Vector/vector-trip-scraper/wanderlog"
)

// dbrunner either queues trip URLs in the scrape_jobs table (produce) or
// works that queue until it is cancelled or idle.
type dbrunner struct {
	cfg      *runner.Config
	deps     *runner.Deps
	provider scrapemate.JobProvider
	produce  bool
	log      *zap.Logger
}

func New(ctx context.Context, cfg *runner.Config, log *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeDatabase && cfg.RunMode != runner.RunModeDatabaseProduce {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	deps, err := runner.NewDeps(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	newJob := func(u string, force bool) scrapemate.IJob {
		return wanderlog.NewTripJob(u, deps.Extractor, wanderlog.WithForce(force))
	}

	ans := dbrunner{
		cfg:      cfg,
		deps:     deps,
		provider: postgres.NewProvider(deps.DB, newJob),
		produce:  cfg.ProduceOnly,
		log:      log,
	}

	return &ans, nil
}

func (d *dbrunner) Run(ctx context.Context) error {
	_ = runner.Telemetry().Send(ctx, tlmt.NewEvent(tlmt.EventRunnerStart, map[string]any{"mode": runner.ModeName(d.cfg.RunMode)}))

	if d.produce {
		return d.produceSeedJobs(ctx)
	}

	crawler, err := scrapeapp.NewCrawler(scrapeapp.CrawlConfig{
		Fetcher:          fetchers.NewFetcher(d.deps.Sessions, d.cfg.Concurrency),
		Writers:          []scrapemate.ResultWriter{postgres.NewResultWriter(d.deps.Store, d.deps.Pipeline, d.log)},
		Provider:         d.provider,
		Concurrency:      d.cfg.Concurrency,
		ExitOnInactivity: d.cfg.ExitOnInactivityDuration,
	})
	if err != nil {
		return err
	}

	d.log.Info("working the scrape_jobs queue", zap.Int("concurrency", d.cfg.Concurrency))

	return crawler.Start(ctx)
}

func (d *dbrunner) Close(context.Context) error {
	if d.deps != nil {
		return d.deps.Close()
	}

	return nil
}

func (d *dbrunner) produceSeedJobs(ctx context.Context) error {
	var input io.Reader

	switch d.cfg.InputFile {
	case "stdin":
		input = os.Stdin
	default:
		f, err := os.Open(d.cfg.InputFile)
		if err != nil {
			return err
		}

		defer f.Close()

		input = f
	}

	jobs, err := runner.CreateSeedJobs(input, d.deps.Extractor, d.cfg.Force, deduper.New(), nil)
	if err != nil {
		return err
	}

	for i := range jobs {
		if err := d.provider.Push(ctx, jobs[i]); err != nil {
			return err
		}
	}

	d.log.Info("queued trips", zap.Int("count", len(jobs)))

	_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("databaserunner.produceSeedJobs", map[string]any{
		"job_count": len(jobs),
	}))

	return nil
}
