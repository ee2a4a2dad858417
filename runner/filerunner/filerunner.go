package filerunner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gosom/scrapemate"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/deduper"
	"github.com/Vector/vector-trip-scraper/exiter"
	"github.com/Vector/vector-trip-scraper/fetchers"
	"github.com/Vector/vector-trip-scraper/postgres"
	"github.com/Vector/vector-trip-scraper/runner"
	"github.com/Vector/vector-trip-scraper/scrapeapp"
	"github.com/Vector/vector-trip-scraper/tlmt"
)

type fileRunner struct {
	cfg   *runner.Config
	deps  *runner.Deps
	input io.Reader
	log   *zap.Logger
}

func New(ctx context.Context, cfg *runner.Config, log *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeFile {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	ans := &fileRunner{
		cfg: cfg,
		log: log,
	}

	if err := ans.setInput(); err != nil {
		return nil, err
	}

	deps, err := runner.NewDeps(ctx, cfg, log)
	if err != nil {
		ans.closeInput()

		return nil, err
	}

	ans.deps = deps

	return ans, nil
}

func (r *fileRunner) Run(ctx context.Context) (err error) {
	var seedJobs []scrapemate.IJob

	t0 := time.Now().UTC()

	defer func() {
		params := map[string]any{
			"mode":      runner.ModeName(r.cfg.RunMode),
			"job_count": len(seedJobs),
			"duration":  time.Now().UTC().Sub(t0).String(),
		}

		if err != nil {
			params["error"] = err.Error()
		}

		_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("file_runner_finished", params))
	}()

	exitMonitor := exiter.New(r.log)

	seedJobs, err = runner.CreateSeedJobs(r.input, r.deps.Extractor, r.cfg.Force, deduper.New(), exitMonitor)
	if err != nil {
		return err
	}

	if len(seedJobs) == 0 {
		r.log.Warn("no trip URLs in input")

		return nil
	}

	r.log.Info("seeded trips", zap.Int("count", len(seedJobs)))

	exitMonitor.SetSeedCount(len(seedJobs))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exitMonitor.SetCancelFunc(cancel)

	go exitMonitor.Run(ctx)

	crawler, err := scrapeapp.NewCrawler(scrapeapp.CrawlConfig{
		Fetcher: fetchers.NewFetcher(r.deps.Sessions, r.cfg.Concurrency),
		Writers: []scrapemate.ResultWriter{
			postgres.NewResultWriter(r.deps.Store, r.deps.Pipeline, r.log, postgres.WithExitMonitor(exitMonitor)),
		},
		Concurrency:      r.cfg.Concurrency,
		ExitOnInactivity: r.cfg.ExitOnInactivityDuration,
	})
	if err != nil {
		return err
	}

	return crawler.Start(ctx, seedJobs...)
}

func (r *fileRunner) Close(context.Context) error {
	r.closeInput()

	if r.deps != nil {
		return r.deps.Close()
	}

	return nil
}

func (r *fileRunner) setInput() error {
	switch r.cfg.InputFile {
	case "stdin":
		r.input = os.Stdin
	default:
		f, err := os.Open(r.cfg.InputFile)
		if err != nil {
			return err
		}

		r.input = f
	}

	return nil
}

func (r *fileRunner) closeInput() {
	if f, ok := r.input.(*os.File); ok && f != os.Stdin {
		_ = f.Close()
	}
}
