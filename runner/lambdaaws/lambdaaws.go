package lambdaaws

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
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

const invocationTimeout = 10 * time.Minute

var _ runner.Runner = (*lambdaAwsRunner)(nil)

type lambdaAwsRunner struct {
	cfg  *runner.Config
	deps *runner.Deps
	log  *zap.Logger
}

// New opens the database once per container. Warm invocations reuse it.
func New(ctx context.Context, cfg *runner.Config, log *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeAwsLambda {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	deps, err := runner.NewDeps(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	return &lambdaAwsRunner{cfg: cfg, deps: deps, log: log}, nil
}

func (l *lambdaAwsRunner) Run(context.Context) error {
	lambda.Start(l.handler)

	return nil
}

func (l *lambdaAwsRunner) Close(context.Context) error {
	return l.deps.Close()
}

//nolint:gocritic // the lambda runtime hands the input by value
func (l *lambdaAwsRunner) handler(ctx context.Context, input lInput) (lOutput, error) {
	out := lOutput{JobID: input.JobID, Part: input.Part}

	tmpDir := "/tmp"

	if err := setupBrowsersAndDriver(filepath.Join(tmpDir, "browsers"), filepath.Join(tmpDir, "ms-playwright-go")); err != nil {
		return out, err
	}

	log := l.log.With(zap.String("job_id", input.JobID), zap.Int("part", input.Part))

	exitMonitor := exiter.New(log)

	seedJobs, err := runner.CreateSeedJobs(
		strings.NewReader(strings.Join(input.URLs, "\n")),
		l.deps.Extractor,
		input.Force,
		deduper.New(),
		exitMonitor,
	)
	if err != nil {
		return out, err
	}

	out.Seeded = len(seedJobs)

	if len(seedJobs) == 0 {
		return out, nil
	}

	exitMonitor.SetSeedCount(len(seedJobs))

	bCtx, cancel := context.WithTimeout(ctx, invocationTimeout)
	defer cancel()

	exitMonitor.SetCancelFunc(cancel)

	go exitMonitor.Run(bCtx)

	concurrency := max(1, input.Concurrency)

	crawler, err := scrapeapp.NewCrawler(scrapeapp.CrawlConfig{
		Fetcher: fetchers.NewFetcher(l.deps.Sessions, concurrency),
		Writers: []scrapemate.ResultWriter{
			postgres.NewResultWriter(l.deps.Store, l.deps.Pipeline, log, postgres.WithExitMonitor(exitMonitor)),
		},
		Concurrency:      concurrency,
		ExitOnInactivity: time.Minute,
	})
	if err != nil {
		return out, err
	}

	err = crawler.Start(bCtx, seedJobs...)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return out, err
	}

	out.Completed, out.Failed, _ = exitMonitor.Progress()

	_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("lambda_chunk_finished", map[string]any{
		"seeded":    out.Seeded,
		"completed": out.Completed,
		"failed":    out.Failed,
	}))

	log.Info("lambda chunk done",
		zap.Int("seeded", out.Seeded),
		zap.Int("completed", out.Completed),
		zap.Int("failed", out.Failed),
	)

	return out, nil
}

// setupBrowsersAndDriver copies the playwright payload baked into the layer
// under /opt into the only writable location.
func setupBrowsersAndDriver(browsersDst, driverDst string) error {
	if err := copyDir("/opt/browsers", browsersDst); err != nil {
		return fmt.Errorf("failed to copy browsers: %w", err)
	}

	if err := copyDir("/opt/ms-playwright-go", driverDst); err != nil {
		return fmt.Errorf("failed to copy driver: %w", err)
	}

	return nil
}

func copyDir(src, dst string) error {
	cmd := exec.Command("cp", "-rf", src, dst)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("copy failed: %v, output: %s", err, string(output))
	}

	return nil
}
