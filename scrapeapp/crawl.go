package scrapeapp

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gosom/scrapemate"
	parser "github.com/gosom/scrapemate/adapters/parsers/goqueryparser"
	memprovider "github.com/gosom/scrapemate/adapters/providers/memory"
	"golang.org/x/sync/errgroup"
)

// CrawlConfig drives a batch of TripJobs through scrapemate.
type CrawlConfig struct {
	Fetcher  scrapemate.HTTPFetcher
	Writers  []scrapemate.ResultWriter
	Provider scrapemate.JobProvider

	Concurrency      int
	ExitOnInactivity time.Duration
}

type Crawler struct {
	cfg      CrawlConfig
	provider scrapemate.JobProvider
}

func NewCrawler(cfg CrawlConfig) (*Crawler, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("crawler needs a fetcher")
	}

	if len(cfg.Writers) == 0 {
		return nil, errors.New("crawler needs at least one result writer")
	}

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	provider := cfg.Provider
	if provider == nil {
		provider = memprovider.New()
	}

	return &Crawler{cfg: cfg, provider: provider}, nil
}

// Start pushes seedJobs and runs the crawl until ctx is done, the provider
// runs dry for ExitOnInactivity, or a writer fails.
func (c *Crawler) Start(ctx context.Context, seedJobs ...scrapemate.IJob) error {
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancelCause(ctx)

	defer cancel(errors.New("closing crawler"))

	mate, err := c.getMate(ctx, cancel)
	if err != nil {
		return err
	}

	if closer, ok := c.cfg.Fetcher.(io.Closer); ok {
		defer closer.Close()
	}

	for i := range c.cfg.Writers {
		writer := c.cfg.Writers[i]

		g.Go(func() error {
			if err := writer.Run(ctx, mate.Results()); err != nil {
				cancel(err)

				return err
			}

			return nil
		})
	}

	g.Go(func() error {
		err := mate.Start()
		// inactivity and the exit monitor both end the crawl by cancelling
		if err != nil && ctx.Err() != nil {
			return nil
		}

		return err
	})

	g.Go(func() error {
		for i := range seedJobs {
			if err := c.provider.Push(ctx, seedJobs[i]); err != nil {
				return err
			}
		}

		return nil
	})

	return g.Wait()
}

func (c *Crawler) getMate(ctx context.Context, cancel context.CancelCauseFunc) (*scrapemate.ScrapeMate, error) {
	params := []func(*scrapemate.ScrapeMate) error{
		scrapemate.WithContext(ctx, cancel),
		scrapemate.WithJobProvider(c.provider),
		scrapemate.WithHTTPFetcher(c.cfg.Fetcher),
		scrapemate.WithHTMLParser(parser.New()),
		scrapemate.WithConcurrency(c.cfg.Concurrency),
	}

	if c.cfg.ExitOnInactivity > 0 {
		params = append(params, scrapemate.WithExitBecauseOfInactivity(c.cfg.ExitOnInactivity))
	}

	return scrapemate.New(params...)
}
