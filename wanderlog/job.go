package wanderlog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gosom/scrapemate"
	"github.com/playwright-community/playwright-go"

	"github.com/Vector/vector-trip-scraper/exiter"
)

const extractionMetaKey = "extraction"

// TripJob scrapes one trip page inside a scrapemate crawl. Its result is an
// *Extraction.
type TripJob struct {
	scrapemate.Job

	Force bool

	extractor   *Extractor
	exitMonitor exiter.Exiter
}

type TripJobOption func(*TripJob)

func WithForce(force bool) TripJobOption {
	return func(j *TripJob) {
		j.Force = force
	}
}

// WithExitMonitor reports trips that fail before producing a result.
func WithExitMonitor(ex exiter.Exiter) TripJobOption {
	return func(j *TripJob) {
		j.exitMonitor = ex
	}
}

func NewTripJob(u string, extractor *Extractor, opts ...TripJobOption) *TripJob {
	job := TripJob{
		Job: scrapemate.Job{
			ID:     uuid.New().String(),
			Method: "GET",
			URL:    u,
			// navigation already falls back across strategies
			MaxRetries: 0,
			Priority:   scrapemate.PriorityMedium,
		},
		extractor: extractor,
	}

	for _, opt := range opts {
		opt(&job)
	}

	return &job
}

func (j *TripJob) UseInResults() bool {
	return true
}

func (j *TripJob) BrowserActions(ctx context.Context, page playwright.Page) scrapemate.Response {
	var resp scrapemate.Response

	ex, err := j.extractor.Run(ctx, page, j.GetURL())
	if err != nil {
		if j.exitMonitor != nil {
			j.exitMonitor.IncrTripsFailed(1)
		}

		resp.Error = err

		return resp
	}

	resp.URL = page.URL()
	resp.StatusCode = 200
	resp.Meta = map[string]any{extractionMetaKey: ex}

	return resp
}

func (j *TripJob) Process(_ context.Context, resp *scrapemate.Response) (any, []scrapemate.IJob, error) {
	defer func() {
		resp.Document = nil
		resp.Body = nil
		resp.Meta = nil
	}()

	ex, ok := resp.Meta[extractionMetaKey].(*Extraction)
	if !ok {
		if j.exitMonitor != nil {
			j.exitMonitor.IncrTripsFailed(1)
		}

		return nil, nil, fmt.Errorf("could not convert to extraction")
	}

	return &JobResult{Extraction: ex, Force: j.Force}, nil, nil
}

// JobResult is what a TripJob hands to result writers.
type JobResult struct {
	Extraction *Extraction
	Force      bool
}
