package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/scrapeapp"
)

type fakeScraper struct {
	got   []scrapeapp.Request
	err   error
	block bool
}

func (f *fakeScraper) Scrape(ctx context.Context, req scrapeapp.Request) (*scrapeapp.Result, error) {
	f.got = append(f.got, req)

	if f.block {
		<-ctx.Done()

		return nil, ctx.Err()
	}

	if f.err != nil {
		return nil, f.err
	}

	return &scrapeapp.Result{TripID: "trip-1"}, nil
}

func TestProcessTask(t *testing.T) {
	scrapeTask := func(t *testing.T, url string, force bool) *asynq.Task {
		task, err := NewScrapeTask(ScrapePayload{URL: url, Force: force})
		require.NoError(t, err)

		return task
	}

	tests := []struct {
		name      string
		scraper   *fakeScraper
		task      func(t *testing.T) *asynq.Task
		wantErr   bool
		skipRetry bool
	}{
		{
			name:    "[success scenario] - scrape",
			scraper: &fakeScraper{},
			task: func(t *testing.T) *asynq.Task {
				return scrapeTask(t, "https://wanderlog.com/view/a/b", true)
			},
		},
		{
			name:    "[success scenario] - health check",
			scraper: &fakeScraper{},
			task: func(*testing.T) *asynq.Task {
				return asynq.NewTask(TypeHealthCheck, nil)
			},
		},
		{
			name:    "[success scenario] - scrape in progress is dropped",
			scraper: &fakeScraper{err: scrapeapp.ErrScrapeInProgress},
			task: func(t *testing.T) *asynq.Task {
				return scrapeTask(t, "https://wanderlog.com/view/a/b", false)
			},
		},
		{
			name:    "[error scenario] - scrape failure is retried",
			scraper: &fakeScraper{err: errors.New("navigation failed")},
			task: func(t *testing.T) *asynq.Task {
				return scrapeTask(t, "https://wanderlog.com/view/a/b", false)
			},
			wantErr: true,
		},
		{
			name:    "[error scenario] - invalid url is not retried",
			scraper: &fakeScraper{err: scrapeapp.ErrInvalidURL},
			task: func(t *testing.T) *asynq.Task {
				return scrapeTask(t, "https://example.com", false)
			},
			wantErr:   true,
			skipRetry: true,
		},
		{
			name:    "[error scenario] - bad payload",
			scraper: &fakeScraper{},
			task: func(*testing.T) *asynq.Task {
				return asynq.NewTask(TypeScrapeTrip, []byte("{"))
			},
			wantErr:   true,
			skipRetry: true,
		},
		{
			name:    "[error scenario] - unknown type",
			scraper: &fakeScraper{},
			task: func(*testing.T) *asynq.Task {
				return asynq.NewTask("scrape:unknown", nil)
			},
			wantErr:   true,
			skipRetry: true,
		},
		{
			name:    "[error scenario] - timeout",
			scraper: &fakeScraper{block: true},
			task: func(t *testing.T) *asynq.Task {
				return scrapeTask(t, "https://wanderlog.com/view/a/b", false)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.scraper, zap.NewNop(), WithTaskTimeout(50*time.Millisecond))

			err := h.ProcessTask(context.Background(), tt.task(t))
			if !tt.wantErr {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestScrapePayloadRoundTrip(t *testing.T) {
	task, err := NewScrapeTask(ScrapePayload{URL: "https://wanderlog.com/view/a/b", Force: true})
	require.NoError(t, err)

	assert.Equal(t, TypeScrapeTrip, task.Type())
	assert.JSONEq(t, `{"url":"https://wanderlog.com/view/a/b","force":true}`, string(task.Payload()))
}
