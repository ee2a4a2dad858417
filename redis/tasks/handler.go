// Package tasks processes queued scrape tasks.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/scrapeapp"
)

type Scraper interface {
	Scrape(ctx context.Context, req scrapeapp.Request) (*scrapeapp.Result, error)
}

type Handler struct {
	scraper     Scraper
	taskTimeout time.Duration
	log         *zap.Logger
}

type HandlerOption func(*Handler)

func WithTaskTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.taskTimeout = timeout
	}
}

func NewHandler(scraper Scraper, log *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		scraper:     scraper,
		taskTimeout: 5 * time.Minute,
		log:         log,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ProcessTask implements asynq.Handler.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, h.taskTimeout)
	defer cancel()

	switch task.Type() {
	case TypeScrapeTrip:
		return h.processScrape(ctx, task)
	case TypeHealthCheck:
		return nil
	default:
		return fmt.Errorf("unknown task type %q: %w", task.Type(), asynq.SkipRetry)
	}
}

func (h *Handler) processScrape(ctx context.Context, task *asynq.Task) error {
	var payload ScrapePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal scrape payload: %v: %w", err, asynq.SkipRetry)
	}

	res, err := h.scraper.Scrape(ctx, scrapeapp.Request{URL: payload.URL, Force: payload.Force})

	switch {
	case errors.Is(err, scrapeapp.ErrInvalidURL):
		return fmt.Errorf("%s: %w", payload.URL, asynq.SkipRetry)
	case errors.Is(err, scrapeapp.ErrScrapeInProgress):
		h.log.Info("scrape already running, dropping task", zap.String("url", payload.URL))

		return nil
	case err != nil:
		return fmt.Errorf("failed to scrape %s: %w", payload.URL, err)
	}

	h.log.Info("scrape task done",
		zap.String("url", payload.URL),
		zap.String("trip_id", res.TripID),
		zap.Bool("existing", res.Existing),
	)

	if w := task.ResultWriter(); w != nil {
		data, err := json.Marshal(res)
		if err == nil {
			_, _ = w.Write(data)
		}
	}

	return nil
}
