// Package exiter stops a batch crawl once every seeded trip has finished.
package exiter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Exiter interface {
	SetSeedCount(int)
	SetCancelFunc(context.CancelFunc)
	// IncrTripsCompleted counts trips that reached the result writer.
	IncrTripsCompleted(int)
	// IncrTripsFailed counts trips that never produced a result.
	IncrTripsFailed(int)
	Progress() (completed, failed, total int)
	Run(context.Context)
}

type exiter struct {
	seedCount      int
	tripsCompleted int
	tripsFailed    int
	interval       time.Duration

	mu         *sync.Mutex
	cancelFunc context.CancelFunc
	log        *zap.Logger
}

func New(log *zap.Logger) Exiter {
	return &exiter{
		interval: time.Second,
		mu:       &sync.Mutex{},
		log:      log,
	}
}

func (e *exiter) SetSeedCount(val int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seedCount = val
}

func (e *exiter) SetCancelFunc(fn context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelFunc = fn
}

func (e *exiter) IncrTripsCompleted(val int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tripsCompleted += val
}

func (e *exiter) IncrTripsFailed(val int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tripsFailed += val
}

func (e *exiter) Progress() (completed, failed, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.tripsCompleted, e.tripsFailed, e.seedCount
}

func (e *exiter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	lastDone := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			completed, failed, total := e.Progress()

			if done := completed + failed; done != lastDone {
				lastDone = done

				e.log.Info("crawl progress",
					zap.Int("completed", completed),
					zap.Int("failed", failed),
					zap.Int("total", total),
				)
			}

			if e.isDone() {
				e.log.Info("all trips processed, exiting")

				e.cancel()

				return
			}
		}
	}
}

func (e *exiter) isDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.seedCount > 0 && e.tripsCompleted+e.tripsFailed >= e.seedCount
}

func (e *exiter) cancel() {
	e.mu.Lock()
	fn := e.cancelFunc
	e.mu.Unlock()

	if fn != nil {
		fn()
	}
}
