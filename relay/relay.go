// Package relay copies trip images into storage the application controls so
// persisted trips do not depend on third party image hosts.
package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxImages      = 40
	DefaultWorkers        = 5
	DefaultRequestTimeout = 30 * time.Second
)

// Uploader stores the image found at sourceURL and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, sourceURL string) (string, error)
}

// Result maps source URLs to relayed URLs. Images that failed are absent.
type Result struct {
	URLMap    map[string]string
	Attempted int
	Failed    int
	Skipped   int
}

type Relay struct {
	uploader  Uploader
	maxImages int
	workers   int
	timeout   time.Duration
	log       *zap.Logger
}

type Option func(*Relay)

func WithMaxImages(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxImages = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func New(uploader Uploader, log *zap.Logger, opts ...Option) *Relay {
	r := &Relay{
		uploader:  uploader,
		maxImages: DefaultMaxImages,
		workers:   DefaultWorkers,
		timeout:   DefaultRequestTimeout,
		log:       log,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RelayAll uploads up to maxImages of urls with a bounded pool of workers.
// A failed image is logged and dropped; the batch always completes.
func (r *Relay) RelayAll(ctx context.Context, urls []string) Result {
	ans := Result{URLMap: make(map[string]string)}

	var todo []string

	seen := make(map[string]struct{}, len(urls))

	for _, u := range urls {
		if !Relayable(u) {
			ans.Skipped++

			continue
		}

		if _, ok := seen[u]; ok {
			continue
		}

		seen[u] = struct{}{}

		if len(todo) >= r.maxImages {
			ans.Skipped++

			continue
		}

		todo = append(todo, u)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)

	g.SetLimit(r.workers)

	for _, u := range todo {
		u := u

		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				ans.Failed++
				mu.Unlock()

				return nil
			}

			reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			public, err := r.uploader.Upload(reqCtx, u)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				ans.Failed++

				r.log.Warn("image relay failed", zap.String("url", u), zap.Error(err))

				return nil
			}

			ans.URLMap[u] = public

			return nil
		})
	}

	_ = g.Wait()

	ans.Attempted = len(todo)

	r.log.Info("images relayed",
		zap.Int("attempted", ans.Attempted),
		zap.Int("relayed", len(ans.URLMap)),
		zap.Int("failed", ans.Failed),
		zap.Int("skipped", ans.Skipped),
	)

	return ans
}

// Relayable reports whether u points at a fetchable image. Inline data URIs
// are kept out of storage.
func Relayable(u string) bool {
	return strings.TrimSpace(u) != "" && !strings.HasPrefix(u, "data:")
}
