// Package redis wires the asynq task queue and the per-trip scrape locks.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Vector/vector-trip-scraper/redis/config"
)

func clientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	if cfg.UseTLS {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return opt
}

func newRedisClient(cfg *config.RedisConfig) *goredis.Client {
	opt := clientOpt(cfg)

	return goredis.NewClient(&goredis.Options{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	})
}

// Client enqueues tasks and hands out scrape locks.
type Client struct {
	client *asynq.Client
	rdb    *goredis.Client
	cfg    *config.RedisConfig
	mu     sync.RWMutex
}

func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	rdb := newRedisClient(cfg)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		client: asynq.NewClient(clientOpt(cfg)),
		rdb:    rdb,
		cfg:    cfg,
	}, nil
}

// Locker returns a scrape locker sharing the client's connection.
func (c *Client) Locker() *Locker {
	return NewLocker(c.rdb)
}

// EnqueueTask queues a task and returns its id. Retention defaults to the
// configured period so finished tasks can be inspected.
func (c *Client) EnqueueTask(ctx context.Context, taskType string, payload []byte, opts ...asynq.Option) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	opts = append([]asynq.Option{
		asynq.MaxRetry(c.cfg.MaxRetries),
		asynq.Timeout(c.cfg.TaskTimeout),
		asynq.Retention(c.cfg.RetentionPeriod),
	}, opts...)

	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, payload), opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	return info.ID, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := errors.Join(c.client.Close(), c.rdb.Close()); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	return nil
}

func (c *Client) IsHealthy(ctx context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rdb.Ping(ctx).Err() == nil
}
