package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/redis/config"
)

// Server runs asynq workers.
type Server struct {
	server *asynq.Server
	mu     sync.Mutex
	log    *zap.Logger
}

func NewServer(cfg *config.RedisConfig, log *zap.Logger) *Server {
	srv := asynq.NewServer(clientOpt(cfg), asynq.Config{
		Concurrency:     cfg.Workers,
		Queues:          cfg.QueuePriorities,
		StrictPriority:  true,
		ShutdownTimeout: cfg.TaskTimeout,
		RetryDelayFunc:  RetryDelay(cfg.RetryInterval),
		Logger:          log.Sugar(),
		LogLevel:        asynq.WarnLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error("task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})

	return &Server{server: srv, log: log}
}

// RetryDelay backs off exponentially from one second up to maxDelay.
func RetryDelay(maxDelay time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		if n > 30 {
			return maxDelay
		}

		return min(time.Duration(1<<uint(n))*time.Second, maxDelay)
	}
}

// Start serves handler until Shutdown is called.
func (s *Server) Start(handler asynq.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.server.Start(handler); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.server.Shutdown()
}
