// Package config reads the Redis settings for the task queue and the scrape
// locks from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type RedisConfig struct {
	Host            string
	Port            int
	Password        string
	DB              int
	UseTLS          bool
	Workers         int
	RetryInterval   time.Duration
	MaxRetries      int
	RetentionPeriod time.Duration
	// TaskTimeout bounds one scrape task.
	TaskTimeout     time.Duration
	QueuePriorities map[string]int
}

const (
	defaultHost        = "localhost"
	defaultPort        = 6379
	defaultWorkers     = 2
	defaultMaxRetries  = 3
	defaultRetention   = 7 * 24 * time.Hour
	defaultTaskTimeout = 5 * time.Minute
	defaultRetryDelay  = 30 * time.Second
)

// Queue names.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

func defaultQueues() map[string]int {
	return map[string]int{
		QueueCritical: 6,
		QueueDefault:  3,
		QueueLow:      1,
	}
}

// NewRedisConfig reads REDIS_URL, or REDIS_HOST / REDIS_PORT / REDIS_PASSWORD
// / REDIS_DB when it is unset. Worker settings always come from their own
// variables.
func NewRedisConfig() (*RedisConfig, error) {
	cfg := &RedisConfig{
		Host:            envOr("REDIS_HOST", defaultHost),
		Password:        os.Getenv("REDIS_PASSWORD"),
		UseTLS:          envBool("REDIS_USE_TLS"),
		QueuePriorities: defaultQueues(),
	}

	var err error

	if raw := os.Getenv("REDIS_URL"); raw != "" {
		if err := cfg.applyURL(raw); err != nil {
			return nil, err
		}
	} else {
		if cfg.Port, err = intInRange("REDIS_PORT", defaultPort, 1, 65535); err != nil {
			return nil, err
		}

		if cfg.DB, err = intInRange("REDIS_DB", 0, 0, 15); err != nil {
			return nil, err
		}
	}

	if cfg.Workers, err = intInRange("REDIS_WORKERS", defaultWorkers, 1, 100); err != nil {
		return nil, err
	}

	if cfg.MaxRetries, err = intInRange("REDIS_MAX_RETRIES", defaultMaxRetries, 0, 10); err != nil {
		return nil, err
	}

	if cfg.RetryInterval, err = durationInRange("REDIS_RETRY_INTERVAL", defaultRetryDelay, time.Second, time.Hour); err != nil {
		return nil, err
	}

	if cfg.TaskTimeout, err = durationInRange("REDIS_TASK_TIMEOUT", defaultTaskTimeout, 30*time.Second, time.Hour); err != nil {
		return nil, err
	}

	days, err := intInRange("REDIS_RETENTION_DAYS", int(defaultRetention/(24*time.Hour)), 1, 365)
	if err != nil {
		return nil, err
	}

	cfg.RetentionPeriod = time.Duration(days) * 24 * time.Hour

	return cfg, nil
}

func (c *RedisConfig) applyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid Redis URL: %w", err)
	}

	switch u.Scheme {
	case "redis":
	case "rediss":
		c.UseTLS = true
	default:
		return fmt.Errorf("invalid Redis URL scheme %q", u.Scheme)
	}

	if h := u.Hostname(); h != "" {
		c.Host = h
	}

	c.Port = defaultPort

	if p := u.Port(); p != "" {
		if c.Port, err = strconv.Atoi(p); err != nil {
			return fmt.Errorf("invalid port in Redis URL: %w", err)
		}
	}

	if pw, ok := u.User.Password(); ok {
		c.Password = pw
	}

	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		if c.DB, err = strconv.Atoi(db); err != nil {
			return fmt.Errorf("invalid database number in Redis URL: %w", err)
		}
	}

	return nil
}

func (c *RedisConfig) GetRedisAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func intInRange(key string, def, lo, hi int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}

	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", key, lo, hi)
	}

	return v, nil
}

func durationInRange(key string, def, lo, hi time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}

	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	if d < lo || d > hi {
		return 0, errors.New(key + " must be between " + lo.String() + " and " + hi.String())
	}

	return d, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	}

	return false
}
