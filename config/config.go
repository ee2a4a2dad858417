// Package config serves runtime knobs kept in the system_config table.
package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Known keys.
const (
	KeyRelayMaxImages = "relay.max_images"
	KeyRelayWorkers   = "relay.workers"
	KeyHeaderImages   = "scrape.header_images"
)

const defaultTTL = time.Minute

// Service reads values from system_config. An environment variable named
// after the key (upper case, dots as underscores) wins over the table, and
// table reads are cached for a minute. A Service without a database only
// serves env overrides and defaults.
type Service struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedEntry
}

type cachedEntry struct {
	value     string
	min, max  sql.NullString
	found     bool
	expiresAt time.Time
}

func New(db *sql.DB) *Service {
	return &Service{
		db:    db,
		ttl:   defaultTTL,
		now:   time.Now,
		cache: make(map[string]cachedEntry),
	}
}

// Knobs are the values a scrape needs.
type Knobs struct {
	MaxImages    int
	RelayWorkers int
	HeaderImages int
}

// Knobs loads all scrape knobs, falling back to def for anything unset.
func (s *Service) Knobs(ctx context.Context, def Knobs) (Knobs, error) {
	var err error

	ans := def

	if ans.MaxImages, err = s.GetInt(ctx, KeyRelayMaxImages, def.MaxImages); err != nil {
		return def, err
	}

	if ans.RelayWorkers, err = s.GetInt(ctx, KeyRelayWorkers, def.RelayWorkers); err != nil {
		return def, err
	}

	if ans.HeaderImages, err = s.GetInt(ctx, KeyHeaderImages, def.HeaderImages); err != nil {
		return def, err
	}

	return ans, nil
}

func (s *Service) GetString(ctx context.Context, key, defaultValue string) (string, error) {
	e, err := s.lookup(ctx, key)
	if err != nil {
		return "", err
	}

	if !e.found {
		return defaultValue, nil
	}

	return e.value, nil
}

func (s *Service) GetBool(ctx context.Context, key string, defaultValue bool) (bool, error) {
	e, err := s.lookup(ctx, key)
	if err != nil {
		return false, err
	}

	if !e.found {
		return defaultValue, nil
	}

	return strings.EqualFold(e.value, "true") || e.value == "1", nil
}

// GetInt returns an integer value clamped to the row's min and max. Values
// that do not parse give defaultValue.
func (s *Service) GetInt(ctx context.Context, key string, defaultValue int) (int, error) {
	e, err := s.lookup(ctx, key)
	if err != nil {
		return 0, err
	}

	if !e.found {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(e.value))
	if err != nil {
		return defaultValue, nil
	}

	if lo, err := strconv.Atoi(strings.TrimSpace(e.min.String)); e.min.Valid && err == nil && parsed < lo {
		parsed = lo
	}

	if hi, err := strconv.Atoi(strings.TrimSpace(e.max.String)); e.max.Valid && err == nil && parsed > hi {
		parsed = hi
	}

	return parsed, nil
}

func (s *Service) GetFloat(ctx context.Context, key string, defaultValue float64) (float64, error) {
	e, err := s.lookup(ctx, key)
	if err != nil {
		return 0, err
	}

	if !e.found {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(e.value), 64)
	if err != nil {
		return defaultValue, nil
	}

	return parsed, nil
}

func (s *Service) GetRequiredString(ctx context.Context, key string) (string, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil || v == "" {
		return "", fmt.Errorf("missing required config: %s", key)
	}

	return v, nil
}

// Upsert writes a value and drops it from the cache.
func (s *Service) Upsert(ctx context.Context, key, value, typ, description string) error {
	if s.db == nil {
		return errors.New("config: no database")
	}

	const q = `INSERT INTO system_config (key, value, type, description, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, NOW(), 'system')
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, type = EXCLUDED.type,
			description = EXCLUDED.description, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, q, key, value, typ, description); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	return nil
}

func (s *Service) lookup(ctx context.Context, key string) (cachedEntry, error) {
	if v, ok := envOverride(key); ok {
		return cachedEntry{value: v, found: true}, nil
	}

	if s.db == nil {
		return cachedEntry{}, nil
	}

	now := s.now()

	s.mu.RLock()
	e, ok := s.cache[key]
	s.mu.RUnlock()

	if ok && now.Before(e.expiresAt) {
		return e, nil
	}

	const q = `SELECT value, min_value, max_value FROM system_config WHERE key = $1 LIMIT 1`

	e = cachedEntry{expiresAt: now.Add(s.ttl)}

	err := s.db.QueryRowContext(ctx, q, key).Scan(&e.value, &e.min, &e.max)

	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return cachedEntry{}, fmt.Errorf("failed to read config %s: %w", key, err)
	default:
		e.found = true
	}

	s.mu.Lock()
	s.cache[key] = e
	s.mu.Unlock()

	return e, nil
}

func envOverride(key string) (string, bool) {
	envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if v := os.Getenv(envKey); v != "" {
		return v, true
	}

	return "", false
}
