package testcontainers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/postgres"
)

const startupTimeout = 2 * time.Minute

// TestContext holds the services one integration test needs. Only the
// services requested through options are started.
type TestContext struct {
	Ctx context.Context

	DB    *sql.DB
	DSN   string
	Redis *redis.Client
	// RedisAddr is host:port of the redis container.
	RedisAddr string

	cleanup []func()
}

type options struct {
	postgres bool
	redis    bool
	migrate  bool
}

type Option func(*options)

// WithPostgres starts Postgres and applies the trip schema.
func WithPostgres() Option {
	return func(o *options) {
		o.postgres = true
		o.migrate = true
	}
}

// WithEmptyPostgres starts Postgres without running migrations.
func WithEmptyPostgres() Option {
	return func(o *options) {
		o.postgres = true
	}
}

func WithRedis() Option {
	return func(o *options) {
		o.redis = true
	}
}

// New starts the requested containers and registers their teardown with
// t.Cleanup. The test is skipped under -short.
func New(t *testing.T, opts ...Option) *TestContext {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	tc := &TestContext{Ctx: context.Background()}

	t.Cleanup(tc.close)

	if o.postgres {
		tc.startPostgres(ctx, t, o.migrate)
	}

	if o.redis {
		tc.startRedis(ctx, t)
	}

	return tc
}

func (tc *TestContext) startPostgres(ctx context.Context, t *testing.T, migrate bool) {
	t.Helper()

	container, err := NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}

	tc.onClose(func() { _ = container.Terminate(context.Background()) })

	tc.DSN = container.GetDSN()

	if migrate {
		if err := postgres.NewMigrationRunner(tc.DSN, zap.NewNop()).RunMigrations(ctx); err != nil {
			t.Fatalf("migrations: %v", err)
		}
	}

	db, err := sql.Open("pgx", tc.DSN)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	tc.onClose(func() { _ = db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping database: %v", err)
	}

	tc.DB = db
}

func (tc *TestContext) startRedis(ctx context.Context, t *testing.T) {
	t.Helper()

	container, err := NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("redis: %v", err)
	}

	tc.onClose(func() { _ = container.Terminate(context.Background()) })

	tc.RedisAddr = container.Address()
	tc.Redis = redis.NewClient(&redis.Options{Addr: tc.RedisAddr})

	tc.onClose(func() { _ = tc.Redis.Close() })

	if err := tc.Redis.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
}

func (tc *TestContext) onClose(fn func()) {
	tc.cleanup = append(tc.cleanup, fn)
}

// close runs teardown in reverse order of setup.
func (tc *TestContext) close() {
	for i := len(tc.cleanup) - 1; i >= 0; i-- {
		tc.cleanup[i]()
	}
}
