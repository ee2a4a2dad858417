package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

/*
MigrationRunner applies the schema using golang-migrate. Migrations are
embedded in the binary from postgres/migrations and follow the
{version}_{description}.up.sql / .down.sql convention; applied versions are
tracked in the schema_migrations table.
*/
type MigrationRunner struct {
	dsn     string
	log     *zap.Logger
	timeout time.Duration
}

func NewMigrationRunner(dsn string, log *zap.Logger) *MigrationRunner {
	return &MigrationRunner{
		dsn:     dsn,
		log:     log,
		timeout: 30 * time.Second,
	}
}

func (m *MigrationRunner) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

func (m *MigrationRunner) RunMigrations(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	migrator, err := m.createMigrator(ctx)
	if err != nil {
		return err
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.log.Info("no migrations to apply, database is up to date")

			return nil
		}

		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, _ := migrator.Version()

	m.log.Info("applied migrations", zap.Uint("version", version), zap.Bool("dirty", dirty))

	return nil
}

func (m *MigrationRunner) createMigrator(ctx context.Context) (*migrate.Migrate, error) {
	db, err := sql.Open("pgx", m.formatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Minute * 5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbInstance, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", dbInstance)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return migrator, nil
}

func (m *MigrationRunner) formatDSN() string {
	if !strings.HasPrefix(m.dsn, "postgres://") && !strings.HasPrefix(m.dsn, "postgresql://") {
		return "postgres://" + m.dsn
	}

	return m.dsn
}
