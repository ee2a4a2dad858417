// Package migraterunner applies the database schema and exits.
package migraterunner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/postgres"
	"github.com/Vector/vector-trip-scraper/runner"
)

type migrator struct {
	migrations *postgres.MigrationRunner
}

func New(cfg *runner.Config, log *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeMigrate {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	return &migrator{migrations: postgres.NewMigrationRunner(cfg.Dsn, log)}, nil
}

func (m *migrator) Run(ctx context.Context) error {
	return m.migrations.RunMigrations(ctx)
}

func (m *migrator) Close(context.Context) error {
	return nil
}
