package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

type gooseCommand func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error

// migrate runs one goose command against the embedded schema files.
func migrate(ctx context.Context, db *sql.DB, operation string, cmd gooseCommand) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: goose dialect: %w", operation, err)
	}
	if err := cmd(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// RunMigrations brings the pricing_settings and contracts schema up to date.
func RunMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if err := migrate(ctx, db, "storage.RunMigrations", goose.UpContext); err != nil {
		return err
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("storage.RunMigrations: read schema version: %w", err)
	}
	logger.Info("Schema up to date", zap.Int64("version", version))
	return nil
}

func RollbackMigration(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if err := migrate(ctx, db, "storage.RollbackMigration", goose.DownContext); err != nil {
		return err
	}
	logger.Warn("Rolled back newest schema migration")
	return nil
}

// Status prints the applied and pending migrations through goose's logger.
func Status(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	logger.Debug("Reading schema migration status")
	return migrate(ctx, db, "storage.Status", goose.StatusContext)
}
