package sqlstore

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/platform/sqlstore/migrations"
	"github.com/pressly/goose/v3"
)

// MigrationStatus reports one migration's state.
type MigrationStatus struct {
	Version int64
	Path    string
	Applied bool
}

func (b *Backend) provider() (*goose.Provider, error) {
	sub, err := fs.Sub(migrations.FS, b.dialect.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s migrations: %w", b.dialect.Name, err)
	}
	p, err := goose.NewProvider(b.dialect.goose, b.db, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return p, nil
}

// MigrateUp applies all pending migrations.
func (b *Backend) MigrateUp(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, b.logger)

	p, err := b.provider()
	if err != nil {
		return err
	}

	results, err := p.Up(ctx)
	if err != nil {
		log.Error("migration failed", slog.String("error", err.Error()))
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, r := range results {
		log.Info("applied migration",
			slog.Int64("version", r.Source.Version),
			slog.String("path", r.Source.Path),
			slog.Duration("duration", r.Duration))
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (b *Backend) MigrateDown(ctx context.Context) error {
	p, err := b.provider()
	if err != nil {
		return err
	}

	r, err := p.Down(ctx)
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}

	logger.FromContextOrDefault(ctx, b.logger).Info("rolled back migration",
		slog.Int64("version", r.Source.Version),
		slog.String("path", r.Source.Path))
	return nil
}

// MigrationStatuses lists every known migration and whether it is applied.
func (b *Backend) MigrationStatuses(ctx context.Context) ([]MigrationStatus, error) {
	p, err := b.provider()
	if err != nil {
		return nil, err
	}

	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}

	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatus{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
