package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/phrazzld/careminder/internal/platform/logger"
	"github.com/phrazzld/careminder/internal/store"
	_ "modernc.org/sqlite" // sqlite driver
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns int
}

// Backend implements store.Backend on a *sql.DB.
type Backend struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// Open establishes a connection to the database, configures the connection
// pool and pings it. SQLite connections are limited to one so writers
// serialize instead of failing with "database is locked".
func Open(ctx context.Context, dialect Dialect, dsn string, opts Options, logger *slog.Logger) (*Backend, error) {
	if dialect == SQLite {
		dsn = withSQLitePragmas(dsn)
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	} else {
		maxOpen := opts.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 10
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", MapError(err))
	}

	return New(db, dialect, logger), nil
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect, logger *slog.Logger) *Backend {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		db:      db,
		dialect: dialect,
		logger:  logger.With(slog.String("component", "sqlstore"), slog.String("dialect", dialect.Name)),
	}
}

// withSQLitePragmas enables foreign keys and a busy timeout unless the DSN
// already sets pragmas.
func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// DB exposes the underlying database.
func (b *Backend) DB() *sql.DB {
	return b.db
}

// Stores returns stores bound to the connection pool.
func (b *Backend) Stores() store.Stores {
	return b.storesFor(b.db)
}

func (b *Backend) storesFor(db store.DBTX) store.Stores {
	return store.Stores{
		Steps:     NewStepStore(db, b.dialect, b.logger),
		Reminders: NewReminderStore(db, b.dialect, b.logger),
	}
}

// RunInTx implements store.Transactor.
func (b *Backend) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Stores) error) error {
	err := store.RunInTransaction(ctx, b.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, b.storesFor(tx))
	})
	return MapError(err)
}

// Ping implements store.Backend.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		logger.FromContextOrDefault(ctx, b.logger).Warn("database ping failed",
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", store.ErrTransient, err)
	}
	return nil
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	return b.db.Close()
}
