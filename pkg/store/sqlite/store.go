// Package sqlite implements the account, limit and audit stores on SQLite
// using the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Store owns the database handle shared by the account, limit and audit views.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// mu serializes write transactions; SQLite allows a single writer.
	mu sync.Mutex
}

type storeConfig struct {
	// dsn is the data source name (file path or ":memory:" for in-memory)
	dsn string

	maxOpenConns int
	maxIdleConns int

	// walMode enables write-ahead logging for better concurrency
	walMode bool

	// autoMigrate runs pending migrations on open
	autoMigrate bool

	busyTimeout time.Duration
	logger      *slog.Logger
}

func defaultStoreConfig() storeConfig {
	return storeConfig{
		dsn:          "assetlimits.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
		busyTimeout:  5 * time.Second,
	}
}

// Option configures a Store.
type Option func(*storeConfig)

// WithDSN sets the data source name (file path or ":memory:" for in-memory).
func WithDSN(dsn string) Option {
	return func(c *storeConfig) {
		c.dsn = dsn
	}
}

// WithMemoryDatabase sets the database to an in-memory database.
func WithMemoryDatabase() Option {
	return func(c *storeConfig) {
		c.dsn = ":memory:"
	}
}

// WithMaxOpenConns sets the maximum number of open connections to the database.
func WithMaxOpenConns(n int) Option {
	return func(c *storeConfig) {
		c.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the maximum number of idle connections in the pool.
func WithMaxIdleConns(n int) Option {
	return func(c *storeConfig) {
		c.maxIdleConns = n
	}
}

// WithWALMode enables write-ahead logging.
// Not available for :memory: databases.
func WithWALMode(enabled bool) Option {
	return func(c *storeConfig) {
		c.walMode = enabled
	}
}

// WithAutoMigrate runs pending migrations when the store is opened.
func WithAutoMigrate(enabled bool) Option {
	return func(c *storeConfig) {
		c.autoMigrate = enabled
	}
}

// WithBusyTimeout sets how long a connection waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *storeConfig) {
		c.busyTimeout = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *storeConfig) {
		c.logger = logger
	}
}

// Open opens the database and, unless disabled, migrates it.
//
// Example usage:
//
//	// Use defaults (assetlimits.db, WAL mode, auto-migrate)
//	st, err := sqlite.Open(ctx)
//
//	// In-memory database for testing
//	st, err := sqlite.Open(ctx, sqlite.WithMemoryDatabase(), sqlite.WithWALMode(false))
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	config := defaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.logger == nil {
		config.logger = slog.Default()
	}

	db, err := sql.Open("sqlite", config.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to :memory: gets its own isolated database.
	if config.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.maxOpenConns)
		db.SetMaxIdleConns(config.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, logger: config.logger}

	if err := s.configure(ctx, config); err != nil {
		db.Close()
		return nil, err
	}

	if config.autoMigrate {
		applied, err := s.Migrate(ctx)
		if err != nil {
			db.Close()
			return nil, err
		}
		if applied > 0 {
			s.logger.Info("database migrated", "dsn", config.dsn, "applied", applied)
		}
	}

	return s, nil
}

func (s *Store) configure(ctx context.Context, config storeConfig) error {
	pragmas := fmt.Sprintf("PRAGMA busy_timeout = %d;", config.busyTimeout.Milliseconds())
	if config.walMode {
		pragmas += `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;`
	}
	if _, err := s.db.ExecContext(ctx, pragmas); err != nil {
		return fmt.Errorf("failed to configure database: %w", err)
	}
	return nil
}

// Accounts returns the AccountStore view.
func (s *Store) Accounts() *AccountStore {
	return &AccountStore{s: s}
}

// Limits returns the LimitStore view.
func (s *Store) Limits() *LimitStore {
	return &LimitStore{s: s}
}

// AuditLog returns the EventSink that persists suspicious events.
func (s *Store) AuditLog() *AuditLog {
	return &AuditLog{s: s}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// writeTx runs fn in a transaction that is committed only if fn succeeds.
func (s *Store) writeTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
