package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"royalty/internal/config"
	"royalty/internal/logging"
	"royalty/internal/services"
)

// Store persists settlement records through database/sql.
type Store struct {
	db      *sql.DB
	path    string
	dialect dialect
	logger  *slog.Logger
	now     func() time.Time
	observe WriteObserver
}

// WriteObserver receives the duration of every write operation.
type WriteObserver func(operation string, partition Partition, elapsed time.Duration)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open connects to the configured backend and prepares the schema. SQLite
// databases live at cfg.SQLitePath().
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "ledger", "open", "config is nil", nil)
	}
	d, ok := dialectFor(cfg.Store.Driver)
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "ledger", "open", fmt.Sprintf("unsupported driver %q", cfg.Store.Driver), nil)
	}

	dsn := cfg.Store.DSN
	path := ""
	if d.name == "sqlite" {
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, services.Wrap(services.ErrStoreUnavailable, "ledger", "open", "ensure directories", err)
		}
		path = cfg.SQLitePath()
		dsn = path
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "ledger", "open", d.name, err)
	}
	if d.maxOpenConns > 0 {
		// PRAGMAs are per connection; a single connection keeps them in force.
		db.SetMaxOpenConns(d.maxOpenConns)
	}
	for _, pragma := range d.pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrStoreUnavailable, "ledger", "open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStoreUnavailable, "ledger", "open", "ping "+d.name, err)
	}

	store := &Store{
		db:      db,
		path:    path,
		dialect: d,
		logger:  logging.NewComponentLogger(logger, "ledger"),
		now:     time.Now,
	}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		if errors.Is(err, ErrSchemaMismatch) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrStoreUnavailable, "ledger", "open", "init schema", err)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the backend name (sqlite, postgres or mysql).
func (s *Store) Driver() string { return s.dialect.name }

// Path returns the SQLite file path, empty for network backends.
func (s *Store) Path() string { return s.path }

// SetWriteObserver installs a callback that receives write durations.
func (s *Store) SetWriteObserver(observer WriteObserver) { s.observe = observer }

func (s *Store) observeWrite(operation string, partition Partition, started time.Time) {
	if s.observe != nil {
		s.observe(operation, partition, time.Since(started))
	}
}

func (s *Store) q(query string) string { return s.dialect.rebind(query) }

func unavailable(operation string, partition Partition, err error) error {
	return services.Wrap(services.ErrStoreUnavailable, "ledger", operation, string(partition), err)
}

// withTx runs fn inside a transaction and retries the whole transaction while
// SQLite reports the database as busy.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}
