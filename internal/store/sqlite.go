package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	// busyRetryAttempts and busyRetryDelay bound the wait for a locked
	// SQLite database before the statement fails for real.
	busyRetryAttempts = 100
	busyRetryDelay    = 100 * time.Millisecond
)

// pathLocks serializes statement execution per database file, across every
// SQLite handle this process opens on the same path.
var pathLocks sync.Map

// SQLite is the local, authoritative metadata backend.
type SQLite struct {
	sqlBackend
	path string
}

// DefaultSQLitePath returns the per-user default database file.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mail_metadata.db"
	}
	return filepath.Join(home, ".mail_metadata.db")
}

// OpenSQLite opens (creating if necessary) the metadata database at path
// and ensures the record tables exist.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path %q: %w", path, err)
	}

	db, err := sqlx.Open("sqlite", abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database %s: %w", abs, err)
	}
	// A single connection both keeps statement order deterministic and
	// avoids self-inflicted SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	mu, _ := pathLocks.LoadOrStore(abs, &sync.Mutex{})
	lock := mu.(*sync.Mutex)

	s := &SQLite{
		sqlBackend: sqlBackend{
			db: db,
			guard: func(op func() error) error {
				lock.Lock()
				defer lock.Unlock()
				return retryBusy(op)
			},
		},
		path: abs,
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL on %s: %w", abs, err)
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the resolved database file path.
func (s *SQLite) Path() string {
	return s.path
}

// retryBusy runs op, retrying while the engine reports the database as
// locked by another process.
func retryBusy(op func() error) error {
	var err error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		err = op()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(busyRetryDelay)
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
