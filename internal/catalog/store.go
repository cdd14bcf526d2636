package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

var (
	// ErrLocked reports that another digidup process holds the catalog.
	ErrLocked = errors.New("catalog is in use by another digidup process")
	// ErrNotCatalog reports a database without the digiKam Images/Albums tables.
	ErrNotCatalog = errors.New("not a digiKam catalog")
	// ErrReadOnly reports a write attempted through a read-only store.
	ErrReadOnly = errors.New("catalog opened read-only")
)

// Options controls how the catalog is opened.
type Options struct {
	Path string
	// LockPath defaults to Path + ".digidup.lock".
	LockPath string
	// ReadOnly sets query_only and takes a shared lock, so simulated runs
	// can overlap each other but never an applying run.
	ReadOnly bool
}

// Store is a single connection to a digiKam catalog.
type Store struct {
	db       *sql.DB
	path     string
	lock     *flock.Flock
	readOnly bool
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open locks and connects to the catalog at opts.Path. The file must exist;
// a missing catalog is never created.
func Open(ctx context.Context, opts Options) (*Store, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, errors.New("catalog path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("catalog %s: %w", path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("stat catalog: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("catalog %s: is a directory", path)
	}

	lockPath := strings.TrimSpace(opts.LockPath)
	if lockPath == "" {
		lockPath = path + ".digidup.lock"
	}
	lock := flock.New(lockPath)
	var locked bool
	if opts.ReadOnly {
		locked, err = lock.TryRLock()
	} else {
		locked, err = lock.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("acquire catalog lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, lockPath)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: path, lock: lock, readOnly: opts.ReadOnly}

	if err := db.PingContext(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if opts.ReadOnly {
		pragmas = append(pragmas, "PRAGMA query_only = ON")
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if err := store.checkSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the connection and releases the catalog lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	if s.db != nil {
		firstErr = s.db.Close()
		s.db = nil
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("release catalog lock: %w", err)
		}
		s.lock = nil
	}
	return firstErr
}

// Path returns the catalog file location.
func (s *Store) Path() string {
	return s.path
}

// ReadOnly reports whether writes are refused.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

func (s *Store) checkSchema(ctx context.Context) error {
	for _, table := range []string{"Images", "Albums"} {
		var count int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name = ? COLLATE NOCASE",
			table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check %s table: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("%w: %s has no %s table", ErrNotCatalog, s.path, table)
		}
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
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
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
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
