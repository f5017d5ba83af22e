package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// Handle owns the single shared connection to the store.
//
// Every operation runs through Do, one at a time. When an operation fails
// with anything other than an expected outcome (no rows, constraint
// violation, cancellation) the connection is closed and the next Do opens a
// fresh one. Callers must not keep the *DB passed to their function.
type Handle struct {
	cfg  Config
	open func(Config) (*DB, error)

	mu sync.Mutex
	db *DB

	// reconnects counts recycled connections, for diagnostics and tests.
	reconnects int
}

// OpenHandle opens the first connection eagerly so configuration errors
// surface at startup.
func OpenHandle(cfg Config) (*Handle, error) {
	h := &Handle{cfg: cfg, open: Open}
	db, err := h.open(cfg)
	if err != nil {
		return nil, err
	}
	h.db = db
	return h, nil
}

// Do runs fn with the current connection, opening one if needed.
// The error from fn is returned unchanged.
func (h *Handle) Do(ctx context.Context, fn func(ctx context.Context, db *DB) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db == nil {
		db, err := h.open(h.cfg)
		if err != nil {
			return fmt.Errorf("reopening database: %w", err)
		}
		h.db = db
	}

	err := fn(ctx, h.db)
	if err != nil && !isExpected(err) {
		h.invalidate()
	}
	return err
}

// Close closes the current connection. A later Do reopens it.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

// Reconnects returns how many times the connection has been recycled.
func (h *Handle) Reconnects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reconnects
}

// HealthCheck runs the connection health query through the handle.
func (h *Handle) HealthCheck(ctx context.Context) error {
	return h.Do(ctx, func(ctx context.Context, db *DB) error {
		return db.HealthCheck(ctx)
	})
}

// Migrate applies pending migrations through the handle.
func (h *Handle) Migrate(ctx context.Context) error {
	return h.Do(ctx, func(ctx context.Context, db *DB) error {
		return db.Migrate(ctx)
	})
}

// Path returns the configured database file path.
func (h *Handle) Path() string {
	return h.cfg.Path
}

// invalidate drops the current connection. Caller holds h.mu.
func (h *Handle) invalidate() {
	if h.db == nil {
		return
	}
	_ = h.db.Close() //nolint:errcheck // Connection is being discarded
	h.db = nil
	h.reconnects++
}

// isExpected reports whether err is a normal query outcome that says
// nothing about the health of the connection.
func isExpected(err error) bool {
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return true
	}
	return false
}
