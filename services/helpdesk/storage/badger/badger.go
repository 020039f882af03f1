// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps a BadgerDB instance shared by the helpdesk caches.
//
// The embedding cache and the feedback log live in the same database under
// different key prefixes. Callers use WithTxn / WithReadTxn rather than the
// raw badger handle so context cancellation is checked consistently.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// ErrClosed is returned by transaction helpers after Close.
var ErrClosed = errors.New("badger: database closed")

// Config controls how the database is opened.
type Config struct {
	// Path is the on-disk directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps all data in RAM. Used by tests.
	InMemory bool

	// ReadOnly opens an existing directory without taking the write lock.
	ReadOnly bool

	// SyncWrites forces an fsync after every write transaction.
	SyncWrites bool

	// Logger receives lifecycle messages. Nil uses slog.Default().
	// Badger's own internal logger is always silenced.
	Logger *slog.Logger
}

// DefaultConfig returns a disk-backed configuration with no path set.
// Callers must fill in Path.
func DefaultConfig() Config {
	return Config{SyncWrites: false}
}

// InMemoryConfig returns a configuration for an ephemeral in-memory database.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// DB is a thin wrapper around *dgbadger.DB.
//
// # Thread Safety
//
// Safe for concurrent use. Each helper call runs in its own transaction.
type DB struct {
	db     *dgbadger.DB
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// OpenDB opens (creating if needed) a BadgerDB instance.
//
// # Inputs
//
//   - cfg: Open configuration. Path is required unless InMemory is set.
//
// # Outputs
//
//   - *DB: Open database. The caller owns it and must call Close.
//   - error: Non-nil if the directory cannot be created or badger fails to open.
func OpenDB(cfg Config) (*DB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts dgbadger.Options
	if cfg.InMemory {
		opts = dgbadger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("open badger: path must not be empty")
		}
		if !cfg.ReadOnly {
			if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
				return nil, fmt.Errorf("open badger: create dir %s: %w", cfg.Path, err)
			}
		}
		opts = dgbadger.DefaultOptions(cfg.Path).
			WithReadOnly(cfg.ReadOnly).
			WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(nil)

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}

	logger.Debug("badger opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Bool("read_only", cfg.ReadOnly),
	)
	return &DB{db: db, path: cfg.Path, logger: logger}, nil
}

// Path returns the directory the database was opened at ("" for in-memory).
func (d *DB) Path() string {
	return d.path
}

// WithTxn runs fn inside a read-write transaction and commits it.
//
// The context is checked before the transaction starts. fn's error aborts
// the transaction and is returned unwrapped so callers can match sentinels.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.View(fn)
}

// Close closes the underlying database. Calling Close twice is a no-op.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}
