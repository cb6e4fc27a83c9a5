// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	// Pure-Go SQLite driver; the target application's state.vscdb is
	// a regular SQLite database.
	_ "modernc.org/sqlite"

	"github.com/AleutianAI/idreset/cmd/idreset/internal/ids"
	"github.com/AleutianAI/idreset/pkg/logging"
)

// SQLiteStore mutates the embedded key-value database.
//
// # Description
//
// The database holds a single ItemTable mapping text keys to text
// values. Identifier rows are inserted-or-replaced with the raw token
// strings (not JSON-wrapped). Failure of this backend never aborts
// the run — it is independent of the canonical JSON store.
type SQLiteStore struct {
	path string
	log  *logging.Logger
}

// NewSQLiteStore creates the embedded-store mutator for path.
func NewSQLiteStore(path string, log *logging.Logger) *SQLiteStore {
	return &SQLiteStore{path: path, log: log}
}

// Kind identifies the backend technology.
func (s *SQLiteStore) Kind() Kind { return KindEmbeddedKV }

// Location returns the database path.
func (s *SQLiteStore) Location() string { return s.path }

// open connects to the database and ensures ItemTable exists.
// Creating the table when absent is not an error.
func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}

	const createTable = `CREATE TABLE IF NOT EXISTS ItemTable (
		key TEXT PRIMARY KEY,
		value TEXT
	)`
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure ItemTable in %s: %w", s.path, err)
	}

	return db, nil
}

// Read returns the identifier values currently stored in ItemTable.
// A missing database wraps ErrNotFound.
func (s *SQLiteStore) Read(ctx context.Context) (ids.Set, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	set := ids.Set{}
	for _, name := range ids.All() {
		var value string
		err := db.QueryRowContext(ctx,
			"SELECT value FROM ItemTable WHERE key = ?", string(name)).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read key %s from %s: %w", name, s.path, err)
		}
		if value != "" {
			set[name] = value
		}
	}

	return set, nil
}

// Apply upserts every identifier as a raw token string.
func (s *SQLiteStore) Apply(ctx context.Context, set ids.Set) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction on %s: %w", s.path, err)
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO ItemTable (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	for _, name := range ids.All() {
		value, ok := set[name]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert, string(name), value); err != nil {
			return fmt.Errorf("failed to upsert key %s in %s: %w", name, s.path, err)
		}
		s.log.Debug("embedded store key updated", "key", string(name))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", s.path, err)
	}

	s.log.Info("embedded store updated", "path", s.path)
	return nil
}

// DiagnosticTables lists tables whose names suggest usage accounting
// (limit, usage, quota).
//
// # Description
//
// Read-only reporting side-channel: the rows are never touched by the
// reset. The list is surfaced so an operator knows the database
// carries usage state beyond the identifier keys.
func (s *SQLiteStore) DiagnosticTables(ctx context.Context) ([]string, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables in %s: %w", s.path, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		lower := strings.ToLower(name)
		if strings.Contains(lower, "limit") ||
			strings.Contains(lower, "usage") ||
			strings.Contains(lower, "quota") {
			matches = append(matches, name)
		}
	}

	return matches, rows.Err()
}

// Compile-time interface check
var _ Mutator = (*SQLiteStore)(nil)
