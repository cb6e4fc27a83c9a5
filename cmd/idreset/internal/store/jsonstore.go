// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/AleutianAI/idreset/cmd/idreset/internal/backup"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/ids"
	"github.com/AleutianAI/idreset/pkg/logging"
)

// JSONStore is the canonical backend: a flat key→value JSON document.
//
// # Description
//
// The document holds the identifier keys alongside arbitrary
// application state. Apply merges the new identifier values into the
// existing key space and preserves every unrelated key untouched.
// This store is read first to discover prior identifier values, and
// its mutation decides whether the run continues to the secondary
// backends — that policy lives in the orchestrator, but the contract
// here is strict: any read, parse, backup, or write failure is an
// error, never a silent partial apply.
type JSONStore struct {
	path    string
	backups backup.Manager
	log     *logging.Logger
}

// NewJSONStore creates the canonical store mutator for path.
func NewJSONStore(path string, backups backup.Manager, log *logging.Logger) *JSONStore {
	return &JSONStore{path: path, backups: backups, log: log}
}

// Kind identifies the backend technology.
func (s *JSONStore) Kind() Kind { return KindJSON }

// Location returns the document path.
func (s *JSONStore) Location() string { return s.path }

// Read returns the identifier values currently stored in the
// document. A missing file is not an error and yields an empty set;
// only the managed identifier keys are extracted.
func (s *JSONStore) Read() (ids.Set, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return ids.Set{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	set := ids.Set{}
	for _, name := range ids.All() {
		if v, ok := doc[string(name)].(string); ok && v != "" {
			set[name] = v
		}
	}
	return set, nil
}

// Apply merges the new identifier values into the document.
//
// # Description
//
// Reads the whole document, creates a timestamped copy of the
// original file, replaces the identifier keys, and writes the result
// back with the original indentation style. Unrelated keys are
// preserved byte-for-byte at the value level.
//
// A missing document wraps ErrNotFound: the canonical store is the
// source of truth the other backends mirror, so there is nothing
// sane to create from scratch here.
func (s *JSONStore) Apply(ctx context.Context, set ids.Set) error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	backupPath, err := s.backups.BackupBeforeOverwrite(s.path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBackupFailed, s.path, err)
	}
	s.log.Info("canonical store backed up", "path", s.path, "backup", backupPath)

	for _, name := range ids.All() {
		if v, ok := set[name]; ok {
			doc[string(name)] = v
		}
	}

	out, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", s.path, err)
	}
	if err := os.WriteFile(s.path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}

	s.log.Info("canonical store updated", "path", s.path, "keys", len(set))
	return nil
}

// Compile-time interface check
var _ Mutator = (*JSONStore)(nil)
