// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/idreset/cmd/idreset/internal/backup"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/ids"
	"github.com/AleutianAI/idreset/pkg/logging"
)

// MarkerStore mutates the flat machineId marker file.
//
// The file's entire contents is the device-id token as plain text, no
// trailing newline or structure. An absent file is overwritten-from-
// nothing rather than skipped: parent directories are created as
// needed, because a fresh install may not have written the marker
// yet.
type MarkerStore struct {
	path    string
	backups backup.Manager
	log     *logging.Logger
}

// NewMarkerStore creates the marker-file mutator for path.
func NewMarkerStore(path string, backups backup.Manager, log *logging.Logger) *MarkerStore {
	return &MarkerStore{path: path, backups: backups, log: log}
}

// Kind identifies the backend technology.
func (s *MarkerStore) Kind() Kind { return KindMarker }

// Location returns the marker file path.
func (s *MarkerStore) Location() string { return s.path }

// Read returns the current marker contents as a partial set holding
// only the device id. A missing file yields an empty set.
func (s *MarkerStore) Read() (ids.Set, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return ids.Set{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return ids.Set{ids.DevDeviceID: string(data)}, nil
}

// Apply backs up the existing marker (if present) and overwrites it
// with the new device-id token.
func (s *MarkerStore) Apply(ctx context.Context, set ids.Set) error {
	token, ok := set[ids.DevDeviceID]
	if !ok || token == "" {
		return fmt.Errorf("identifier set is missing %s", ids.DevDeviceID)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}

	backupPath, err := s.backups.BackupBeforeOverwrite(s.path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBackupFailed, s.path, err)
	}
	if backupPath != "" {
		s.log.Info("marker file backed up", "path", s.path, "backup", backupPath)
	}

	if err := os.WriteFile(s.path, []byte(token), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}

	s.log.Info("marker file updated", "path", s.path)
	return nil
}

// Compile-time interface check
var _ Mutator = (*MarkerStore)(nil)
