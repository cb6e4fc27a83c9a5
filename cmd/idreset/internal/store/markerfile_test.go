// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/idreset/cmd/idreset/internal/backup"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/ids"
	"github.com/AleutianAI/idreset/pkg/logging"
)

func TestMarkerStore_Read_MissingFile(t *testing.T) {
	dir := t.TempDir()
	store := NewMarkerStore(filepath.Join(dir, "machineId"),
		backup.NewFileManager(backup.DefaultConfig(dir)), logging.Discard())

	set, err := store.Read()
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestMarkerStore_Read_ReturnsContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machineId")
	require.NoError(t, os.WriteFile(path, []byte("55555555-5555-4555-8555-555555555555"), 0o644))

	store := NewMarkerStore(path,
		backup.NewFileManager(backup.DefaultConfig(dir)), logging.Discard())

	set, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, "55555555-5555-4555-8555-555555555555", set[ids.DevDeviceID])
}

func TestMarkerStore_Apply_WritesToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machineId")
	store := NewMarkerStore(path,
		backup.NewFileManager(backup.DefaultConfig(dir)), logging.Discard())

	set := ids.NewUUIDGenerator().Generate()
	require.NoError(t, store.Apply(context.Background(), set))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Plain text, exactly the token, no trailing newline
	assert.Equal(t, set[ids.DevDeviceID], string(data))
}

func TestMarkerStore_Apply_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "User", "globalStorage", "machineId")
	store := NewMarkerStore(path,
		backup.NewFileManager(backup.DefaultConfig(dir)), logging.Discard())

	set := ids.NewUUIDGenerator().Generate()
	require.NoError(t, store.Apply(context.Background(), set))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestMarkerStore_Apply_BacksUpExistingMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machineId")
	require.NoError(t, os.WriteFile(path, []byte("old-token"), 0o644))

	store := NewMarkerStore(path,
		backup.NewFileManager(backup.DefaultConfig(dir)), logging.Discard())

	set := ids.NewUUIDGenerator().Generate()
	require.NoError(t, store.Apply(context.Background(), set))

	matches, err := filepath.Glob(path + ".restore_bak.*")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "old-token", string(data))
}

func TestMarkerStore_Apply_MissingDeviceID(t *testing.T) {
	dir := t.TempDir()
	store := NewMarkerStore(filepath.Join(dir, "machineId"),
		backup.NewFileManager(backup.DefaultConfig(dir)), logging.Discard())

	err := store.Apply(context.Background(), ids.Set{ids.SqmID: "x"})
	assert.Error(t, err)
}

func TestMarkerStore_Apply_BackupFailureBlocksWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machineId")
	require.NoError(t, os.WriteFile(path, []byte("old-token"), 0o644))

	store := NewMarkerStore(path, &failingBackupManager{}, logging.Discard())

	set := ids.NewUUIDGenerator().Generate()
	err := store.Apply(context.Background(), set)
	assert.ErrorIs(t, err, ErrBackupFailed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old-token", string(data))
}
