// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/idreset/cmd/idreset/internal/ids"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/process"
	"github.com/AleutianAI/idreset/pkg/logging"
)

// SystemIdentityStore is the platform registry / property-list
// backend, selected once at startup rather than branched per call.
//
// Windows writes two registry values requiring elevated access;
// macOS rewrites the platform UUID property list through an external
// editor; every other platform has no system-level identifiers and
// gets the no-op implementation.
type SystemIdentityStore interface {
	Mutator
}

// NewSystemIdentityStore selects the implementation for the current
// platform.
func NewSystemIdentityStore(proc process.Manager, log *logging.Logger) SystemIdentityStore {
	return newPlatformSystemStore(proc, log)
}

// -----------------------------------------------------------------------------
// No-op implementation (platforms without system identifiers)
// -----------------------------------------------------------------------------

// NoopSystemStore satisfies SystemIdentityStore on platforms with no
// registry or platform UUID to rewrite.
type NoopSystemStore struct{}

// NewNoopSystemStore creates the no-op system store.
func NewNoopSystemStore() *NoopSystemStore { return &NoopSystemStore{} }

// Kind identifies the backend technology.
func (s *NoopSystemStore) Kind() Kind { return KindSystem }

// Location describes the (absent) system store.
func (s *NoopSystemStore) Location() string { return "none" }

// Apply reports the platform as unsupported so the orchestrator
// records a Skipped outcome.
func (s *NoopSystemStore) Apply(ctx context.Context, set ids.Set) error {
	return fmt.Errorf("%w: no system identifiers on this platform", ErrUnsupported)
}

// -----------------------------------------------------------------------------
// macOS implementation
// -----------------------------------------------------------------------------

// DefaultPlatformUUIDPath is the fixed system property list holding
// the macOS platform UUID.
const DefaultPlatformUUIDPath = "/var/root/Library/Preferences/SystemConfiguration/com.apple.platform.uuid.plist"

// PropertyListEditor abstracts the external property-list editing
// tool so tests can fake the edit without invoking a real plutil.
type PropertyListEditor interface {
	// ReplaceString replaces a string field inside the property list
	// at path. Requires elevated privileges for system plists.
	ReplaceString(ctx context.Context, path, field, value string) error
}

// PlutilEditor implements PropertyListEditor by shelling out to
// plutil via sudo.
type PlutilEditor struct {
	proc process.Manager
}

// NewPlutilEditor creates the production property-list editor.
func NewPlutilEditor(proc process.Manager) *PlutilEditor {
	return &PlutilEditor{proc: proc}
}

// ReplaceString runs plutil -replace on the target plist. A refused
// sudo or plutil write surfaces as os.ErrPermission so callers can
// classify it without parsing exec errors themselves.
func (e *PlutilEditor) ReplaceString(ctx context.Context, path, field, value string) error {
	_, err := e.proc.Run(ctx, "sudo", "plutil", "-replace", field, "-string", value, path)
	if err != nil {
		if isPermissionMessage(err.Error()) {
			return fmt.Errorf("plutil replace failed: %s: %w", err, os.ErrPermission)
		}
		return fmt.Errorf("plutil replace failed: %w", err)
	}
	return nil
}

// isPermissionMessage matches the stderr sudo and plutil emit when the
// caller lacks rights to rewrite a system plist.
func isPermissionMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "operation not permitted")
}

// DarwinSystemStore rewrites the macOS platform UUID.
type DarwinSystemStore struct {
	editor    PropertyListEditor
	plistPath string
	log       *logging.Logger
}

// NewDarwinSystemStore creates the macOS system store. An empty
// plistPath selects DefaultPlatformUUIDPath.
func NewDarwinSystemStore(editor PropertyListEditor, plistPath string, log *logging.Logger) *DarwinSystemStore {
	if plistPath == "" {
		plistPath = DefaultPlatformUUIDPath
	}
	return &DarwinSystemStore{editor: editor, plistPath: plistPath, log: log}
}

// Kind identifies the backend technology.
func (s *DarwinSystemStore) Kind() Kind { return KindSystem }

// Location returns the plist path.
func (s *DarwinSystemStore) Location() string { return s.plistPath }

// Apply replaces the UUID field with the new macOS machine id.
func (s *DarwinSystemStore) Apply(ctx context.Context, set ids.Set) error {
	token, ok := set[ids.MacMachineID]
	if !ok || token == "" {
		return fmt.Errorf("identifier set is missing %s", ids.MacMachineID)
	}

	if _, err := os.Stat(s.plistPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, s.plistPath)
	}

	if err := s.editor.ReplaceString(ctx, s.plistPath, "UUID", token); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrPermission, s.plistPath)
		}
		return fmt.Errorf("failed to update platform UUID in %s: %w", s.plistPath, err)
	}

	s.log.Info("platform UUID updated", "path", s.plistPath)
	return nil
}

// MockPropertyListEditor is a test double for PropertyListEditor.
type MockPropertyListEditor struct {
	ReplaceStringFunc func(ctx context.Context, path, field, value string) error

	// Calls records every ReplaceString invocation as
	// [path, field, value].
	Calls [][3]string
}

// ReplaceString delegates to ReplaceStringFunc and records the call.
func (m *MockPropertyListEditor) ReplaceString(ctx context.Context, path, field, value string) error {
	m.Calls = append(m.Calls, [3]string{path, field, value})
	if m.ReplaceStringFunc == nil {
		return nil
	}
	return m.ReplaceStringFunc(ctx, path, field, value)
}

// Compile-time interface checks
var (
	_ SystemIdentityStore = (*NoopSystemStore)(nil)
	_ SystemIdentityStore = (*DarwinSystemStore)(nil)
	_ PropertyListEditor  = (*PlutilEditor)(nil)
	_ PropertyListEditor  = (*MockPropertyListEditor)(nil)
)
