// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store implements the four identifier storage backends: the
// canonical JSON document store, the embedded key-value database, the
// flat marker file, and the platform registry/property-list store.
//
// Each mutator knows how to read, back up, and overwrite exactly one
// backend. Cross-backend sequencing and failure policy belong to the
// reset orchestrator, not to this package.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/idreset/cmd/idreset/internal/ids"
)

// Kind identifies one backend technology.
type Kind string

const (
	// KindJSON is the canonical JSON document store (storage.json).
	KindJSON Kind = "json-store"

	// KindEmbeddedKV is the embedded key-value database (state.vscdb).
	KindEmbeddedKV Kind = "embedded-kv"

	// KindMarker is the flat machineId marker file.
	KindMarker Kind = "marker-file"

	// KindSystem is the OS registry (Windows) or platform property
	// list (macOS).
	KindSystem Kind = "system-registry"
)

// Sentinel errors classifying backend failures. Mutators wrap these
// with %w so callers can map them to per-backend outcomes with
// errors.Is.
var (
	// ErrNotFound means the backend's source file, table, or key is
	// absent. Callers report this as Skipped, never as a failure.
	ErrNotFound = errors.New("backend not found")

	// ErrPermission means the backend refused the write for lack of
	// privileges. Reported distinctly; never silently retried with
	// elevated rights.
	ErrPermission = errors.New("permission denied")

	// ErrUnsupported means the backend does not exist on this
	// platform. Reported as Skipped.
	ErrUnsupported = errors.New("unsupported platform")

	// ErrBackupFailed means the pre-write snapshot could not be
	// created; the destructive write was not attempted.
	ErrBackupFailed = errors.New("backup write failed")
)

// Mutator is one identifier storage backend.
//
// Apply receives the complete freshly generated identifier set and
// writes the subset of identifiers the backend recognizes. Every
// backend sees identical values for the identifiers it shares with
// the others.
type Mutator interface {
	// Kind identifies the backend technology.
	Kind() Kind

	// Location is the filesystem path or platform key path the
	// backend owns, for reporting.
	Location() string

	// Apply overwrites the backend's identifiers with values from
	// set, after backing up the prior state. Errors wrap the
	// package sentinels where a classification applies.
	Apply(ctx context.Context, set ids.Set) error
}
