// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/idreset/cmd/idreset/internal/backup"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/ids"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/process"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/prompt"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/store"
	"github.com/AleutianAI/idreset/pkg/logging"
)

// =============================================================================
// Test doubles
// =============================================================================

// stubGuard reports a fixed run status.
type stubGuard struct {
	status process.Status
}

func (g *stubGuard) IsTargetRunning(ctx context.Context) process.Status {
	return g.status
}

// stubMutator is a recording store.Mutator with a scripted result.
type stubMutator struct {
	kind     store.Kind
	location string
	applyErr error

	applyCalls int
}

func (m *stubMutator) Kind() store.Kind { return m.kind }

func (m *stubMutator) Location() string { return m.location }

func (m *stubMutator) Apply(ctx context.Context, set ids.Set) error {
	m.applyCalls++
	return m.applyErr
}

// stubCanonical adds the Read half of the canonical contract.
type stubCanonical struct {
	stubMutator
	readSet ids.Set
	readErr error
}

func (m *stubCanonical) Read() (ids.Set, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.readSet.Clone(), nil
}

// stubEmbedded adds the context-aware Read and the table scan of the
// embedded contract.
type stubEmbedded struct {
	stubMutator
	readSet     ids.Set
	readErr     error
	diagnostics []string
}

func (m *stubEmbedded) Read(ctx context.Context) (ids.Set, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.readSet.Clone(), nil
}

func (m *stubEmbedded) DiagnosticTables(ctx context.Context) ([]string, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.diagnostics, nil
}

// existingFile creates a placeholder file so the installation
// pre-check sees the backend as present.
func existingFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

// testOptions wires stub collaborators that succeed everywhere.
func testOptions(t *testing.T) (Options, *stubCanonical, *stubEmbedded, *stubMutator, *stubMutator) {
	t.Helper()

	canonical := &stubCanonical{
		stubMutator: stubMutator{kind: store.KindJSON, location: existingFile(t, "storage.json")},
		readSet:     ids.Set{},
	}
	embedded := &stubEmbedded{
		stubMutator: stubMutator{kind: store.KindEmbeddedKV, location: existingFile(t, "state.vscdb")},
		readSet:     ids.Set{},
	}
	marker := &stubMutator{kind: store.KindMarker, location: existingFile(t, "machineId")}
	system := &stubMutator{kind: store.KindSystem, location: "none"}

	opts := Options{
		Canonical: canonical,
		Embedded:  embedded,
		Marker:    marker,
		System:    system,
		Guard:     &stubGuard{status: process.Status{State: process.StateNotRunning}},
		Prompter:  &prompt.MockPrompter{Answers: []bool{true, true}},
		Backups:   backup.NewFileManager(backup.DefaultConfig(t.TempDir())),
		Generator: ids.NewUUIDGenerator(),
		Catalog:   DefaultCatalog("Cursor"),
		Log:       logging.Discard(),
	}
	return opts, canonical, embedded, marker, system
}

// =============================================================================
// Constructor
// =============================================================================

func TestNew_RequiresCollaborators(t *testing.T) {
	opts, _, _, _, _ := testOptions(t)
	opts.Canonical = nil

	_, err := New(opts)
	assert.Error(t, err)
}

func TestNew_DefaultsCatalogAndLogger(t *testing.T) {
	opts, _, _, _, _ := testOptions(t)
	opts.Catalog = MessageCatalog{}
	opts.Log = nil

	o, err := New(opts)
	require.NoError(t, err)
	assert.NotEmpty(t, o.catalog.ResetConfirm)
}

// =============================================================================
// Full-run behavior
// =============================================================================

func TestOrchestrator_Run_AllBackendsApplied(t *testing.T) {
	opts, canonical, embedded, marker, system := testOptions(t)
	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.Final)
	assert.Equal(t, StateDone, o.State())
	require.Len(t, report.Results, 4)
	for _, res := range report.Results {
		assert.Equal(t, OutcomeApplied, res.Outcome, "backend %s", res.Backend)
	}
	assert.Equal(t, 1, canonical.applyCalls)
	assert.Equal(t, 1, embedded.applyCalls)
	assert.Equal(t, 1, marker.applyCalls)
	assert.Equal(t, 1, system.applyCalls)

	// A completed run carries the generated set and the restart hint
	require.NotNil(t, report.Applied)
	assert.True(t, report.Applied.Complete())
	assert.NotEmpty(t, report.Hint)
	assert.False(t, report.Failed())
}

func TestOrchestrator_Run_CanonicalFailureShortCircuits(t *testing.T) {
	opts, canonical, embedded, marker, system := testOptions(t)
	canonical.applyErr = errors.New("write failed: read-only filesystem")

	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	// No secondary mutator was invoked
	assert.Equal(t, 1, canonical.applyCalls)
	assert.Equal(t, 0, embedded.applyCalls)
	assert.Equal(t, 0, marker.applyCalls)
	assert.Equal(t, 0, system.applyCalls)

	require.Len(t, report.Results, 4)
	assert.Equal(t, OutcomeFailed, report.Results[0].Outcome)
	for _, res := range report.Results[1:] {
		assert.Equal(t, OutcomeSkipped, res.Outcome)
		assert.Equal(t, "canonical failure", res.Reason)
	}
	assert.True(t, report.CanonicalFailed())
	assert.True(t, report.Failed())
}

func TestOrchestrator_Run_RunningProcessDeclined(t *testing.T) {
	opts, canonical, embedded, marker, system := testOptions(t)
	opts.Guard = &stubGuard{status: process.Status{State: process.StateRunning, PID: 4321}}
	prompter := &prompt.MockPrompter{Answers: []bool{false}}
	opts.Prompter = prompter

	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateAborted, report.Final)
	assert.Equal(t, StateAborted, o.State())
	assert.Empty(t, report.Results)
	assert.Nil(t, report.Applied)

	// Zero writes to any backend
	assert.Equal(t, 0, canonical.applyCalls)
	assert.Equal(t, 0, embedded.applyCalls)
	assert.Equal(t, 0, marker.applyCalls)
	assert.Equal(t, 0, system.applyCalls)

	// The gate asked the running-process question, nothing more
	require.Len(t, prompter.Messages, 1)
	assert.Equal(t, opts.Catalog.RunningConfirm, prompter.Messages[0])
	assert.Contains(t, report.Warnings, opts.Catalog.RunningWarning)
}

func TestOrchestrator_Run_ResetDeclined(t *testing.T) {
	opts, canonical, _, _, _ := testOptions(t)
	opts.Prompter = &prompt.MockPrompter{Answers: []bool{false}}

	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateAborted, report.Final)
	assert.Equal(t, 0, canonical.applyCalls)
	assert.Nil(t, report.Applied)
	assert.Empty(t, report.SnapshotPath)
}

func TestOrchestrator_Run_UnknownRunStateContinuesWithWarning(t *testing.T) {
	opts, canonical, _, _, _ := testOptions(t)
	opts.Guard = &stubGuard{status: process.Status{State: process.StateUnknown}}
	prompter := &prompt.MockPrompter{Answers: []bool{true}}
	opts.Prompter = prompter

	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.Final)
	assert.Equal(t, 1, canonical.applyCalls)
	assert.Contains(t, report.Warnings, opts.Catalog.RunStateUnknown)

	// Only the reset confirmation was asked; unknown is not a gate
	require.Len(t, prompter.Messages, 1)
	assert.NotEqual(t, opts.Catalog.RunningConfirm, prompter.Messages[0])
}

func TestOrchestrator_Run_NothingToReset(t *testing.T) {
	opts, canonical, embedded, marker, _ := testOptions(t)
	missing := t.TempDir()
	canonical.location = filepath.Join(missing, "storage.json")
	embedded.location = filepath.Join(missing, "state.vscdb")
	marker.location = filepath.Join(missing, "machineId")

	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrNothingToReset)
	assert.Equal(t, StateAborted, report.Final)
	assert.Equal(t, 0, canonical.applyCalls)
}

func TestOrchestrator_Run_PermissionFailureIsDistinct(t *testing.T) {
	opts, _, _, _, system := testOptions(t)
	system.applyErr = fmt.Errorf("%w: HKLM", store.ErrPermission)

	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	last := report.Results[len(report.Results)-1]
	assert.Equal(t, store.KindSystem, last.Backend)
	assert.Equal(t, OutcomeFailed, last.Outcome)
	assert.Equal(t, "permission denied", last.Reason)
	assert.True(t, report.Failed())
	assert.False(t, report.CanonicalFailed())
}

func TestOrchestrator_Run_AbsentBackendSkippedNotFailed(t *testing.T) {
	opts, _, embedded, _, _ := testOptions(t)
	embedded.applyErr = fmt.Errorf("%w: state.vscdb", store.ErrNotFound)
	embedded.readErr = fmt.Errorf("%w: state.vscdb", store.ErrNotFound)

	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, report.Results[0].Outcome)
	assert.Equal(t, OutcomeSkipped, report.Results[1].Outcome)
	assert.Equal(t, "not found", report.Results[1].Reason)
	assert.False(t, report.Failed())
}

func TestOrchestrator_Run_SurfacesDiagnosticTables(t *testing.T) {
	opts, _, embedded, _, _ := testOptions(t)
	embedded.diagnostics = []string{"usageStats", "rateLimitState"}

	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.Final)
	assert.Equal(t, []string{"usageStats", "rateLimitState"}, report.DiagnosticTables)
}

func TestOrchestrator_Run_MissingEmbeddedStoreYieldsNoDiagnostics(t *testing.T) {
	opts, _, embedded, _, _ := testOptions(t)
	embedded.applyErr = fmt.Errorf("%w: state.vscdb", store.ErrNotFound)
	embedded.readErr = fmt.Errorf("%w: state.vscdb", store.ErrNotFound)

	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.DiagnosticTables)
}

func TestOrchestrator_Run_SnapshotCapturesPreviousValues(t *testing.T) {
	opts, canonical, embedded, _, _ := testOptions(t)
	canonical.readSet = ids.Set{
		ids.DevDeviceID: "11111111-1111-4111-8111-111111111111",
		ids.MachineID:   "22222222-2222-4222-8222-222222222222",
	}
	// A value present only in the embedded store still belongs in the
	// snapshot.
	embedded.readSet = ids.Set{
		ids.SqmID: "33333333-3333-4333-8333-333333333333",
	}

	snapshotDir := t.TempDir()
	opts.Backups = backup.NewFileManager(backup.DefaultConfig(snapshotDir))

	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.SnapshotPath)

	data, err := os.ReadFile(report.SnapshotPath)
	require.NoError(t, err)
	var snap map[string]string
	require.NoError(t, json.Unmarshal(data, &snap))

	assert.Equal(t, "11111111-1111-4111-8111-111111111111", snap[string(ids.DevDeviceID)])
	assert.Equal(t, "22222222-2222-4222-8222-222222222222", snap[string(ids.MachineID)])
	assert.Equal(t, "33333333-3333-4333-8333-333333333333", snap[string(ids.SqmID)])

	// Canonical values win over embedded ones; only three were known
	assert.Len(t, snap, 3)
	assert.Equal(t, canonical.readSet[ids.DevDeviceID], report.Previous[ids.DevDeviceID])
}

func TestOrchestrator_Run_SnapshotFailureBlocksEverything(t *testing.T) {
	opts, canonical, _, _, _ := testOptions(t)
	canonical.readSet = ids.Set{
		ids.DevDeviceID: "11111111-1111-4111-8111-111111111111",
	}
	// SnapshotDir left unset makes SnapshotValues fail
	opts.Backups = backup.NewFileManager(backup.Config{})

	o, err := New(opts)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrSnapshotFailed)
	assert.Equal(t, StateAborted, report.Final)
	assert.Equal(t, 0, canonical.applyCalls)
}

// =============================================================================
// End-to-end against real file-backed stores
// =============================================================================

func TestOrchestrator_Run_PreservesUnrelatedJSONKeys(t *testing.T) {
	dir := t.TempDir()
	storagePath := filepath.Join(dir, "storage.json")
	require.NoError(t, os.WriteFile(storagePath, []byte(`{"unrelated.key": "x"}`), 0o644))

	log := logging.Discard()
	backups := backup.NewFileManager(backup.DefaultConfig(dir))
	canonical := store.NewJSONStore(storagePath, backups, log)
	embedded := store.NewSQLiteStore(filepath.Join(dir, "state.vscdb"), log)
	marker := store.NewMarkerStore(filepath.Join(dir, "machineId"), backups, log)

	o, err := New(Options{
		Canonical: canonical,
		Embedded:  embedded,
		Marker:    marker,
		System:    store.NewNoopSystemStore(),
		Guard:     &stubGuard{status: process.Status{State: process.StateNotRunning}},
		Prompter:  &prompt.MockPrompter{Answers: []bool{true}},
		Backups:   backups,
		Generator: ids.NewUUIDGenerator(),
		Catalog:   DefaultCatalog("Cursor"),
		Log:       log,
	})
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, report.Final)

	data, err := os.ReadFile(storagePath)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	// Unrelated key untouched, five fresh well-formed tokens added
	assert.Equal(t, "x", doc["unrelated.key"])
	for _, name := range ids.All() {
		v, ok := doc[string(name)].(string)
		require.True(t, ok, "missing %s", name)
		assert.True(t, ids.IsToken(v), "malformed token for %s: %q", name, v)
	}

	// Outcomes: canonical applied, embedded skipped (missing db),
	// marker applied (created from nothing), system skipped (no-op)
	byKind := map[store.Kind]OperationResult{}
	for _, res := range report.Results {
		byKind[res.Backend] = res
	}
	assert.Equal(t, OutcomeApplied, byKind[store.KindJSON].Outcome)
	assert.Equal(t, OutcomeSkipped, byKind[store.KindEmbeddedKV].Outcome)
	assert.Equal(t, "not found", byKind[store.KindEmbeddedKV].Reason)
	assert.Equal(t, OutcomeApplied, byKind[store.KindMarker].Outcome)
	assert.Equal(t, OutcomeSkipped, byKind[store.KindSystem].Outcome)
}

func TestOrchestrator_Run_EmbeddedStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	storagePath := filepath.Join(dir, "storage.json")
	require.NoError(t, os.WriteFile(storagePath, []byte(`{}`), 0o644))

	dbPath := filepath.Join(dir, "state.vscdb")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE ItemTable (key TEXT PRIMARY KEY, value TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	log := logging.Discard()
	backups := backup.NewFileManager(backup.DefaultConfig(dir))
	embedded := store.NewSQLiteStore(dbPath, log)

	o, err := New(Options{
		Canonical: store.NewJSONStore(storagePath, backups, log),
		Embedded:  embedded,
		Marker:    store.NewMarkerStore(filepath.Join(dir, "machineId"), backups, log),
		System:    store.NewNoopSystemStore(),
		Guard:     &stubGuard{status: process.Status{State: process.StateNotRunning}},
		Prompter:  &prompt.MockPrompter{Answers: []bool{true}},
		Backups:   backups,
		Generator: ids.NewUUIDGenerator(),
		Catalog:   DefaultCatalog("Cursor"),
		Log:       log,
	})
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	// The database now holds exactly the applied set
	got, err := embedded.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Applied, got)
}
