// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reset implements the identifier reset orchestrator.
//
// The orchestrator drives a strictly sequential state machine over the
// four storage backends. The canonical JSON document store is applied
// first and decides whether the secondary backends run at all; every
// secondary backend failure is isolated and collected into the final
// report instead of aborting the run.
package reset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/idreset/cmd/idreset/internal/backup"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/ids"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/process"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/prompt"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/store"
	"github.com/AleutianAI/idreset/pkg/logging"
)

// =============================================================================
// States and Outcomes
// =============================================================================

// State is one orchestrator state. Run walks the states strictly in
// order; Aborted and Done are terminal.
type State string

const (
	StateInit                   State = "Init"
	StateDiscoverPaths          State = "DiscoverPaths"
	StateCheckRunningProcess    State = "CheckRunningProcess"
	StateConfirmOrAbort         State = "ConfirmOrAbort"
	StateBackupAll              State = "BackupAll"
	StateGenerateNewIds         State = "GenerateNewIds"
	StateApplyCanonical         State = "ApplyCanonical"
	StateApplySecondaryBackends State = "ApplySecondaryBackends"
	StateReport                 State = "Report"
	StateDone                   State = "Done"
	StateAborted                State = "Aborted"
)

// Outcome classifies one backend's mutation result.
type Outcome string

const (
	// OutcomeApplied means the backend's identifiers were rewritten.
	OutcomeApplied Outcome = "Applied"

	// OutcomeSkipped means the backend was not touched and that is
	// not an error (absent source, unsupported platform, canonical
	// failure upstream).
	OutcomeSkipped Outcome = "Skipped"

	// OutcomeFailed means the backend write was attempted, or blocked
	// by its pre-write backup, and did not complete.
	OutcomeFailed Outcome = "Failed"
)

// OperationResult is one backend's outcome within a run.
type OperationResult struct {
	// Backend identifies the mutated store.
	Backend store.Kind

	// Location is the path or key path the backend owns.
	Location string

	// Outcome classifies the result.
	Outcome Outcome

	// Reason explains Skipped and Failed outcomes.
	Reason string

	// Err carries the underlying failure for Failed outcomes.
	Err error `json:"-"`
}

// Report is the aggregate result of one orchestrator run.
type Report struct {
	// Final is the terminal state, Done or Aborted.
	Final State

	// Results holds one entry per backend, in apply order.
	Results []OperationResult

	// Previous holds the identifier values discovered before the
	// reset (may be partial or empty).
	Previous ids.Set

	// Applied holds the freshly generated identifier set, nil when
	// the run aborted before generation was confirmed.
	Applied ids.Set

	// SnapshotPath is the value-snapshot file written before any
	// mutation, empty when the run aborted first.
	SnapshotPath string

	// Warnings collects non-fatal operator-facing notices.
	Warnings []string

	// DiagnosticTables lists tables in the embedded database whose
	// names suggest usage accounting. Read-only; the reset never
	// touches their rows.
	DiagnosticTables []string

	// Hint is a post-run suggestion for the operator, empty unless
	// at least one backend was applied.
	Hint string
}

// CanonicalFailed reports whether the canonical store failed, which
// short-circuits the secondary backends.
func (r *Report) CanonicalFailed() bool {
	for _, res := range r.Results {
		if res.Backend == store.KindJSON && res.Outcome != OutcomeApplied {
			return true
		}
	}
	return false
}

// Failed reports whether any backend ended in a Failed outcome.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

// =============================================================================
// Errors
// =============================================================================

// ErrNothingToReset means none of the file-backed stores exist, so
// there is no target installation to operate on.
var ErrNothingToReset = errors.New("no target installation found")

// ErrSnapshotFailed means the pre-mutation value snapshot could not be
// written. No backend is mutated in that case.
var ErrSnapshotFailed = errors.New("value snapshot failed")

// =============================================================================
// Collaborator interfaces
// =============================================================================

// CanonicalStore is the JSON document store: a Mutator that can also
// report the previously stored identifier values.
type CanonicalStore interface {
	store.Mutator
	Read() (ids.Set, error)
}

// EmbeddedStore is the key-value database: a Mutator whose current
// values enrich the pre-mutation snapshot and whose table names feed
// the diagnostic report.
type EmbeddedStore interface {
	store.Mutator
	Read(ctx context.Context) (ids.Set, error)
	DiagnosticTables(ctx context.Context) ([]string, error)
}

// RunChecker answers whether the target application is running.
// Satisfied by *process.Guard.
type RunChecker interface {
	IsTargetRunning(ctx context.Context) process.Status
}

// =============================================================================
// Message catalog
// =============================================================================

// MessageCatalog holds the operator-facing strings the orchestrator
// emits. It is passed in as a value so callers can swap wording
// without global state.
type MessageCatalog struct {
	RunningWarning     string
	RunningConfirm     string
	RunStateUnknown    string
	ResetConfirm       string
	CanonicalFailure   string
	NotFound           string
	UnsupportedReason  string
	PermissionDenied   string
	BackupWriteFailed  string
	RestartHint        string
	NothingToResetHint string
}

// DefaultCatalog returns the standard English messages for target
// application name (e.g. "Cursor").
func DefaultCatalog(target string) MessageCatalog {
	return MessageCatalog{
		RunningWarning:     fmt.Sprintf("%s appears to be running. Resetting identifiers while it runs can corrupt its state.", target),
		RunningConfirm:     fmt.Sprintf("Continue even though %s is running?", target),
		RunStateUnknown:    fmt.Sprintf("Could not determine whether %s is running; proceeding as if it is stopped.", target),
		ResetConfirm:       "Overwrite the identifiers above with freshly generated values?",
		CanonicalFailure:   "canonical failure",
		NotFound:           "not found",
		UnsupportedReason:  "no system identifiers on this platform",
		PermissionDenied:   "permission denied",
		BackupWriteFailed:  "backup write failed",
		RestartHint:        fmt.Sprintf("Restart %s so it picks up the new identifiers.", target),
		NothingToResetHint: fmt.Sprintf("No %s installation found at the expected locations.", target),
	}
}

// =============================================================================
// Orchestrator
// =============================================================================

// Options wires an Orchestrator. All fields except Catalog and Log are
// required.
type Options struct {
	Canonical CanonicalStore
	Embedded  EmbeddedStore
	Marker    store.Mutator
	System    store.Mutator
	Guard     RunChecker
	Prompter  prompt.UserPrompter
	Backups   backup.Manager
	Generator ids.Generator
	Catalog   MessageCatalog
	Log       *logging.Logger
}

// Orchestrator sequences one identifier reset run.
//
// # Description
//
// Single-threaded and strictly sequential. The only blocking
// operations are the bounded process check inside the guard and the
// interactive confirmation prompts. Nothing is retried: a failed
// write is reported once and the run moves on (or halts, for the
// canonical store).
type Orchestrator struct {
	canonical CanonicalStore
	embedded  EmbeddedStore
	marker    store.Mutator
	system    store.Mutator
	guard     RunChecker
	prompter  prompt.UserPrompter
	backups   backup.Manager
	gen       ids.Generator
	catalog   MessageCatalog
	log       *logging.Logger

	state State
}

// New creates an Orchestrator from opts.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Canonical == nil:
		return nil, fmt.Errorf("canonical store is required")
	case opts.Embedded == nil:
		return nil, fmt.Errorf("embedded store is required")
	case opts.Marker == nil:
		return nil, fmt.Errorf("marker store is required")
	case opts.System == nil:
		return nil, fmt.Errorf("system store is required")
	case opts.Guard == nil:
		return nil, fmt.Errorf("process guard is required")
	case opts.Prompter == nil:
		return nil, fmt.Errorf("prompter is required")
	case opts.Backups == nil:
		return nil, fmt.Errorf("backup manager is required")
	case opts.Generator == nil:
		return nil, fmt.Errorf("identifier generator is required")
	}

	if opts.Catalog == (MessageCatalog{}) {
		opts.Catalog = DefaultCatalog("the target application")
	}
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}

	return &Orchestrator{
		canonical: opts.Canonical,
		embedded:  opts.Embedded,
		marker:    opts.Marker,
		system:    opts.System,
		guard:     opts.Guard,
		prompter:  opts.Prompter,
		backups:   opts.Backups,
		gen:       opts.Generator,
		catalog:   opts.Catalog,
		log:       opts.Log,
		state:     StateInit,
	}, nil
}

// State returns the orchestrator's current (or terminal) state.
func (o *Orchestrator) State() State { return o.state }

// transition advances the state machine.
func (o *Orchestrator) transition(next State) {
	o.log.Debug("state transition", "from", string(o.state), "to", string(next))
	o.state = next
}

// Run executes the full reset sequence.
//
// # Outputs
//
//   - *Report: Per-backend outcomes plus the previous and applied
//     identifier sets. Non-nil whenever the state machine started,
//     including aborted runs.
//   - error: Non-nil only for run-level failures that prevent the
//     sequence from proceeding at all (no installation found,
//     snapshot write failure, prompt I/O failure). Per-backend apply
//     failures live in the Report, not here.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{Previous: ids.Set{}}

	// DiscoverPaths: the stores were constructed from resolved paths;
	// what remains is verifying there is anything to reset.
	o.transition(StateDiscoverPaths)
	if err := o.checkInstallation(); err != nil {
		o.transition(StateAborted)
		report.Final = StateAborted
		return report, err
	}

	// CheckRunningProcess: a running target gets a confirmation gate;
	// an ambiguous answer is surfaced as a warning and treated as
	// stopped.
	o.transition(StateCheckRunningProcess)
	cont, err := o.checkRunning(ctx, report)
	if err != nil {
		o.transition(StateAborted)
		report.Final = StateAborted
		return report, err
	}
	if !cont {
		o.log.Info("reset aborted at running-process gate")
		o.transition(StateAborted)
		report.Final = StateAborted
		return report, nil
	}

	// ConfirmOrAbort: preview the freshly drawn set and require the
	// second explicit confirmation before anything is mutated.
	// Generation is pure, so drawing the set here (ahead of the
	// GenerateNewIds state) mutates nothing.
	o.transition(StateConfirmOrAbort)
	previous, err := o.canonical.Read()
	if err != nil {
		o.transition(StateAborted)
		report.Final = StateAborted
		return report, fmt.Errorf("failed to read current identifiers: %w", err)
	}
	report.Previous = previous

	fresh := o.gen.Generate()
	ok, err := o.prompter.Confirm(ctx, o.resetPrompt(previous, fresh))
	if err != nil {
		o.transition(StateAborted)
		report.Final = StateAborted
		return report, err
	}
	if !ok {
		o.log.Info("reset declined by operator")
		o.transition(StateAborted)
		report.Final = StateAborted
		return report, nil
	}

	// BackupAll: persist the pre-mutation values. Values present only
	// in the embedded store still belong in the snapshot.
	o.transition(StateBackupAll)
	snapshotSet := previous.Clone()
	if embedded, err := o.embedded.Read(ctx); err == nil {
		snapshotSet.Merge(embedded)
	} else if !errors.Is(err, store.ErrNotFound) {
		o.log.Warn("embedded store unreadable for snapshot", "error", err)
	}

	if len(snapshotSet) > 0 {
		snapshotPath, err := o.backups.SnapshotValues(snapshotSet)
		if err != nil {
			o.transition(StateAborted)
			report.Final = StateAborted
			return report, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
		}
		report.SnapshotPath = snapshotPath
		o.log.Info("identifier values snapshotted", "path", snapshotPath)
	} else {
		o.log.Info("no prior identifier values to snapshot")
	}

	o.transition(StateGenerateNewIds)
	report.Applied = fresh.Clone()

	// ApplyCanonical: the source of truth. Failure here halts the
	// remaining backends.
	o.transition(StateApplyCanonical)
	canonicalResult := o.apply(ctx, o.canonical, fresh)
	report.Results = append(report.Results, canonicalResult)

	o.transition(StateApplySecondaryBackends)
	if canonicalResult.Outcome == OutcomeApplied {
		for _, m := range []store.Mutator{o.embedded, o.marker, o.system} {
			report.Results = append(report.Results, o.apply(ctx, m, fresh))
		}
	} else {
		for _, m := range []store.Mutator{o.embedded, o.marker, o.system} {
			report.Results = append(report.Results, OperationResult{
				Backend:  m.Kind(),
				Location: m.Location(),
				Outcome:  OutcomeSkipped,
				Reason:   o.catalog.CanonicalFailure,
			})
		}
	}

	o.transition(StateReport)
	if tables, err := o.embedded.DiagnosticTables(ctx); err == nil {
		report.DiagnosticTables = tables
	} else if !errors.Is(err, store.ErrNotFound) {
		o.log.Warn("diagnostic table scan failed", "error", err)
	}
	for _, res := range report.Results {
		if res.Outcome == OutcomeApplied {
			report.Hint = o.catalog.RestartHint
			break
		}
	}

	o.transition(StateDone)
	report.Final = StateDone
	return report, nil
}

// checkInstallation fails the run when every file-backed store is
// absent.
func (o *Orchestrator) checkInstallation() error {
	locations := []string{
		o.canonical.Location(),
		o.embedded.Location(),
		o.marker.Location(),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return nil
		}
	}

	return fmt.Errorf("%w: expected one of %s",
		ErrNothingToReset, strings.Join(locations, ", "))
}

// checkRunning evaluates the guard and, for a running target, asks
// the operator whether to continue.
func (o *Orchestrator) checkRunning(ctx context.Context, report *Report) (bool, error) {
	status := o.guard.IsTargetRunning(ctx)

	switch status.State {
	case process.StateRunning:
		o.log.Warn("target application is running", "pid", status.PID)
		report.Warnings = append(report.Warnings, o.catalog.RunningWarning)
		ok, err := o.prompter.Confirm(ctx, o.catalog.RunningConfirm)
		if err != nil {
			return false, err
		}
		return ok, nil
	case process.StateUnknown:
		o.log.Warn("target application run state unknown")
		report.Warnings = append(report.Warnings, o.catalog.RunStateUnknown)
		return true, nil
	default:
		return true, nil
	}
}

// apply invokes one mutator and classifies its result.
func (o *Orchestrator) apply(ctx context.Context, m store.Mutator, set ids.Set) OperationResult {
	result := OperationResult{
		Backend:  m.Kind(),
		Location: m.Location(),
	}

	err := m.Apply(ctx, set)
	switch {
	case err == nil:
		result.Outcome = OutcomeApplied
		o.log.Info("backend applied", "backend", string(m.Kind()))
	case errors.Is(err, store.ErrNotFound):
		result.Outcome = OutcomeSkipped
		result.Reason = o.catalog.NotFound
		o.log.Info("backend skipped", "backend", string(m.Kind()), "reason", result.Reason)
	case errors.Is(err, store.ErrUnsupported):
		result.Outcome = OutcomeSkipped
		result.Reason = o.catalog.UnsupportedReason
		o.log.Info("backend skipped", "backend", string(m.Kind()), "reason", result.Reason)
	case errors.Is(err, store.ErrPermission):
		result.Outcome = OutcomeFailed
		result.Reason = o.catalog.PermissionDenied
		result.Err = err
		o.log.Error("backend failed", "backend", string(m.Kind()), "error", err)
	case errors.Is(err, store.ErrBackupFailed):
		result.Outcome = OutcomeFailed
		result.Reason = o.catalog.BackupWriteFailed
		result.Err = err
		o.log.Error("backend failed", "backend", string(m.Kind()), "error", err)
	default:
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		result.Err = err
		o.log.Error("backend failed", "backend", string(m.Kind()), "error", err)
	}

	return result
}

// resetPrompt renders the confirmation message previewing the old and
// new identifier values.
func (o *Orchestrator) resetPrompt(previous, fresh ids.Set) string {
	var b strings.Builder
	b.WriteString("The following identifiers will be rewritten:\n\n")
	for _, name := range ids.All() {
		old, ok := previous[name]
		if !ok {
			old = "(unset)"
		}
		fmt.Fprintf(&b, "  %s\n    %s -> %s\n", string(name), old, fresh[name])
	}
	b.WriteString("\n")
	b.WriteString(o.catalog.ResetConfirm)
	return b.String()
}
