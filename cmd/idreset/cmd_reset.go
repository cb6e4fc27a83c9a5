// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/idreset/cmd/idreset/config"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/backup"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/ids"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/process"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/prompt"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/reset"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/store"
	"github.com/AleutianAI/idreset/pkg/logging"
	"github.com/AleutianAI/idreset/pkg/ux"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runResetCommand wires the orchestrator from config and executes one
// reset run.
//
// # Description
//
// The run is strictly sequential: installation check, process guard,
// two confirmation gates, value snapshot, then the four backend
// mutators with the canonical JSON store first. Exit code 1 means at
// least one backend failed or the run could not start; a declined
// confirmation exits 0.
func runResetCommand(cmd *cobra.Command, args []string) {
	if err := config.Load(); err != nil {
		ux.Error(fmt.Sprintf("Configuration could not be loaded: %v", err))
		os.Exit(1)
	}
	cfg := config.Global

	log := logging.New(logging.Config{
		Level:   parseLogLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "idreset",
		Quiet:   jsonOutput,
	})
	defer log.Close()

	loc := cfg.Locations()

	snapshotDir := cfg.Backups.Dir
	if snapshotDir == "" {
		snapshotDir = filepath.Dir(loc.StorageJSON)
	}
	backupCfg := backup.DefaultConfig(snapshotDir)
	if cfg.Backups.MaxBackups > 0 {
		backupCfg.MaxBackups = cfg.Backups.MaxBackups
	}
	backups := backup.NewFileManager(backupCfg)

	proc := process.NewDefaultManager()
	guard := process.NewGuard(proc, cfg.Target.Process, process.DefaultGuardTimeout)

	var prompter prompt.UserPrompter = prompt.NewHuhPrompter()
	if assumeYes {
		prompter = prompt.NewAutoApprovePrompter()
	}

	orchestrator, err := reset.New(reset.Options{
		Canonical: store.NewJSONStore(loc.StorageJSON, backups, log),
		Embedded:  store.NewSQLiteStore(loc.StateDB, log),
		Marker:    store.NewMarkerStore(loc.MarkerFile, backups, log),
		System:    store.NewSystemIdentityStore(proc, log),
		Guard:     guard,
		Prompter:  prompter,
		Backups:   backups,
		Generator: ids.NewUUIDGenerator(),
		Catalog:   reset.DefaultCatalog(cfg.Target.Name),
		Log:       log,
	})
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	report, err := orchestrator.Run(cmd.Context())
	if err != nil {
		if errors.Is(err, reset.ErrNothingToReset) {
			ux.Error(err.Error())
		} else {
			ux.Error(fmt.Sprintf("Reset could not proceed: %v", err))
		}
		os.Exit(1)
	}

	if jsonOutput {
		renderReportJSON(report)
	} else {
		renderReport(cfg.Target.Name, report)
	}

	if report.Failed() {
		os.Exit(1)
	}
}

// =============================================================================
// REPORT RENDERING
// =============================================================================

// renderReport prints the human-readable run summary.
func renderReport(target string, report *reset.Report) {
	if report.Final == reset.StateAborted {
		ux.Warning("Reset aborted; nothing was changed.")
		return
	}

	ux.Title(fmt.Sprintf("%s identifier reset", target))

	for _, warning := range report.Warnings {
		ux.Warning(warning)
	}

	applied, skipped, failed := 0, 0, 0
	for _, res := range report.Results {
		switch res.Outcome {
		case reset.OutcomeApplied:
			applied++
			ux.BackendStatus(describeBackend(res), ux.IconSuccess, "")
		case reset.OutcomeSkipped:
			skipped++
			ux.BackendStatus(describeBackend(res), ux.IconPending, res.Reason)
		case reset.OutcomeFailed:
			failed++
			ux.BackendStatus(describeBackend(res), ux.IconError, res.Reason)
		}
	}

	ux.Summary(applied, skipped, failed)

	if report.SnapshotPath != "" {
		ux.Muted(fmt.Sprintf("Previous values saved to %s", report.SnapshotPath))
	}
	if len(report.DiagnosticTables) > 0 {
		ux.Muted(fmt.Sprintf("State database retains usage tables (not modified): %s",
			strings.Join(report.DiagnosticTables, ", ")))
	}
	if report.Hint != "" {
		ux.Info(report.Hint)
	}
}

// renderReportJSON prints the report as a single JSON document.
func renderReportJSON(report *reset.Report) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
	}
}

// describeBackend renders one result's backend and location.
func describeBackend(res reset.OperationResult) string {
	switch res.Backend {
	case store.KindJSON:
		return fmt.Sprintf("settings document  %s", res.Location)
	case store.KindEmbeddedKV:
		return fmt.Sprintf("state database     %s", res.Location)
	case store.KindMarker:
		return fmt.Sprintf("machine id marker  %s", res.Location)
	case store.KindSystem:
		return fmt.Sprintf("system identifiers %s", res.Location)
	default:
		return fmt.Sprintf("%s %s", res.Backend, res.Location)
	}
}

// parseLogLevel maps the config string to a logging level.
func parseLogLevel(level string) logging.Level {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
