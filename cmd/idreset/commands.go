// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/AleutianAI/idreset/pkg/ux"
)

// --- Global Command Variables ---
var (
	assumeYes  bool // Skip the confirmation prompts
	jsonOutput bool // Machine-readable output

	rootCmd = &cobra.Command{
		Use:   "idreset",
		Short: "Reset the machine identifiers a desktop editor uses to fingerprint this installation",
		Long: `idreset rewrites the randomly generated machine identifiers the
target application stores across its JSON settings document, its
embedded key-value database, its machineId marker file, and the
platform registry or property list.

Every store is backed up before it is touched; backups are plain
files next to the originals, restorable by hand.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				ux.SetPlain(true)
			}
		},
	}

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Generate fresh identifiers and apply them to every backend",
		Run:   runResetCommand, // Defined in cmd_reset.go
	}

	pathsCmd = &cobra.Command{
		Use:   "paths",
		Short: "Show the resolved backend store locations for this platform",
		Run:   runPathsCommand, // Defined in cmd_paths.go
	}

	backupsCmd = &cobra.Command{
		Use:   "backups",
		Short: "List the backups and value snapshots written by earlier runs",
		Run:   runBackupsCommand, // Defined in cmd_backups.go
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false,
		"Answer yes to every confirmation prompt")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Emit machine-readable JSON output")

	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(pathsCmd)
	rootCmd.AddCommand(backupsCmd)
}
