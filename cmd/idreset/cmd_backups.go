// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/idreset/cmd/idreset/config"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/backup"
	"github.com/AleutianAI/idreset/pkg/ux"
)

// runBackupsCommand lists the whole-file backups earlier runs wrote
// next to each store.
func runBackupsCommand(cmd *cobra.Command, args []string) {
	if err := config.Load(); err != nil {
		ux.Error(fmt.Sprintf("Configuration could not be loaded: %v", err))
		os.Exit(1)
	}
	cfg := config.Global
	loc := cfg.Locations()

	snapshotDir := cfg.Backups.Dir
	if snapshotDir == "" {
		snapshotDir = filepath.Dir(loc.StorageJSON)
	}
	backups := backup.NewFileManager(backup.DefaultConfig(snapshotDir))

	var all []backup.Info
	for _, path := range []string{loc.StorageJSON, loc.StateDB, loc.MarkerFile} {
		infos, err := backups.ListBackups(path)
		if err != nil {
			ux.Warning(fmt.Sprintf("Could not list backups for %s: %v", path, err))
			continue
		}
		all = append(all, infos...)
	}

	snapshots, err := backups.ListSnapshots()
	if err != nil {
		ux.Warning(fmt.Sprintf("Could not list value snapshots: %v", err))
	} else {
		all = append(all, snapshots...)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(all)
		return
	}

	if len(all) == 0 {
		ux.Muted("No backups found.")
		return
	}

	ux.Title("Backups")
	for _, info := range all {
		ux.BackendStatus(
			fmt.Sprintf("%s  %s  (%d bytes)",
				info.CreatedAt.Format("2006-01-02 15:04:05"), info.Path, info.Size),
			ux.IconBullet, "")
	}
}
