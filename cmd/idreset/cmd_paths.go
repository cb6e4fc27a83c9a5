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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/idreset/cmd/idreset/config"
	"github.com/AleutianAI/idreset/pkg/ux"
)

// runPathsCommand prints the resolved backend locations and whether
// each one currently exists.
func runPathsCommand(cmd *cobra.Command, args []string) {
	if err := config.Load(); err != nil {
		ux.Error(fmt.Sprintf("Configuration could not be loaded: %v", err))
		os.Exit(1)
	}

	loc := config.Global.Locations()

	entries := []struct {
		Name   string `json:"name"`
		Path   string `json:"path"`
		Exists bool   `json:"exists"`
	}{
		{"storage_json", loc.StorageJSON, fileExists(loc.StorageJSON)},
		{"state_db", loc.StateDB, fileExists(loc.StateDB)},
		{"marker_file", loc.MarkerFile, fileExists(loc.MarkerFile)},
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(entries)
		return
	}

	ux.Title(fmt.Sprintf("%s store locations", config.Global.Target.Name))
	for _, e := range entries {
		icon := ux.IconSuccess
		note := ""
		if !e.Exists {
			icon = ux.IconPending
			note = "absent"
		}
		ux.BackendStatus(e.Path, icon, note)
	}
}

// fileExists reports whether path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
