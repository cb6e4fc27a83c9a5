// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"github.com/AleutianAI/idreset/cmd/idreset/internal/paths"
)

type IdresetConfig struct {
	// Target: the application whose identifiers are reset
	Target TargetConfig `yaml:"target"`

	// Paths: backend store locations; empty values fall back to the
	// platform defaults at load time
	Paths PathsConfig `yaml:"paths"`

	// Backups: snapshot location and retention
	Backups BackupsConfig `yaml:"backups"`

	// Logging: level and optional log directory
	Logging LoggingConfig `yaml:"logging"`
}

type TargetConfig struct {
	Name    string `yaml:"name"`    // e.g. Cursor (display name)
	Process string `yaml:"process"` // e.g. Cursor (process image name, no .exe)
}

type PathsConfig struct {
	StorageJSON string `yaml:"storage_json"`
	StateDB     string `yaml:"state_db"`
	MarkerFile  string `yaml:"marker_file"`
}

type BackupsConfig struct {
	// Dir is where value snapshots are written. Empty means the
	// directory holding the canonical store.
	Dir        string `yaml:"dir,omitempty"`
	MaxBackups int    `yaml:"max_backups"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir,omitempty"`
}

// DefaultConfig returns a config pre-filled with the platform's
// canonical store locations.
func DefaultConfig() IdresetConfig {
	cfg := IdresetConfig{
		Target: TargetConfig{
			Name:    "Cursor",
			Process: "Cursor",
		},
		Backups: BackupsConfig{
			MaxBackups: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if loc, err := paths.Default(); err == nil {
		cfg.Paths = PathsConfig{
			StorageJSON: loc.StorageJSON,
			StateDB:     loc.StateDB,
			MarkerFile:  loc.MarkerFile,
		}
	}

	return cfg
}

// Locations converts the configured paths to a paths.Locations,
// filling any empty entry from the platform defaults.
func (c IdresetConfig) Locations() paths.Locations {
	loc := paths.Locations{
		StorageJSON: c.Paths.StorageJSON,
		StateDB:     c.Paths.StateDB,
		MarkerFile:  c.Paths.MarkerFile,
	}

	if loc.StorageJSON == "" || loc.StateDB == "" || loc.MarkerFile == "" {
		if defaults, err := paths.Default(); err == nil {
			if loc.StorageJSON == "" {
				loc.StorageJSON = defaults.StorageJSON
			}
			if loc.StateDB == "" {
				loc.StateDB = defaults.StateDB
			}
			if loc.MarkerFile == "" {
				loc.MarkerFile = defaults.MarkerFile
			}
		}
	}

	return loc
}
