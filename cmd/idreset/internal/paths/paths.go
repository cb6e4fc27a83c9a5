// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package paths maps the running platform to the canonical filesystem
// locations of the target application's identifier stores.
//
// Resolution is a pure function of (platform, home, appdata) so tests
// can exercise every platform branch without running on it. Unknown
// platforms fall back to the Linux-style layout.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// Locations holds the resolved storage locations for one platform.
type Locations struct {
	// StorageJSON is the JSON document store (storage.json), the
	// canonical identifier backend.
	StorageJSON string

	// StateDB is the embedded key-value database (state.vscdb).
	StateDB string

	// MarkerFile is the flat machineId marker file.
	MarkerFile string
}

// Resolve maps a platform to its storage locations.
//
// # Description
//
// Pure function with no side effects and no failure modes. The goos
// value follows runtime.GOOS conventions ("windows", "darwin",
// "linux"); anything unrecognized resolves like Linux. On Windows the
// appdata argument takes precedence over the home-derived roaming
// directory, matching how the target application itself resolves
// %APPDATA%.
//
// # Inputs
//
//   - goos: Platform identifier (runtime.GOOS style)
//   - home: User home directory
//   - appdata: Windows %APPDATA% value, may be empty
//
// # Outputs
//
//   - Locations: Resolved store locations for the platform
func Resolve(goos, home, appdata string) Locations {
	switch goos {
	case "windows":
		if appdata == "" {
			appdata = filepath.Join(home, "AppData", "Roaming")
		}
		userDir := filepath.Join(appdata, "Cursor", "User")
		return Locations{
			StorageJSON: filepath.Join(userDir, "globalStorage", "storage.json"),
			StateDB:     filepath.Join(userDir, "globalStorage", "state.vscdb"),
			MarkerFile:  filepath.Join(userDir, "machineId"),
		}
	case "darwin":
		userDir := filepath.Join(home, "Library", "Application Support", "Cursor", "User")
		return Locations{
			StorageJSON: filepath.Join(userDir, "globalStorage", "storage.json"),
			StateDB:     filepath.Join(userDir, "globalStorage", "state.vscdb"),
			MarkerFile:  filepath.Join(userDir, "machineId"),
		}
	default:
		userDir := filepath.Join(home, ".config", "Cursor", "User")
		return Locations{
			StorageJSON: filepath.Join(userDir, "globalStorage", "storage.json"),
			StateDB:     filepath.Join(userDir, "globalStorage", "state.vscdb"),
			MarkerFile:  filepath.Join(userDir, "machineId"),
		}
	}
}

// Default resolves the locations for the current process environment.
func Default() (Locations, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Locations{}, err
	}
	return Resolve(runtime.GOOS, home, os.Getenv("APPDATA")), nil
}
