// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build darwin

package store

import (
	"github.com/AleutianAI/idreset/cmd/idreset/internal/process"
	"github.com/AleutianAI/idreset/pkg/logging"
)

// newPlatformSystemStore selects the macOS implementation backed by
// the real plutil editor.
func newPlatformSystemStore(proc process.Manager, log *logging.Logger) SystemIdentityStore {
	return NewDarwinSystemStore(NewPlutilEditor(proc), DefaultPlatformUUIDPath, log)
}
