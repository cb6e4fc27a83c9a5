// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build windows

package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows/registry"

	"github.com/AleutianAI/idreset/cmd/idreset/internal/ids"
	"github.com/AleutianAI/idreset/cmd/idreset/internal/process"
	"github.com/AleutianAI/idreset/pkg/logging"
)

// WindowsSystemStore rewrites the two machine identifiers Windows
// keeps in the registry: the cryptography MachineGuid and the SQM
// client MachineId. Both live under HKLM and require elevated write
// access.
type WindowsSystemStore struct {
	log *logging.Logger
}

// NewWindowsSystemStore creates the Windows system store.
func NewWindowsSystemStore(log *logging.Logger) *WindowsSystemStore {
	return &WindowsSystemStore{log: log}
}

// Kind identifies the backend technology.
func (s *WindowsSystemStore) Kind() Kind { return KindSystem }

// Location returns the registry key paths for reporting.
func (s *WindowsSystemStore) Location() string {
	return `HKLM\SOFTWARE\Microsoft\Cryptography, HKLM\SOFTWARE\Microsoft\SQMClient`
}

// Apply writes the two registry values.
//
// The SQMClient key is absent on some installs; that is reported as
// not-found only when the MachineGuid write also cannot proceed,
// otherwise the partial state is an error carrying the missing key.
func (s *WindowsSystemStore) Apply(ctx context.Context, set ids.Set) error {
	guid, ok := set[ids.DevDeviceID]
	if !ok || guid == "" {
		return fmt.Errorf("identifier set is missing %s", ids.DevDeviceID)
	}
	sqm, ok := set[ids.SqmID]
	if !ok || sqm == "" {
		return fmt.Errorf("identifier set is missing %s", ids.SqmID)
	}

	if err := s.setValue(`SOFTWARE\Microsoft\Cryptography`, "MachineGuid", guid); err != nil {
		return err
	}
	s.log.Info("registry MachineGuid updated")

	if err := s.setValue(`SOFTWARE\Microsoft\SQMClient`, "MachineId", sqm); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Some installs never created the SQMClient key.
			s.log.Warn("SQMClient key not found, skipping MachineId", "error", err)
			return nil
		}
		return err
	}
	s.log.Info("registry SQMClient MachineId updated")

	return nil
}

// setValue writes one string value under HKLM, classifying permission
// and missing-key failures.
func (s *WindowsSystemStore) setValue(keyPath, name, value string) error {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, keyPath,
		registry.SET_VALUE|registry.WOW64_64KEY)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf(`%w: HKLM\%s`, ErrPermission, keyPath)
		}
		if errors.Is(err, registry.ErrNotExist) {
			return fmt.Errorf(`%w: HKLM\%s`, ErrNotFound, keyPath)
		}
		return fmt.Errorf(`failed to open HKLM\%s: %w`, keyPath, err)
	}
	defer key.Close()

	if err := key.SetStringValue(name, value); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf(`%w: HKLM\%s!%s`, ErrPermission, keyPath, name)
		}
		return fmt.Errorf(`failed to set HKLM\%s!%s: %w`, keyPath, name, err)
	}

	return nil
}

// newPlatformSystemStore selects the Windows implementation.
func newPlatformSystemStore(proc process.Manager, log *logging.Logger) SystemIdentityStore {
	return NewWindowsSystemStore(log)
}

// Compile-time interface check
var _ SystemIdentityStore = (*WindowsSystemStore)(nil)
