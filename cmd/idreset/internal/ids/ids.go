// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ids defines the closed set of machine identifiers managed by
// idreset and generates fresh replacement values for them.
//
// The five identifier names map one-to-one onto the storage keys the
// target application persists in its JSON document store and its
// embedded key-value database. Keeping the enumeration closed lets
// every backend iterate "all identifiers" without string-keyed maps
// drifting out of sync.
package ids

import (
	"regexp"

	"github.com/google/uuid"
)

// Name is a logical machine identifier managed by idreset.
//
// The string value of a Name is the exact storage key used by both the
// JSON document store and the embedded key-value store, so a Name can
// be written to either backend without translation.
type Name string

const (
	// DevDeviceID is the per-install device identifier. Its value is
	// also mirrored into the flat machineId marker file and, on
	// Windows, the Cryptography MachineGuid registry value.
	DevDeviceID Name = "telemetry.devDeviceId"

	// MacMachineID is the macOS machine identifier. On macOS it is
	// also mirrored into the platform UUID property list.
	MacMachineID Name = "telemetry.macMachineId"

	// MachineID is the general telemetry machine identifier.
	MachineID Name = "telemetry.machineId"

	// SqmID is the SQM telemetry identifier. On Windows it is also
	// mirrored into the SQMClient MachineId registry value.
	SqmID Name = "telemetry.sqmId"

	// ServiceMachineID is the service-scoped machine identifier.
	ServiceMachineID Name = "storage.serviceMachineId"
)

// All returns every managed identifier name in a fixed order.
//
// The order is stable so backends apply and report identifiers
// deterministically.
func All() []Name {
	return []Name{
		DevDeviceID,
		MacMachineID,
		MachineID,
		SqmID,
		ServiceMachineID,
	}
}

// Set maps identifier names to their token values.
//
// A Set produced by Generate is always complete (all five names
// present). A Set read back from a backend may be partial: backends
// are allowed to lack keys they never stored.
type Set map[Name]string

// Complete reports whether every managed identifier has a non-empty
// value in the set.
func (s Set) Complete() bool {
	for _, name := range All() {
		if s[name] == "" {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge copies values from other into s for keys s does not already
// hold a non-empty value for. Used when assembling a backup snapshot
// from more than one backend.
func (s Set) Merge(other Set) {
	for k, v := range other {
		if s[k] == "" && v != "" {
			s[k] = v
		}
	}
}

// tokenPattern matches the canonical 36-character lowercase UUID form
// (8-4-4-4-12 hex groups) every generated token uses.
var tokenPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// IsToken reports whether v has the canonical token format.
func IsToken(v string) bool {
	return tokenPattern.MatchString(v)
}

// Generator produces fresh identifier sets.
//
// # Description
//
// The default generator draws UUID-v4 values (122 bits of entropy per
// token). Collision with a previous run is probabilistically
// negligible; no history is consulted.
//
// # Thread Safety
//
// Generators must be safe for concurrent use. The default generator
// is stateless.
type Generator interface {
	// Generate returns a complete identifier set with five
	// independently drawn tokens.
	Generate() Set
}

// UUIDGenerator implements Generator using github.com/google/uuid.
type UUIDGenerator struct{}

// NewUUIDGenerator creates the production identifier generator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// Generate returns a complete set of fresh UUID-v4 tokens.
func (g *UUIDGenerator) Generate() Set {
	set := make(Set, len(All()))
	for _, name := range All() {
		set[name] = uuid.NewString()
	}
	return set
}

// MockGenerator is a test double for Generator.
//
// Configure GenerateFunc before use; Calls counts invocations.
type MockGenerator struct {
	GenerateFunc func() Set
	Calls        int
}

// Generate delegates to GenerateFunc and records the call.
func (m *MockGenerator) Generate() Set {
	m.Calls++
	if m.GenerateFunc == nil {
		panic("MockGenerator.GenerateFunc not set")
	}
	return m.GenerateFunc()
}

// Compile-time interface compliance check.
var (
	_ Generator = (*UUIDGenerator)(nil)
	_ Generator = (*MockGenerator)(nil)
)
