// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDGenerator_Generate_CompleteAndWellFormed(t *testing.T) {
	gen := NewUUIDGenerator()
	set := gen.Generate()

	require.Len(t, set, len(All()))
	require.True(t, set.Complete())

	for _, name := range All() {
		assert.True(t, IsToken(set[name]), "identifier %s = %q is not a canonical token", name, set[name])
	}
}

func TestUUIDGenerator_Generate_PairwiseDistinct(t *testing.T) {
	set := NewUUIDGenerator().Generate()

	seen := make(map[string]Name, len(set))
	for name, value := range set {
		prev, dup := seen[value]
		require.False(t, dup, "identifiers %s and %s share value %q", prev, name, value)
		seen[value] = name
	}
}

func TestUUIDGenerator_Generate_SuccessiveSetsDisjoint(t *testing.T) {
	gen := NewUUIDGenerator()
	first := gen.Generate()
	second := gen.Generate()

	for _, name := range All() {
		assert.NotEqual(t, first[name], second[name], "identifier %s reused across generations", name)
	}
}

func TestIsToken(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"canonical", "01234567-89ab-cdef-0123-456789abcdef", true},
		{"uppercase rejected", "01234567-89AB-CDEF-0123-456789ABCDEF", false},
		{"too short", "01234567-89ab-cdef-0123-456789abcde", false},
		{"missing groups", "0123456789abcdef0123456789abcdef", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsToken(tt.value))
		})
	}
}

func TestSet_Merge_OnlyFillsMissing(t *testing.T) {
	s := Set{DevDeviceID: "keep-me"}
	s.Merge(Set{
		DevDeviceID: "ignored",
		MachineID:   "filled",
	})

	assert.Equal(t, "keep-me", s[DevDeviceID])
	assert.Equal(t, "filled", s[MachineID])
}

func TestSet_Complete_PartialSet(t *testing.T) {
	s := Set{DevDeviceID: "x"}
	assert.False(t, s.Complete())
}

func TestMockGenerator_RecordsCalls(t *testing.T) {
	fixed := Set{DevDeviceID: "fixed"}
	mock := &MockGenerator{GenerateFunc: func() Set { return fixed }}

	got := mock.Generate()

	assert.Equal(t, fixed, got)
	assert.Equal(t, 1, mock.Calls)
}
