// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoApprovePrompter_AlwaysYes(t *testing.T) {
	p := NewAutoApprovePrompter()

	for i := 0; i < 3; i++ {
		ok, err := p.Confirm(context.Background(), "proceed?")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestMockPrompter_ScriptedAnswers(t *testing.T) {
	p := &MockPrompter{Answers: []bool{true, false}}

	ok, err := p.Confirm(context.Background(), "first")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Confirm(context.Background(), "second")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"first", "second"}, p.Messages)
}

func TestMockPrompter_ExhaustedAnswersDefaultNo(t *testing.T) {
	p := &MockPrompter{}

	ok, err := p.Confirm(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMockPrompter_Error(t *testing.T) {
	p := &MockPrompter{Err: errors.New("terminal closed"), Answers: []bool{true}}

	ok, err := p.Confirm(context.Background(), "proceed?")
	assert.Error(t, err)
	assert.False(t, ok)
}
