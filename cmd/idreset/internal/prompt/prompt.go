// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt provides the interactive confirmation surface for
// destructive operations.
//
// Every prompt defaults to abort: only an explicit affirmative answer
// lets the caller proceed.
package prompt

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
)

// UserPrompter asks the operator yes/no questions.
type UserPrompter interface {
	// Confirm presents message and returns the operator's answer.
	// Any non-affirmative input, including an input error, must be
	// treated by callers as "no".
	Confirm(ctx context.Context, message string) (bool, error)
}

// HuhPrompter implements UserPrompter with a charmbracelet/huh
// confirm form on the terminal.
type HuhPrompter struct{}

// NewHuhPrompter creates the interactive terminal prompter.
func NewHuhPrompter() *HuhPrompter {
	return &HuhPrompter{}
}

// Confirm presents a yes/no form. The default focus is "No".
func (p *HuhPrompter) Confirm(ctx context.Context, message string) (bool, error) {
	confirmed := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(message).
				Affirmative("Yes").
				Negative("No").
				Value(&confirmed),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return confirmed, nil
}

// AutoApprovePrompter answers yes to everything. Used for --yes runs
// where the operator has pre-approved the reset.
type AutoApprovePrompter struct{}

// NewAutoApprovePrompter creates the non-interactive prompter.
func NewAutoApprovePrompter() *AutoApprovePrompter {
	return &AutoApprovePrompter{}
}

// Confirm always answers yes.
func (p *AutoApprovePrompter) Confirm(ctx context.Context, message string) (bool, error) {
	return true, nil
}

// MockPrompter is a test double for UserPrompter.
//
// Answers are consumed in order; once exhausted, Confirm answers no.
// Messages records every prompt text presented.
type MockPrompter struct {
	Answers  []bool
	Err      error
	Messages []string
}

// Confirm pops the next scripted answer and records the message.
func (m *MockPrompter) Confirm(ctx context.Context, message string) (bool, error) {
	m.Messages = append(m.Messages, message)
	if m.Err != nil {
		return false, m.Err
	}
	if len(m.Answers) == 0 {
		return false, nil
	}
	answer := m.Answers[0]
	m.Answers = m.Answers[1:]
	return answer, nil
}

// Compile-time interface checks
var (
	_ UserPrompter = (*HuhPrompter)(nil)
	_ UserPrompter = (*AutoApprovePrompter)(nil)
	_ UserPrompter = (*MockPrompter)(nil)
)
