// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package process abstracts external process enumeration and execution.

All exec.Command calls in the reset path go through the Manager
interface so tests can verify behavior without spawning real
processes or depending on what happens to be running on the build
host.
*/
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Manager handles external process operations.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple
// goroutines.
//
// # Context Handling
//
// All methods accept a context.Context; callers bound process queries
// with a timeout and implementations must respect cancellation.
type Manager interface {
	// Run executes a command synchronously and returns its stdout.
	//
	// Stderr is folded into the returned error on failure.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// IsRunning checks whether a process matching the given name is
	// currently executing.
	//
	// # Outputs
	//
	//   - bool: True if at least one matching process is running
	//   - int: PID of the first match (0 if unavailable)
	//   - error: Non-nil only if detection itself failed; "no match"
	//     is (false, 0, nil)
	IsRunning(ctx context.Context, name string) (bool, int, error)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultManager implements Manager using os/exec.
//
// Process detection uses tasklist on Windows and pgrep everywhere
// else. Use MockManager in tests instead.
type DefaultManager struct{}

// NewDefaultManager creates a Manager that executes real processes.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// Run executes a command synchronously and returns its stdout.
func (m *DefaultManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// IsRunning checks whether a process matching name is executing.
func (m *DefaultManager) IsRunning(ctx context.Context, name string) (bool, int, error) {
	if runtime.GOOS == "windows" {
		return m.isRunningWindows(ctx, name)
	}
	return m.isRunningUnix(ctx, name)
}

// isRunningUnix detects the process with pgrep -i (case-insensitive
// name match, matching how the target application names its binary
// across distributions).
func (m *DefaultManager) isRunningUnix(ctx context.Context, name string) (bool, int, error) {
	output, err := m.Run(ctx, "pgrep", "-i", name)
	if err != nil {
		// pgrep exits 1 when nothing matched. That is a clean
		// "not running", not a detection failure.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("pgrep failed: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) > 0 && lines[0] != "" {
		pid, convErr := strconv.Atoi(strings.TrimSpace(lines[0]))
		if convErr != nil {
			return true, 0, nil
		}
		return true, pid, nil
	}

	return false, 0, nil
}

// isRunningWindows detects the process with tasklist CSV output
// filtered on the image name.
func (m *DefaultManager) isRunningWindows(ctx context.Context, name string) (bool, int, error) {
	image := name
	if !strings.HasSuffix(strings.ToLower(image), ".exe") {
		image += ".exe"
	}

	output, err := m.Run(ctx, "tasklist", "/FI", fmt.Sprintf("IMAGENAME eq %s", image), "/FO", "CSV")
	if err != nil {
		return false, 0, fmt.Errorf("tasklist failed: %w", err)
	}

	return parseTasklistCSV(string(output), image)
}

// parseTasklistCSV extracts the first matching PID from tasklist CSV
// output. Format: "Image Name","PID","Session Name","Session#","Mem Usage".
func parseTasklistCSV(output, image string) (bool, int, error) {
	if !strings.Contains(output, image) {
		return false, 0, nil
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	for _, line := range lines[1:] {
		fields := strings.Split(line, `","`)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.Trim(fields[1], `"`))
		if err != nil {
			return true, 0, nil
		}
		return true, pid, nil
	}

	return true, 0, nil
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockManager is a test double for Manager.
//
// Configure the mock by setting function fields before use. If a
// function field is nil and the corresponding method is called, it
// panics.
type MockManager struct {
	// RunFunc is called when Run is invoked
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// IsRunningFunc is called when IsRunning is invoked
	IsRunningFunc func(ctx context.Context, name string) (bool, int, error)

	// Calls records all method invocations for verification
	Calls []ManagerCall

	// mu protects Calls for concurrent access
	mu sync.Mutex
}

// ManagerCall records a single method invocation.
type ManagerCall struct {
	Method string
	Name   string
	Args   []string
}

// Run delegates to RunFunc and records the call.
func (m *MockManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ManagerCall{Method: "Run", Name: name, Args: args})
	m.mu.Unlock()
	if m.RunFunc == nil {
		panic("MockManager.RunFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// IsRunning delegates to IsRunningFunc and records the call.
func (m *MockManager) IsRunning(ctx context.Context, name string) (bool, int, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ManagerCall{Method: "IsRunning", Name: name})
	m.mu.Unlock()
	if m.IsRunningFunc == nil {
		panic("MockManager.IsRunningFunc not set")
	}
	return m.IsRunningFunc(ctx, name)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockManager) GetCalls() []ManagerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ManagerCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Compile-time interface compliance check.
var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
