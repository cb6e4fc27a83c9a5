// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"context"
	"time"
)

// RunState is the tri-state answer to "is the target running".
type RunState string

const (
	// StateRunning means at least one matching process was found.
	StateRunning RunState = "running"

	// StateNotRunning means enumeration succeeded and found nothing.
	StateNotRunning RunState = "not-running"

	// StateUnknown means enumeration timed out, failed, or is
	// unsupported on this platform. Callers treat it like
	// not-running but should surface a warning.
	StateUnknown RunState = "unknown"
)

// Status is the result of a guard check.
type Status struct {
	// State is the detection outcome.
	State RunState

	// PID is the first matching process ID, 0 if unavailable.
	PID int
}

// DefaultGuardTimeout bounds a single process enumeration query.
const DefaultGuardTimeout = 5 * time.Second

// Guard answers whether the target application is currently running.
//
// # Description
//
// The check exists because no lower-level locking mechanism protects
// the identifier stores from concurrent writes by the target
// application itself. It is best-effort: any failure or timeout
// degrades to StateUnknown rather than failing the caller, and the
// check has no write side effects, so it is safe to call repeatedly.
type Guard struct {
	proc    Manager
	name    string
	timeout time.Duration
}

// NewGuard creates a guard for the given process name.
//
// A zero timeout selects DefaultGuardTimeout.
func NewGuard(proc Manager, name string, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultGuardTimeout
	}
	return &Guard{proc: proc, name: name, timeout: timeout}
}

// IsTargetRunning queries the OS process list with a bounded timeout.
//
// Never returns an error: timeout, tool failure, and unsupported
// platforms all collapse to StateUnknown.
func (g *Guard) IsTargetRunning(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	running, pid, err := g.proc.IsRunning(ctx, g.name)
	if err != nil {
		return Status{State: StateUnknown}
	}
	if running {
		return Status{State: StateRunning, PID: pid}
	}
	return Status{State: StateNotRunning}
}
