// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"fmt"
	"strings"
)

// =============================================================================
// Command Error Type
// =============================================================================

// CommandError reports a corrective command that exited non-zero under the
// strict policy.
//
// # Description
//
// Carries the command line, its exit code and its trimmed stderr. Returned
// by Executor.Exec only when the policy is strict; under the lenient policy
// the same failure becomes a printed warning.
//
// # Example
//
//	err := NewCommandError([]string{"npm", "run", "build"}, 1, "missing script: build", nil)
//	fmt.Println(err.Error()) // "npm run build (exit 1): missing script: build"
//
//	var cmdErr *CommandError
//	if errors.As(err, &cmdErr) {
//	    fmt.Println(cmdErr.ExitCode) // 1
//	}
//
// # Thread Safety
//
// CommandError is immutable after creation and safe for concurrent reads.
type CommandError struct {
	// Argv is the command that was executed.
	Argv []string

	// ExitCode is the process exit code (ExitNotStarted if it never ran).
	ExitCode int

	// Stderr contains the standard error output (trimmed).
	Stderr string

	// Wrapped is the underlying error (may be nil).
	Wrapped error
}

// Command returns the space-joined command line.
func (e *CommandError) Command() string {
	return strings.Join(e.Argv, " ")
}

// Error returns "cmd (exit N): stderr", falling back to the wrapped error.
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command(), e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command(), e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command(), e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// NewCommandError creates a CommandError. Stderr is trimmed.
func NewCommandError(argv []string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Argv:     append([]string(nil), argv...),
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}

var _ error = (*CommandError)(nil)
