// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package process runs external commands for the diagnostic steps.
//
// Commands are always argument lists handed to os/exec; nothing is ever
// interpolated into a shell string. Runner is the raw execution seam
// (DefaultRunner in production, MockRunner in tests) and Executor layers
// the strict or lenient error policy on top of it.
package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrEmptyCommand is returned when a Runner is handed an empty argv.
var ErrEmptyCommand = errors.New("empty command")

// ExitNotStarted is the exit code reported for a command that could not be
// started at all, typically because it is not on PATH.
const ExitNotStarted = -1

// ExitTimedOut is the exit code reported when command_timeout expires,
// following the coreutils timeout(1) convention.
const ExitTimedOut = 124

// Result is the outcome of one command.
type Result struct {
	Argv     []string      `json:"argv"`
	Stdout   string        `json:"-"`
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration_ns"`
}

// Succeeded reports whether the command exited with code 0.
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Runner executes a single command to completion.
//
// # Description
//
// Run executes argv[0] with the remaining elements as arguments, using dir
// as the working directory, and waits for it to exit. Stdout and stderr are
// captured separately.
//
// A command that ran and exited non-zero is NOT an error: it is reported
// through Result.ExitCode. A command that could not be started is also
// reported through the Result (ExitCode = ExitNotStarted, Stderr = the start
// error) so that policies treat "not found" and "failed" alike.
//
// # Outputs
//
//   - *Result: always non-nil when error is nil
//   - error: ErrEmptyCommand, or the context error when ctx is done
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, dir string, argv []string) (*Result, error)
}

// -----------------------------------------------------------------------------
// Production Implementation
// -----------------------------------------------------------------------------

// DefaultRunner implements Runner using os/exec.
type DefaultRunner struct{}

// NewDefaultRunner creates a Runner that executes real processes.
func NewDefaultRunner() *DefaultRunner {
	return &DefaultRunner{}
}

// Run executes argv in dir and waits for completion.
func (r *DefaultRunner) Run(ctx context.Context, dir string, argv []string) (*Result, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Argv:     append([]string(nil), argv...),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = exitCodeOf(err)
		return res, ctxErr
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			if res.ExitCode <= 0 {
				// killed by a signal
				res.ExitCode = 1
			}
		} else {
			res.ExitCode = ExitNotStarted
			res.Stderr = appendLine(res.Stderr, err.Error())
		}
	}
	return res, nil
}

func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	if err == nil {
		return 0
	}
	return ExitNotStarted
}

func appendLine(existing, line string) string {
	if existing == "" {
		return line
	}
	return strings.TrimRight(existing, "\n") + "\n" + line
}

// -----------------------------------------------------------------------------
// Mock Implementation
// -----------------------------------------------------------------------------

// Call records one MockRunner invocation.
type Call struct {
	Dir  string
	Argv []string
}

// MockRunner implements Runner for tests.
//
// # Examples
//
//	mock := &process.MockRunner{
//	    RunFunc: process.Script(map[string]int{"vercel --version": 127}),
//	}
//	// ... exercise code ...
//	assert.Equal(t, [][]string{{"vercel", "--version"}, {"npm", "install", "-g", "vercel"}}, mock.Argvs())
type MockRunner struct {
	// RunFunc is called when Run is invoked. Nil means every command
	// succeeds with empty output.
	RunFunc func(ctx context.Context, dir string, argv []string) (*Result, error)

	// Calls records all invocations for verification
	Calls []Call

	mu sync.Mutex
}

// Run records the call and delegates to RunFunc.
func (m *MockRunner) Run(ctx context.Context, dir string, argv []string) (*Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Dir: dir, Argv: append([]string(nil), argv...)})
	m.mu.Unlock()

	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	if m.RunFunc == nil {
		return &Result{Argv: argv}, nil
	}
	return m.RunFunc(ctx, dir, argv)
}

// Argvs returns a copy of the argv of every recorded call, in order.
func (m *MockRunner) Argvs() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Argv
	}
	return out
}

// Reset clears all recorded calls.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// Script returns a RunFunc that answers from a table keyed by the
// space-joined argv. Commands not in the table exit 0. A non-zero code
// gets a synthetic stderr line.
func Script(exitCodes map[string]int) func(context.Context, string, []string) (*Result, error) {
	return func(_ context.Context, _ string, argv []string) (*Result, error) {
		key := strings.Join(argv, " ")
		code := exitCodes[key]
		res := &Result{Argv: argv, ExitCode: code}
		if code != 0 {
			res.Stderr = key + ": failed"
		}
		return res, nil
	}
}

// Compile-time interface satisfaction checks
var (
	_ Runner = (*DefaultRunner)(nil)
	_ Runner = (*MockRunner)(nil)
)
