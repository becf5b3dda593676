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
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/deploydiag/cmd/deploydiag/config"
	"github.com/AleutianAI/deploydiag/pkg/logging"
	"github.com/AleutianAI/deploydiag/pkg/ux"
)

// Executor runs corrective commands under an error policy.
//
// # Description
//
// One procedure serves both policies:
//
//	strict:  print stdout; non-zero exit -> *CommandError (run aborts)
//	lenient: print stdout; non-zero exit -> warning with stderr, continue
//
// Either way the Result carrying the exit code is returned so callers can
// branch on it (the deploy-tool check installs iff the version query fails).
//
// # Limitations
//
//   - No retries. A failed command is run exactly once.
//   - Output is printed after the command exits, not streamed.
type Executor struct {
	Runner  Runner
	Policy  config.Policy
	Dir     string
	Timeout time.Duration
	DryRun  bool
	Printer *ux.Printer
	Logger  *logging.Logger
}

// Exec runs argv in the project directory and applies the policy.
//
// # Inputs
//
//   - ctx: parent context; cancelling it aborts the run under both policies
//   - argv: command and arguments, never a shell string
//
// # Outputs
//
//   - *Result: the outcome, non-nil unless argv is empty or ctx was cancelled
//   - error: *CommandError (strict only), ErrEmptyCommand, or ctx.Err()
//
// # Examples
//
//	res, err := exec.Exec(ctx, []string{"vercel", "--version"})
//	if err != nil {
//	    return err // strict failure
//	}
//	if !res.Succeeded() {
//	    // lenient failure, warning already printed
//	}
func (e *Executor) Exec(ctx context.Context, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	logger := e.logger().With("argv", strings.Join(argv, " "))

	e.printer().Command(argv)
	if e.DryRun {
		logger.Debug("dry run, command not executed")
		return &Result{Argv: argv}, nil
	}

	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	spin := e.printer().StartSpinner(strings.Join(argv, " "))
	res, err := e.Runner.Run(runCtx, e.Dir, argv)
	spin.Stop()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && res != nil {
			res.ExitCode = ExitTimedOut
			res.Stderr = appendLine(res.Stderr, fmt.Sprintf("command timed out after %s", e.Timeout))
		} else {
			logger.Error("command aborted", "error", err)
			return res, err
		}
	}

	logger.Info("command finished",
		"exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds(),
	)

	e.printer().Raw(res.Stdout)
	if res.Succeeded() {
		return res, nil
	}

	if e.Policy == config.PolicyStrict {
		return res, NewCommandError(argv, res.ExitCode, res.Stderr, nil)
	}

	msg := fmt.Sprintf("%s exited with code %d", strings.Join(argv, " "), res.ExitCode)
	if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	e.printer().Warning(msg)
	logger.Warn("command failed, continuing", "exit_code", res.ExitCode)
	return res, nil
}

// WithPolicy returns a copy of e that applies policy instead.
func (e *Executor) WithPolicy(policy config.Policy) *Executor {
	c := *e
	c.Policy = policy
	return &c
}

func (e *Executor) printer() *ux.Printer {
	if e.Printer == nil {
		e.Printer = ux.NewPrinter()
	}
	return e.Printer
}

func (e *Executor) logger() *logging.Logger {
	if e.Logger == nil {
		e.Logger = logging.Discard()
	}
	return e.Logger
}
