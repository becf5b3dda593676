// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess = 0 // Diagnosis completed (lenient runs always end here)
	CLIExitFailure = 1 // Strict command failure or scaffold error
	CLIExitConfig  = 2 // Invalid flags or configuration
)

// APIVersion is the version of the JSON envelope.
const APIVersion = "1.0"

// CommandResult wraps command output with metadata for --json.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	TraceID    string    `json:"trace_id,omitempty"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// OutputJSON writes data as indented JSON.
func OutputJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// newResult builds the envelope for a finished command.
func newResult(command string, start time.Time, data any, err error) CommandResult {
	result := CommandResult{
		APIVersion: APIVersion,
		Command:    command,
		Timestamp:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    err == nil,
		Data:       data,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// exitError carries an exit code out of a cobra RunE.
type exitError struct {
	code int
	err  error
	// reported is set when the error was already shown to the user.
	reported bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error {
	return &exitError{code: CLIExitConfig, err: err}
}

func failure(err error, reported bool) error {
	return &exitError{code: CLIExitFailure, err: err, reported: reported}
}

// exitCode maps a RunE error to a process exit code. Errors that did not
// come through exitError are cobra usage errors.
func exitCode(err error) int {
	if err == nil {
		return CLIExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return CLIExitConfig
}

// alreadyReported reports whether err was printed by the command itself.
func alreadyReported(err error) bool {
	var ee *exitError
	return errors.As(err, &ee) && ee.reported
}
