// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diagnose

import (
	"time"

	"github.com/AleutianAI/deploydiag/pkg/ux"
)

// StepName identifies a diagnostic step.
type StepName string

const (
	StepEntryPoint  StepName = "entry_point"
	StepBuildOutput StepName = "build_output"
	StepListing     StepName = "listing"
	StepDeployTool  StepName = "deploy_tool"
	StepComplete    StepName = "complete"
)

// Steps lists every step in execution order.
var Steps = []StepName{StepEntryPoint, StepBuildOutput, StepListing, StepDeployTool, StepComplete}

// Status is the outcome of one step.
type Status string

const (
	// StatusOK means nothing needed fixing.
	StatusOK Status = "ok"

	// StatusFixed means a corrective action ran and succeeded.
	StatusFixed Status = "fixed"

	// StatusWarning means a command failed under the lenient policy.
	StatusWarning Status = "warning"

	// StatusFailed means the step aborted the run.
	StatusFailed Status = "failed"

	// StatusSkipped means the step is disabled or its action was declined.
	StatusSkipped Status = "skipped"
)

// Icon maps a status to its terminal icon.
func (s Status) Icon() ux.Icon {
	switch s {
	case StatusOK:
		return ux.IconSuccess
	case StatusFixed:
		return ux.IconFixed
	case StatusWarning:
		return ux.IconWarning
	case StatusFailed:
		return ux.IconError
	default:
		return ux.IconSkipped
	}
}

// CommandRecord is one command run by a step.
type CommandRecord struct {
	Argv       []string `json:"argv"`
	ExitCode   int      `json:"exit_code"`
	DurationMs int64    `json:"duration_ms"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Name         StepName        `json:"name"`
	Status       Status          `json:"status"`
	Message      string          `json:"message,omitempty"`
	Commands     []CommandRecord `json:"commands,omitempty"`
	FilesCreated []string        `json:"files_created,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Report is the result of one diagnostic run.
type Report struct {
	RunID      string        `json:"run_id"`
	ProjectDir string        `json:"project_dir"`
	Policy     string        `json:"policy"`
	OS         string        `json:"os"`
	DryRun     bool          `json:"dry_run,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Steps      []StepResult  `json:"steps"`
	Completed  bool          `json:"completed"`
	Error      string        `json:"error,omitempty"`
}

// Step returns the result for name, or nil if that step has not run.
func (r *Report) Step(name StepName) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// Counts tallies step statuses.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int, 5)
	for _, s := range r.Steps {
		counts[s.Status]++
	}
	return counts
}

// Commands returns every command run, in order.
func (r *Report) Commands() [][]string {
	var out [][]string
	for _, s := range r.Steps {
		for _, c := range s.Commands {
			out = append(out, c.Argv)
		}
	}
	return out
}

// FilesCreated returns every file scaffolded during the run.
func (r *Report) FilesCreated() []string {
	var out []string
	for _, s := range r.Steps {
		out = append(out, s.FilesCreated...)
	}
	return out
}

// HasWarnings reports whether any step ended with a warning.
func (r *Report) HasWarnings() bool {
	return r.Counts()[StatusWarning] > 0
}
