// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diagnose implements the diagnose-and-fix procedure run before a
// deploy.
//
// The procedure is a fixed linear sequence, each step exactly once:
//
//	entry_point -> build_output -> listing -> deploy_tool -> complete
//
// There is no retry loop and no rollback. Under the strict policy the first
// failing command aborts the sequence; under the lenient policy every step
// runs and failures are reported as warnings. Scaffold errors abort under
// both policies.
package diagnose

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/deploydiag/cmd/deploydiag/config"
	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/process"
	"github.com/AleutianAI/deploydiag/pkg/logging"
	"github.com/AleutianAI/deploydiag/pkg/ux"
)

// Observer is notified around each step. The telemetry package uses it to
// open spans and record step metrics.
type Observer interface {
	StepStarted(ctx context.Context, step StepName) (context.Context, func(*StepResult))
	RunFinished(ctx context.Context, report *Report)
}

type nopObserver struct{}

func (nopObserver) StepStarted(ctx context.Context, _ StepName) (context.Context, func(*StepResult)) {
	return ctx, func(*StepResult) {}
}

func (nopObserver) RunFinished(context.Context, *Report) {}

// Diagnoser runs the procedure against one project directory.
//
// # Description
//
// All collaborators are injected so that the procedure can run against a
// temporary directory with a MockRunner and a buffer-backed Printer.
// Config, Dir and Executor are required; the rest default when nil.
//
// # Examples
//
//	d := &diagnose.Diagnoser{
//	    Config:   cfg,
//	    Dir:      dir,
//	    Executor: &process.Executor{Runner: process.NewDefaultRunner(), Policy: cfg.Policy, Dir: dir},
//	}
//	report, err := d.Run(ctx)
type Diagnoser struct {
	Config   *config.Config
	Dir      string
	Executor *process.Executor
	Printer  *ux.Printer
	Logger   *logging.Logger
	Prompter Prompter
	Observer Observer

	// GOOS selects the listing command. Default: runtime.GOOS.
	GOOS string

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

type stepFunc func(ctx context.Context, res *StepResult) error

// Run executes every step in order and returns the report.
//
// # Outputs
//
//   - *Report: always non-nil; Completed is false when the run aborted
//   - error: *process.CommandError (strict), *scaffold.ScaffoldError, a
//     prompt error, or a context error
func (d *Diagnoser) Run(ctx context.Context) (*Report, error) {
	d.defaults()

	start := d.Now()
	report := &Report{
		RunID:      uuid.NewString(),
		ProjectDir: d.Dir,
		Policy:     string(d.Config.Policy),
		OS:         d.GOOS,
		DryRun:     d.Executor.DryRun,
		StartedAt:  start,
	}
	logger := d.Logger.With("run_id", report.RunID)
	logger.Info("diagnosis started", "dir", d.Dir, "policy", report.Policy)

	checks := d.Config.Checks
	steps := []struct {
		name    StepName
		enabled bool
		fn      stepFunc
	}{
		{StepEntryPoint, checks.EntryPoint.Enabled, d.entryPoint},
		{StepBuildOutput, checks.BuildOutput.Enabled, d.buildOutput},
		{StepListing, checks.Listing.Enabled, d.listing},
		{StepDeployTool, checks.DeployTool.Enabled, d.deployTool},
		{StepComplete, true, d.complete},
	}

	d.Printer.Title(fmt.Sprintf("deploydiag: %s (%s policy)", d.Dir, d.Config.Policy))

	var runErr error
	for _, step := range steps {
		res := StepResult{Name: step.name}
		if !step.enabled {
			res.Status = StatusSkipped
			res.Message = "disabled in configuration"
			logger.Debug("step skipped", "step", step.name)
			d.Printer.StepStatus(string(step.name), res.Status.Icon(), res.Message)
			report.Steps = append(report.Steps, res)
			continue
		}

		stepCtx, end := d.Observer.StepStarted(ctx, step.name)
		err := step.fn(stepCtx, &res)
		if err != nil {
			res.Status = StatusFailed
			res.Error = err.Error()
		}
		end(&res)
		report.Steps = append(report.Steps, res)

		logger.Info("step finished", "step", step.name, "status", res.Status, "commands", len(res.Commands))
		if step.name != StepComplete {
			d.Printer.StepStatus(string(step.name), res.Status.Icon(), res.Message)
		}

		if err != nil {
			runErr = err
			report.Error = err.Error()
			logger.Error("diagnosis aborted", "step", step.name, "error", err)
			break
		}
	}

	report.Completed = runErr == nil
	report.Duration = d.Now().Sub(start)
	d.Observer.RunFinished(ctx, report)
	return report, runErr
}

func (d *Diagnoser) defaults() {
	if d.Printer == nil {
		d.Printer = ux.NewPrinter()
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Prompter == nil {
		d.Prompter = AutoApprove{}
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.GOOS == "" {
		d.GOOS = runtime.GOOS
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Executor.Printer == nil {
		d.Executor.Printer = d.Printer
	}
	if d.Executor.Logger == nil {
		d.Executor.Logger = d.Logger
	}
	if d.Executor.Dir == "" {
		d.Executor.Dir = d.Dir
	}
}

// path resolves a configured relative path against the project directory.
func (d *Diagnoser) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(d.Dir, filepath.FromSlash(rel))
}

// run executes argv through the executor and records it on res.
func (d *Diagnoser) run(ctx context.Context, exec *process.Executor, res *StepResult, argv []string) (*process.Result, error) {
	r, err := exec.Exec(ctx, argv)
	if r != nil {
		res.Commands = append(res.Commands, CommandRecord{
			Argv:       argv,
			ExitCode:   r.ExitCode,
			DurationMs: r.Duration.Milliseconds(),
		})
	}
	return r, err
}

// confirm asks the prompter unless this is a dry run.
func (d *Diagnoser) confirm(ctx context.Context, title, description string) (bool, error) {
	if d.Executor.DryRun {
		return true, nil
	}
	return d.Prompter.Confirm(ctx, title, description)
}
