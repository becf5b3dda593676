// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/diagnose"
	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/process"
)

// -----------------------------------------------------------------------------
// Step observer
// -----------------------------------------------------------------------------

// Observer feeds step outcomes into spans and metrics. Either field may be
// nil.
type Observer struct {
	Tracer  *Tracer
	Metrics *Metrics
}

// StepStarted opens a "deploydiag.step" span.
func (o *Observer) StepStarted(ctx context.Context, step diagnose.StepName) (context.Context, func(*diagnose.StepResult)) {
	tracer := o.Tracer
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	ctx, finish := tracer.StartSpan(ctx, "deploydiag.step", attribute.String("deploydiag.step", string(step)))

	return ctx, func(res *diagnose.StepResult) {
		var err error
		if res.Error != "" {
			err = errors.New(res.Error)
		}
		finish(err,
			attribute.String("deploydiag.status", string(res.Status)),
			attribute.Int("deploydiag.commands", len(res.Commands)),
			attribute.StringSlice("deploydiag.files_created", res.FilesCreated),
		)
		if o.Metrics != nil {
			o.Metrics.RecordStep(string(res.Name), string(res.Status), len(res.FilesCreated))
		}
	}
}

// RunFinished records the run outcome.
func (o *Observer) RunFinished(_ context.Context, report *diagnose.Report) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.RecordRun(report.Policy, report.Completed, report.HasWarnings(), report.Duration, report.StartedAt.Add(report.Duration))
}

var _ diagnose.Observer = (*Observer)(nil)

// -----------------------------------------------------------------------------
// Command instrumentation
// -----------------------------------------------------------------------------

// InstrumentedRunner wraps a process.Runner with a span and metrics per
// command.
type InstrumentedRunner struct {
	Next    process.Runner
	Tracer  *Tracer
	Metrics *Metrics
}

// Run delegates to Next inside a "deploydiag.command" span.
func (r *InstrumentedRunner) Run(ctx context.Context, dir string, argv []string) (*process.Result, error) {
	tracer := r.Tracer
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	ctx, finish := tracer.StartSpan(ctx, "deploydiag.command",
		attribute.String("process.command_line", strings.Join(argv, " ")),
		attribute.String("process.working_directory", dir),
	)

	res, err := r.Next.Run(ctx, dir, argv)
	if res == nil {
		finish(err)
		return res, err
	}

	spanErr := err
	if spanErr == nil && !res.Succeeded() {
		spanErr = process.NewCommandError(argv, res.ExitCode, res.Stderr, nil)
	}
	finish(spanErr, attribute.Int("process.exit_code", res.ExitCode))

	if r.Metrics != nil && len(argv) > 0 {
		r.Metrics.RecordCommand(argv[0], res.ExitCode, res.Duration)
	}
	return res, err
}

var _ process.Runner = (*InstrumentedRunner)(nil)
