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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/deploydiag/cmd/deploydiag/config"
	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/diagnose"
	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/process"
	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/scaffold"
	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/telemetry"
	"github.com/AleutianAI/deploydiag/pkg/logging"
	"github.com/AleutianAI/deploydiag/pkg/ux"
)

// session holds the collaborators shared by every run of one invocation.
// watch reuses one session across runs so metrics accumulate.
type session struct {
	env     *cliEnv
	opts    *globalOptions
	dir     string
	printer *ux.Printer
	logger  *logging.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics

	traceFile *os.File
}

// openSession resolves the project directory and starts logging and
// telemetry. Errors are configuration errors.
func openSession(ctx context.Context, env *cliEnv, opts *globalOptions) (*session, error) {
	dir, err := filepath.Abs(opts.dir)
	if err != nil {
		return nil, fmt.Errorf("invalid --dir %q: %w", opts.dir, err)
	}
	if !scaffold.IsDir(dir) {
		return nil, fmt.Errorf("project directory %s does not exist or is not a directory", dir)
	}

	s := &session{env: env, opts: opts, dir: dir}

	// Keep stdout clean for the JSON report.
	out := env.stdout
	if opts.jsonOutput {
		out = env.stderr
	}
	s.printer = &ux.Printer{
		Out:     out,
		Err:     env.stderr,
		Level:   opts.level,
		Animate: env.animate && !opts.jsonOutput,
	}

	s.logger = logging.New(logging.Config{
		Level:   logging.ParseLevel(opts.logLevel),
		LogDir:  opts.logDir,
		Service: telemetry.ServiceName,
		Writer:  env.stderr,
	})

	tcfg := telemetry.TracerConfig{Endpoint: opts.otlpEndpoint}
	if opts.traceFile != "" {
		f, err := os.Create(opts.traceFile)
		if err != nil {
			s.logger.Close()
			return nil, fmt.Errorf("failed to create the trace file: %w", err)
		}
		s.traceFile = f
		tcfg.Writer = f
	}
	s.tracer, err = telemetry.NewTracer(ctx, telemetry.TracerConfigFromEnv(tcfg, env.getenv))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.metrics = telemetry.NewMetrics()
	return s, nil
}

// Close flushes spans and closes files.
func (s *session) Close() {
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to flush traces", "error", err)
		}
		cancel()
	}
	if s.traceFile != nil {
		s.traceFile.Close()
	}
	s.logger.Close()
}

// loadConfig layers flags over the file and environment configuration.
func (s *session) loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.Load(s.dir, s.opts.configPath, s.env.getenv)
	if err != nil {
		return nil, "", err
	}
	if s.opts.policy != "" {
		p, err := config.ParsePolicy(s.opts.policy)
		if err != nil {
			return nil, "", fmt.Errorf("--policy: %w", err)
		}
		cfg.Policy = p
	}
	if s.opts.timeout > 0 {
		cfg.CommandTimeout = s.opts.timeout
	}
	return cfg, path, nil
}

func (s *session) prompter() diagnose.Prompter {
	if !s.opts.interactive {
		return diagnose.AutoApprove{}
	}
	if s.env.prompter != nil {
		return s.env.prompter
	}
	if !ux.IsInteractive() {
		s.logger.Warn("--interactive ignored, stdin or stdout is not a terminal")
		return diagnose.AutoApprove{}
	}
	return diagnose.HuhPrompter{Accessible: s.env.getenv("ACCESSIBLE") != ""}
}

// diagnose performs one full run inside a "deploydiag.run" span.
func (s *session) diagnose(ctx context.Context, cfg *config.Config) (*diagnose.Report, string, error) {
	ctx, finish := s.tracer.StartSpan(ctx, "deploydiag.run",
		attribute.String("deploydiag.dir", s.dir),
		attribute.String("deploydiag.policy", string(cfg.Policy)),
		attribute.Bool("deploydiag.dry_run", s.opts.dryRun),
	)
	traceID := telemetry.TraceID(ctx)

	logger := s.logger
	if traceID != "" {
		logger = logger.With("trace_id", traceID)
	}

	d := &diagnose.Diagnoser{
		Config: cfg,
		Dir:    s.dir,
		Executor: &process.Executor{
			Runner: &telemetry.InstrumentedRunner{
				Next:    s.env.runner,
				Tracer:  s.tracer,
				Metrics: s.metrics,
			},
			Policy:  cfg.Policy,
			Dir:     s.dir,
			Timeout: cfg.CommandTimeout,
			DryRun:  s.opts.dryRun,
		},
		Printer:  s.printer,
		Logger:   logger,
		Prompter: s.prompter(),
		Observer: &telemetry.Observer{Tracer: s.tracer, Metrics: s.metrics},
		GOOS:     s.env.goos,
	}

	report, err := d.Run(ctx)
	finish(err, attribute.Bool("deploydiag.completed", report.Completed))

	if s.opts.metricsFile != "" {
		if werr := s.metrics.WriteTextfile(s.opts.metricsFile); werr != nil {
			logger.Warn("failed to write metrics", "path", s.opts.metricsFile, "error", werr)
		}
	}
	return report, traceID, err
}

// printReport writes the human summary after a run.
func (s *session) printReport(report *diagnose.Report, err error) {
	counts := report.Counts()
	s.printer.Summary(
		counts[diagnose.StatusOK],
		counts[diagnose.StatusFixed],
		counts[diagnose.StatusWarning],
		counts[diagnose.StatusFailed],
		counts[diagnose.StatusSkipped],
	)
	if err != nil {
		s.printer.ErrorBox("Diagnosis aborted", err.Error())
		return
	}
	if s.printer.Level == ux.PersonalityFull {
		s.printer.Box("Run "+report.RunID,
			fmt.Sprintf("%s\n%d commands, %d files created, %s",
				report.ProjectDir, len(report.Commands()), len(report.FilesCreated()),
				report.Duration.Round(time.Millisecond)))
	}
}

func runDiagnoseCommand(cmd *cobra.Command, env *cliEnv, opts *globalOptions) error {
	start := time.Now()
	ctx := cmd.Context()

	s, err := openSession(ctx, env, opts)
	if err != nil {
		return reportError(env, opts, "diagnose", start, configError(err))
	}
	defer s.Close()

	cfg, cfgPath, err := s.loadConfig()
	if err != nil {
		return reportError(env, opts, "diagnose", start, configError(err))
	}
	if cfgPath != "" {
		s.logger.Info("configuration loaded", "path", cfgPath)
	}

	report, traceID, runErr := s.diagnose(ctx, cfg)

	if opts.jsonOutput {
		result := newResult("diagnose", start, report, runErr)
		result.TraceID = traceID
		if encErr := OutputJSON(env.stdout, result); encErr != nil {
			return failure(fmt.Errorf("failed to encode JSON: %w", encErr), false)
		}
	} else {
		s.printReport(report, runErr)
	}

	if runErr != nil {
		return failure(runErr, true)
	}
	return nil
}

// reportError prints err in the selected format and marks it reported.
func reportError(env *cliEnv, opts *globalOptions, command string, start time.Time, err error) error {
	if opts.jsonOutput {
		_ = OutputJSON(env.stdout, newResult(command, start, nil, err))
	} else {
		fmt.Fprintf(env.stderr, "Error: %v\n", err)
	}
	if ee, ok := err.(*exitError); ok {
		ee.reported = true
		return ee
	}
	return failure(err, true)
}
