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
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/watch"
)

type watchOptions struct {
	debounce    time.Duration
	minInterval time.Duration
}

func runWatchCommand(cmd *cobra.Command, env *cliEnv, opts *globalOptions, wopts watchOptions) error {
	start := time.Now()
	ctx := cmd.Context()

	s, err := openSession(ctx, env, opts)
	if err != nil {
		return reportError(env, opts, "watch", start, configError(err))
	}
	defer s.Close()

	// Validate once up front so a broken file fails fast instead of being
	// logged on every change.
	cfg, _, err := s.loadConfig()
	if err != nil {
		return reportError(env, opts, "watch", start, configError(err))
	}

	var ignorePaths []string
	if out := buildOutputRel(s.dir, cfg.Checks.BuildOutput.Path); out != "" {
		ignorePaths = append(ignorePaths, out)
	}

	run := func(ctx context.Context, trigger string) error {
		// The config file is re-read each run so edits take effect.
		cfg, _, err := s.loadConfig()
		if err != nil {
			s.printer.Error("configuration: " + err.Error())
			return err
		}
		report, traceID, runErr := s.diagnose(ctx, cfg)
		if opts.jsonOutput {
			result := newResult("watch", start, report, runErr)
			result.TraceID = traceID
			if err := OutputJSON(env.stdout, result); err != nil {
				return err
			}
		} else {
			s.printReport(report, runErr)
		}
		return runErr
	}

	w := watch.New(s.dir, run, s.logger, watch.Options{
		IgnorePaths: ignorePaths,
		Debounce:    wopts.debounce,
		MinInterval: wopts.minInterval,
		RunOnStart:  true,
	})
	s.printer.Info("Watching " + s.dir + " (Ctrl+C to stop)")

	if err := w.Watch(ctx); err != nil {
		return reportError(env, opts, "watch", start, failure(err, false))
	}
	return nil
}

// buildOutputRel returns the build output path relative to dir, or "" when
// it lies outside dir.
func buildOutputRel(dir, path string) string {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return rel
}
