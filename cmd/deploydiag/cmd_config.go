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
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/deploydiag/cmd/deploydiag/config"
)

type configInitResult struct {
	Path string `json:"path"`
}

func runConfigInit(cmd *cobra.Command, env *cliEnv, opts *globalOptions, force bool) error {
	start := time.Now()

	path := opts.configPath
	if path == "" {
		path = filepath.Join(opts.dir, config.FileName)
	}
	if err := config.WriteDefault(path, force); err != nil {
		return reportError(env, opts, "config init", start, configError(err))
	}

	if opts.jsonOutput {
		return OutputJSON(env.stdout, newResult("config init", start, configInitResult{Path: path}, nil))
	}
	fmt.Fprintf(env.stdout, "Wrote %s\n", path)
	return nil
}

type configShowResult struct {
	Source string         `json:"source"`
	Config *config.Config `json:"config"`
}

func runConfigShow(cmd *cobra.Command, env *cliEnv, opts *globalOptions) error {
	start := time.Now()

	dir, err := filepath.Abs(opts.dir)
	if err != nil {
		return reportError(env, opts, "config show", start, configError(err))
	}
	s := &session{env: env, opts: opts, dir: dir}
	cfg, path, err := s.loadConfig()
	if err != nil {
		return reportError(env, opts, "config show", start, configError(err))
	}

	source := path
	if source == "" {
		source = "defaults"
	}

	if opts.jsonOutput {
		return OutputJSON(env.stdout, newResult("config show", start, configShowResult{Source: source, Config: cfg}, nil))
	}
	data, err := config.Marshal(*cfg)
	if err != nil {
		return reportError(env, opts, "config show", start, failure(err, false))
	}
	fmt.Fprintf(env.stdout, "# source: %s\n%s", source, data)
	return nil
}
