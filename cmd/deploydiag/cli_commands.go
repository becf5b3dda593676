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
	"io"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/diagnose"
	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/process"
	"github.com/AleutianAI/deploydiag/pkg/ux"
)

// cliEnv is everything a command touches outside its flags. main wires the
// real process environment; tests substitute buffers and a MockRunner.
type cliEnv struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	// runner executes external commands. Default: process.DefaultRunner.
	runner process.Runner

	// goos selects the listing command. Default: runtime.GOOS.
	goos string

	// prompter overrides prompt selection when non-nil.
	prompter diagnose.Prompter

	// animate allows spinners on stdout.
	animate bool
}

func defaultEnv() *cliEnv {
	return &cliEnv{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		getenv:  os.Getenv,
		runner:  process.NewDefaultRunner(),
		goos:    runtime.GOOS,
		animate: ux.IsTerminal(os.Stdout.Fd()),
	}
}

// globalOptions holds the persistent flags.
type globalOptions struct {
	dir          string
	configPath   string
	policy       string
	timeout      time.Duration
	dryRun       bool
	jsonOutput   bool
	interactive  bool
	metricsFile  string
	traceFile    string
	otlpEndpoint string
	logLevel     string
	logDir       string
	personality  string

	level ux.PersonalityLevel
}

// newRootCmd builds the command tree. Running the root command is the same
// as running `deploydiag diagnose`.
func newRootCmd(env *cliEnv) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "deploydiag",
		Short: "Diagnose and repair a web project before deploying it",
		Long: `deploydiag checks a Next.js style project for the things a deployment
needs and fixes what it can: it scaffolds a missing entry point, builds a
missing output directory, lists the project, and installs the deployment
CLI when it is not on the PATH.

With --policy strict the first failing command aborts the run with exit
code 1. With --policy lenient (the default) failures become warnings and
the run always completes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.level = ux.InitPersonality(opts.personality)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnoseCommand(cmd, env, opts)
		},
	}
	rootCmd.SetOut(env.stdout)
	rootCmd.SetErr(env.stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.dir, "dir", "C", ".", "Project directory to diagnose")
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: <dir>/.deploydiag.yaml when present)")
	flags.StringVar(&opts.policy, "policy", "", "Error policy: strict or lenient (overrides config and DEPLOYDIAG_POLICY)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Per-command timeout, e.g. 10m (0 disables)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the commands and files without running or creating them")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Write the run report as JSON to stdout")
	flags.BoolVarP(&opts.interactive, "interactive", "i", false, "Confirm each corrective action (terminal only)")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	flags.StringVar(&opts.traceFile, "trace-file", "", "Write OpenTelemetry spans as JSON to this path")
	flags.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP/gRPC collector address (default: $OTEL_EXPORTER_OTLP_ENDPOINT)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logDir, "log-dir", "", "Also write JSON logs to a daily file in this directory")
	flags.StringVar(&opts.personality, "personality", "", "Output style: full, standard, minimal, machine (default: $DEPLOYDIAG_PERSONALITY or auto)")

	rootCmd.AddCommand(
		newDiagnoseCmd(env, opts),
		newWatchCmd(env, opts),
		newConfigCmd(env, opts),
		newVersionCmd(env, opts),
	)
	return rootCmd
}

func newDiagnoseCmd(env *cliEnv, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Run the diagnosis once (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnoseCommand(cmd, env, opts)
		},
	}
}

func newWatchCmd(env *cliEnv, opts *globalOptions) *cobra.Command {
	var wopts watchOptions
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the diagnosis whenever project files change",
		Long: `watch runs the diagnosis once, then again after every change in the
project directory. node_modules, .git and the build output directory are
ignored. Bursts of changes are coalesced and runs are rate limited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchCommand(cmd, env, opts, wopts)
		},
	}
	cmd.Flags().DurationVar(&wopts.debounce, "debounce", 500*time.Millisecond, "Quiet period after a change before re-running")
	cmd.Flags().DurationVar(&wopts.minInterval, "min-interval", 5*time.Second, "Minimum time between two runs")
	return cmd
}

func newConfigCmd(env *cliEnv, opts *globalOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the .deploydiag.yaml configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to <dir>/.deploydiag.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, env, opts, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after file, environment and flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, env, opts)
		},
	}

	configCmd.AddCommand(initCmd, showCmd)
	return configCmd
}

func newVersionCmd(env *cliEnv, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the deploydiag version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(env, opts)
		},
	}
}
