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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/deploydiag/cmd/deploydiag/config"
	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/process"
	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/scaffold"
	"github.com/AleutianAI/deploydiag/pkg/ux"
)

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	dir  string
	cfg  *config.Config
	mock *process.MockRunner
	out  *bytes.Buffer
	d    *Diagnoser
}

func newFixture(t *testing.T, policy config.Policy, exitCodes map[string]int) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Policy = policy

	var out bytes.Buffer
	printer := ux.NewBufferPrinter(&out, ux.PersonalityMachine)
	mock := &process.MockRunner{RunFunc: process.Script(exitCodes)}

	f := &fixture{dir: dir, cfg: &cfg, mock: mock, out: &out}
	f.d = &Diagnoser{
		Config:   f.cfg,
		Dir:      dir,
		Executor: &process.Executor{Runner: mock, Policy: policy},
		Printer:  printer,
		GOOS:     "linux",
	}
	return f
}

func (f *fixture) touch(t *testing.T, rel string) {
	t.Helper()
	path := filepath.Join(f.dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0644))
}

func (f *fixture) mkdir(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(f.dir, filepath.FromSlash(rel)), 0755))
}

func (f *fixture) run(t *testing.T) *Report {
	t.Helper()
	report, err := f.d.Run(context.Background())
	require.NoError(t, err)
	return report
}

func stepCommands(r *Report, name StepName) [][]string {
	var out [][]string
	for _, c := range r.Step(name).Commands {
		out = append(out, c.Argv)
	}
	return out
}

var toolMissing = map[string]int{"vercel --version": 127}

// =============================================================================
// Scenarios
// =============================================================================

func TestRun_EmptyProject(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, toolMissing)

	report := f.run(t)

	require.Len(t, report.Steps, 5)
	for i, name := range Steps {
		assert.Equal(t, name, report.Steps[i].Name)
	}
	assert.True(t, report.Completed)
	assert.Len(t, stepCommands(report, StepBuildOutput), 2)
	assert.Len(t, stepCommands(report, StepListing), 1)
	assert.Len(t, stepCommands(report, StepDeployTool), 2)
	assert.Equal(t, [][]string{
		{"npm", "install"},
		{"npm", "run", "build"},
		{"ls", "-la"},
		{"vercel", "--version"},
		{"npm", "install", "-g", "vercel"},
	}, f.mock.Argvs())

	assert.Equal(t, []string{"app/page.tsx"}, report.FilesCreated())
	data, err := os.ReadFile(filepath.Join(f.dir, "app", "page.tsx"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "export default function Page()")
	assert.Contains(t, f.out.String(), "OK: Deploy diagnosis complete")
}

func TestRun_EmptyProject_ToolPresent(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, nil)

	report := f.run(t)

	assert.Equal(t, [][]string{{"vercel", "--version"}}, stepCommands(report, StepDeployTool))
	assert.Len(t, f.mock.Argvs(), 4)
}

func TestRun_FullyPopulatedProject(t *testing.T) {
	f := newFixture(t, config.PolicyStrict, nil)
	f.touch(t, "app/page.tsx")
	f.mkdir(t, "dist")

	report := f.run(t)

	assert.Equal(t, [][]string{{"ls", "-la"}, {"vercel", "--version"}}, f.mock.Argvs())
	assert.Empty(t, report.FilesCreated())
	for _, s := range report.Steps {
		assert.Equal(t, StatusOK, s.Status, s.Name)
	}
	assert.Equal(t, map[Status]int{StatusOK: 5}, report.Counts())
}

// =============================================================================
// Entry point
// =============================================================================

func TestEntryPoint_EitherAlternativeSuffices(t *testing.T) {
	for _, existing := range []string{"app/page.tsx", "pages/index.js"} {
		t.Run(existing, func(t *testing.T) {
			f := newFixture(t, config.PolicyLenient, nil)
			f.touch(t, existing)

			report := f.run(t)

			step := report.Step(StepEntryPoint)
			assert.Equal(t, StatusOK, step.Status)
			assert.Contains(t, step.Message, "not created")
			assert.Empty(t, report.FilesCreated())
			assert.False(t, scaffold.Exists(filepath.Join(f.dir, "app", "page.tsx")) && existing != "app/page.tsx")

			data, err := os.ReadFile(filepath.Join(f.dir, filepath.FromSlash(existing)))
			require.NoError(t, err)
			assert.Equal(t, "existing", string(data))
		})
	}
}

func TestEntryPoint_CustomPathsAndProjectName(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, nil)
	f.cfg.Checks.EntryPoint.Paths = []string{"public/index.html"}
	f.cfg.ProjectName = "Storefront"

	report := f.run(t)

	assert.Equal(t, []string{"public/index.html"}, report.FilesCreated())
	data, err := os.ReadFile(filepath.Join(f.dir, "public", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<title>Storefront</title>")
}

func TestEntryPoint_ScaffoldErrorAbortsBothPolicies(t *testing.T) {
	for _, policy := range []config.Policy{config.PolicyStrict, config.PolicyLenient} {
		t.Run(string(policy), func(t *testing.T) {
			f := newFixture(t, policy, nil)
			f.touch(t, "app") // a file where the directory should be

			report, err := f.d.Run(context.Background())
			require.Error(t, err)

			var serr *scaffold.ScaffoldError
			assert.ErrorAs(t, err, &serr)
			assert.False(t, report.Completed)
			assert.Equal(t, StatusFailed, report.Step(StepEntryPoint).Status)
			assert.Len(t, report.Steps, 1)
			assert.Empty(t, f.mock.Calls, "nothing runs after a scaffold failure")
		})
	}
}

// =============================================================================
// Build output
// =============================================================================

func TestBuildOutput_PresentRunsNothing(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, nil)
	f.mkdir(t, "dist")

	report := f.run(t)

	assert.Empty(t, stepCommands(report, StepBuildOutput))
	assert.Equal(t, StatusOK, report.Step(StepBuildOutput).Status)
}

func TestBuildOutput_Lenient_BuildRunsAfterFailedInstall(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, map[string]int{"npm install": 1})

	report := f.run(t)

	assert.Equal(t, [][]string{{"npm", "install"}, {"npm", "run", "build"}}, stepCommands(report, StepBuildOutput))
	step := report.Step(StepBuildOutput)
	assert.Equal(t, StatusWarning, step.Status)
	assert.Equal(t, 1, step.Commands[0].ExitCode)
	assert.Equal(t, 0, step.Commands[1].ExitCode)
	assert.True(t, report.Completed)
	assert.Contains(t, f.out.String(), "WARN: npm install exited with code 1")
}

func TestBuildOutput_Strict_AbortsOnFirstFailure(t *testing.T) {
	f := newFixture(t, config.PolicyStrict, map[string]int{"npm install": 1})

	report, err := f.d.Run(context.Background())
	require.Error(t, err)

	var cmdErr *process.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, []string{"npm", "install"}, cmdErr.Argv)
	assert.Equal(t, [][]string{{"npm", "install"}}, f.mock.Argvs())
	assert.False(t, report.Completed)
	assert.Equal(t, StatusFailed, report.Step(StepBuildOutput).Status)
	assert.Nil(t, report.Step(StepListing))
	assert.Equal(t, err.Error(), report.Error)
}

func TestBuildOutput_AutoDetectsPackageManager(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, nil)
	f.cfg.Checks.BuildOutput.PackageManager = config.PackageManagerAuto
	f.touch(t, "pnpm-lock.yaml")

	report := f.run(t)

	assert.Equal(t, [][]string{{"pnpm", "install"}, {"pnpm", "run", "build"}}, stepCommands(report, StepBuildOutput))
}

func TestBuildOutput_ExplicitCommands(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, nil)
	f.cfg.Checks.BuildOutput.Path = "out"
	f.cfg.Checks.BuildOutput.Commands = [][]string{{"make", "site"}}

	report := f.run(t)

	assert.Equal(t, [][]string{{"make", "site"}}, stepCommands(report, StepBuildOutput))
	assert.Equal(t, StatusFixed, report.Step(StepBuildOutput).Status)
}

// =============================================================================
// Listing
// =============================================================================

func TestListing_PlatformCommand(t *testing.T) {
	tests := map[string][]string{
		"linux":   {"ls", "-la"},
		"darwin":  {"ls", "-la"},
		"windows": {"cmd", "/c", "dir"},
	}
	for goos, want := range tests {
		t.Run(goos, func(t *testing.T) {
			f := newFixture(t, config.PolicyLenient, nil)
			f.d.GOOS = goos

			report := f.run(t)

			assert.Equal(t, [][]string{want}, stepCommands(report, StepListing))
			assert.Equal(t, goos, report.OS)
		})
	}
}

// =============================================================================
// Deployment tool
// =============================================================================

func TestDeployTool_InstallIffVersionFails(t *testing.T) {
	tests := []struct {
		name        string
		versionExit int
		want        [][]string
		status      Status
	}{
		{"present", 0, [][]string{{"vercel", "--version"}}, StatusOK},
		{"missing", 127, [][]string{{"vercel", "--version"}, {"npm", "install", "-g", "vercel"}}, StatusFixed},
		{"broken", 1, [][]string{{"vercel", "--version"}, {"npm", "install", "-g", "vercel"}}, StatusFixed},
		{"not started", process.ExitNotStarted, [][]string{{"vercel", "--version"}, {"npm", "install", "-g", "vercel"}}, StatusFixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, config.PolicyLenient, map[string]int{"vercel --version": tt.versionExit})

			report := f.run(t)

			assert.Equal(t, tt.want, stepCommands(report, StepDeployTool))
			assert.Equal(t, tt.status, report.Step(StepDeployTool).Status)
		})
	}
}

func TestDeployTool_Strict_MissingToolStillInstalls(t *testing.T) {
	f := newFixture(t, config.PolicyStrict, toolMissing)
	f.touch(t, "app/page.tsx")
	f.mkdir(t, "dist")

	report := f.run(t)

	assert.Equal(t, [][]string{{"vercel", "--version"}, {"npm", "install", "-g", "vercel"}}, stepCommands(report, StepDeployTool))
	assert.True(t, report.Completed)
}

func TestDeployTool_Strict_FailedInstallAborts(t *testing.T) {
	f := newFixture(t, config.PolicyStrict, map[string]int{"vercel --version": 127, "npm install -g vercel": 243})
	f.touch(t, "app/page.tsx")
	f.mkdir(t, "dist")

	report, err := f.d.Run(context.Background())

	var cmdErr *process.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 243, cmdErr.ExitCode)
	assert.False(t, report.Completed)
	assert.Nil(t, report.Step(StepComplete))
}

func TestDeployTool_Lenient_FailedInstallWarns(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, map[string]int{"vercel --version": 127, "npm install -g vercel": 1})

	report := f.run(t)

	assert.Equal(t, StatusWarning, report.Step(StepDeployTool).Status)
	assert.True(t, report.Completed)
	assert.True(t, report.HasWarnings())
}

func TestDeployTool_MinVersion(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		install bool
		status  Status
	}{
		{"newer", "Vercel CLI 34.2.1\n", false, StatusOK},
		{"equal", "33.0.0", false, StatusOK},
		{"older", "Vercel CLI 28.4.0\n", true, StatusFixed},
		{"unparseable", "vercel dev build\n", false, StatusWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, config.PolicyLenient, nil)
			f.cfg.Checks.DeployTool.MinVersion = "33.0.0"
			f.mock.RunFunc = func(_ context.Context, _ string, argv []string) (*process.Result, error) {
				res := &process.Result{Argv: argv}
				if strings.Join(argv, " ") == "vercel --version" {
					res.Stdout = tt.stdout
				}
				return res, nil
			}

			report := f.run(t)

			cmds := stepCommands(report, StepDeployTool)
			assert.Equal(t, tt.install, len(cmds) == 2)
			assert.Equal(t, tt.status, report.Step(StepDeployTool).Status)
		})
	}
}

// =============================================================================
// Configuration, prompts, dry run
// =============================================================================

func TestRun_DisabledStepsRunNothing(t *testing.T) {
	f := newFixture(t, config.PolicyStrict, toolMissing)
	f.cfg.Checks.EntryPoint.Enabled = false
	f.cfg.Checks.BuildOutput.Enabled = false
	f.cfg.Checks.Listing.Enabled = false
	f.cfg.Checks.DeployTool.Enabled = false

	report := f.run(t)

	assert.Empty(t, f.mock.Calls)
	assert.Empty(t, report.FilesCreated())
	assert.Equal(t, map[Status]int{StatusSkipped: 4, StatusOK: 1}, report.Counts())
	assert.True(t, report.Completed)
}

func TestRun_InteractiveDeclineSkipsActions(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, toolMissing)
	prompter := &ScriptedPrompter{Default: false}
	f.d.Prompter = prompter

	report := f.run(t)

	assert.Equal(t, [][]string{{"ls", "-la"}, {"vercel", "--version"}}, f.mock.Argvs())
	assert.Empty(t, report.FilesCreated())
	assert.Equal(t, StatusSkipped, report.Step(StepEntryPoint).Status)
	assert.Equal(t, StatusSkipped, report.Step(StepBuildOutput).Status)
	assert.Equal(t, StatusSkipped, report.Step(StepDeployTool).Status)
	assert.Equal(t, []string{"Create placeholder app/page.tsx?", "Run install and build?", "Install vercel?"}, prompter.Asked)
}

func TestRun_InteractivePartialApproval(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, toolMissing)
	f.d.Prompter = &ScriptedPrompter{Default: false, Answers: map[string]bool{"Install vercel?": true}}

	report := f.run(t)

	assert.Equal(t, StatusFixed, report.Step(StepDeployTool).Status)
	assert.Equal(t, StatusSkipped, report.Step(StepBuildOutput).Status)
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	f := newFixture(t, config.PolicyStrict, toolMissing)
	f.d.Executor.DryRun = true
	f.d.Prompter = &ScriptedPrompter{Default: false}

	report := f.run(t)

	assert.Empty(t, f.mock.Calls)
	assert.Empty(t, report.FilesCreated())
	assert.False(t, scaffold.Exists(filepath.Join(f.dir, "app")))
	assert.True(t, report.DryRun)
	assert.Contains(t, f.out.String(), "+ npm install\n+ npm run build\n")
	assert.Equal(t, StatusFixed, report.Step(StepEntryPoint).Status)
}

type recordingObserver struct {
	started  []StepName
	finished []Status
	report   *Report
}

func (o *recordingObserver) StepStarted(ctx context.Context, step StepName) (context.Context, func(*StepResult)) {
	o.started = append(o.started, step)
	return ctx, func(r *StepResult) { o.finished = append(o.finished, r.Status) }
}

func (o *recordingObserver) RunFinished(_ context.Context, r *Report) { o.report = r }

func TestRun_ObserverSeesEnabledSteps(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, nil)
	f.cfg.Checks.Listing.Enabled = false
	obs := &recordingObserver{}
	f.d.Observer = obs

	report := f.run(t)

	assert.Equal(t, []StepName{StepEntryPoint, StepBuildOutput, StepDeployTool, StepComplete}, obs.started)
	assert.Equal(t, []Status{StatusFixed, StatusFixed, StatusOK, StatusOK}, obs.finished)
	assert.Same(t, report, obs.report)
}

func TestRun_ReportMetadata(t *testing.T) {
	f := newFixture(t, config.PolicyStrict, nil)

	report := f.run(t)

	assert.Len(t, report.RunID, 36)
	assert.Equal(t, f.dir, report.ProjectDir)
	assert.Equal(t, "strict", report.Policy)
	assert.False(t, report.StartedAt.IsZero())
	assert.GreaterOrEqual(t, report.Duration.Nanoseconds(), int64(0))
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, config.PolicyLenient, nil)
	f.touch(t, "app/page.tsx")
	f.mock.RunFunc = func(ctx context.Context, _ string, argv []string) (*process.Result, error) {
		return &process.Result{Argv: argv}, context.Canceled
	}

	report, err := f.d.Run(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, report.Completed)
}
