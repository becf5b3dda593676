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
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/deploydiag/cmd/deploydiag/config"
	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/scaffold"
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// entryPoint scaffolds a placeholder page at the first candidate path when
// none of the candidates exists.
func (d *Diagnoser) entryPoint(ctx context.Context, res *StepResult) error {
	paths := d.Config.Checks.EntryPoint.Paths
	for _, p := range paths {
		if scaffold.Exists(d.path(p)) {
			res.Status = StatusOK
			res.Message = p + " exists, not created"
			d.Logger.Debug("entry point found", "path", p)
			return nil
		}
	}

	target := paths[0]
	d.Printer.Info(fmt.Sprintf("No entry point found (checked %s)", strings.Join(paths, ", ")))

	ok, err := d.confirm(ctx, "Create placeholder "+target+"?", "No entry-point page exists; a minimal page will be written.")
	if err != nil {
		return err
	}
	if !ok {
		res.Status = StatusSkipped
		res.Message = "placeholder declined"
		return nil
	}

	content, err := scaffold.RenderPage(target, scaffold.PageData{
		ProjectName: scaffold.ProjectName(d.Dir, d.Config.ProjectName),
	})
	if err != nil {
		return err
	}

	if d.Executor.DryRun {
		d.Printer.Info("Would create " + target)
		res.Status = StatusFixed
		res.Message = "dry run: would create " + target
		return nil
	}

	created, err := scaffold.EnsureFile(d.path(target), content)
	if err != nil {
		return err
	}
	if !created {
		res.Status = StatusOK
		res.Message = target + " exists, not created"
		return nil
	}

	d.Printer.Success("Created placeholder " + target)
	d.Logger.Info("placeholder created", "path", target)
	res.Status = StatusFixed
	res.Message = "created " + target
	res.FilesCreated = append(res.FilesCreated, target)
	return nil
}

// -----------------------------------------------------------------------------
// Build output
// -----------------------------------------------------------------------------

// buildOutput runs install then build when the output directory is missing.
// Under the lenient policy build runs even if install failed.
func (d *Diagnoser) buildOutput(ctx context.Context, res *StepResult) error {
	check := d.Config.Checks.BuildOutput
	if scaffold.IsDir(d.path(check.Path)) {
		d.Printer.Success(fmt.Sprintf("Build output %s exists", check.Path))
		res.Status = StatusOK
		res.Message = check.Path + " exists"
		return nil
	}

	d.Printer.Warning(fmt.Sprintf("Build output %s not found, running install and build", check.Path))

	ok, err := d.confirm(ctx, "Run install and build?", fmt.Sprintf("The build output directory %s is missing.", check.Path))
	if err != nil {
		return err
	}
	if !ok {
		res.Status = StatusSkipped
		res.Message = "build declined"
		return nil
	}

	pm := ResolvePackageManager(d.Dir, check.PackageManager)
	d.Logger.Debug("package manager resolved", "package_manager", pm)

	failed := 0
	for _, argv := range check.BuildCommands(pm) {
		r, err := d.run(ctx, d.Executor, res, argv)
		if err != nil {
			return err
		}
		if !r.Succeeded() {
			failed++
		}
	}

	if failed > 0 {
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("%d of %d commands failed", failed, len(res.Commands))
		return nil
	}
	res.Status = StatusFixed
	res.Message = fmt.Sprintf("ran %d commands with %s", len(res.Commands), pm)
	return nil
}

// -----------------------------------------------------------------------------
// Directory listing
// -----------------------------------------------------------------------------

// listing prints the platform directory listing of the project.
func (d *Diagnoser) listing(ctx context.Context, res *StepResult) error {
	argv := d.Config.Checks.Listing.Command(d.GOOS)
	r, err := d.run(ctx, d.Executor, res, argv)
	if err != nil {
		return err
	}
	if !r.Succeeded() {
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("listing exited with code %d", r.ExitCode)
		return nil
	}
	res.Status = StatusOK
	return nil
}

// -----------------------------------------------------------------------------
// Deployment tool
// -----------------------------------------------------------------------------

// deployTool installs the deployment CLI iff its version query fails or
// reports a version older than min_version. The version query is a probe
// and always runs best-effort; the install follows the configured policy.
// Installation is not verified afterwards.
func (d *Diagnoser) deployTool(ctx context.Context, res *StepResult) error {
	check := d.Config.Checks.DeployTool
	name := check.Name
	if name == "" {
		name = check.VersionCommand[0]
	}

	probe := d.Executor.WithPolicy(config.PolicyLenient)
	r, err := d.run(ctx, probe, res, check.VersionCommand)
	if err != nil {
		return err
	}

	reason := ""
	switch {
	case !r.Succeeded():
		reason = fmt.Sprintf("%s is not available (exit %d)", name, r.ExitCode)
	case check.MinVersion != "" && !d.Executor.DryRun:
		version := ParseToolVersion(r.Stdout)
		if version == "" {
			res.Status = StatusWarning
			res.Message = fmt.Sprintf("could not read %s version from output", name)
			return nil
		}
		if OlderThan(version, check.MinVersion) {
			reason = fmt.Sprintf("%s %s is older than %s", name, version, check.MinVersion)
		}
	}

	if reason == "" {
		res.Status = StatusOK
		res.Message = name + " available"
		return nil
	}

	d.Printer.Warning(reason + ", installing")

	ok, err := d.confirm(ctx, "Install "+name+"?", reason)
	if err != nil {
		return err
	}
	if !ok {
		res.Status = StatusSkipped
		res.Message = "install declined"
		return nil
	}

	r, err = d.run(ctx, d.Executor, res, check.InstallCommand)
	if err != nil {
		return err
	}
	if !r.Succeeded() {
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("install of %s exited with code %d", name, r.ExitCode)
		return nil
	}
	res.Status = StatusFixed
	res.Message = "installed " + name
	return nil
}

// -----------------------------------------------------------------------------
// Completion
// -----------------------------------------------------------------------------

func (d *Diagnoser) complete(_ context.Context, res *StepResult) error {
	d.Printer.Success("Deploy diagnosis complete")
	res.Status = StatusOK
	return nil
}
