// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy selects how a failing corrective command is treated.
type Policy string

const (
	// PolicyStrict aborts the run at the first non-zero exit code.
	PolicyStrict Policy = "strict"

	// PolicyLenient prints a warning and continues with the next command.
	PolicyLenient Policy = "lenient"
)

// ErrUnknownPolicy is returned when a policy name is neither strict nor lenient.
var ErrUnknownPolicy = errors.New("unknown policy")

// ParsePolicy converts a flag or environment value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "fail-fast":
		return PolicyStrict, nil
	case "lenient", "best-effort":
		return PolicyLenient, nil
	default:
		return "", fmt.Errorf("%w: %q (want strict or lenient)", ErrUnknownPolicy, s)
	}
}

// UnmarshalYAML accepts the same names as ParsePolicy, so the aliases
// work in the config file too.
func (p *Policy) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParsePolicy(s)
	if err != nil {
		return fmt.Errorf("line %d: policy: %w", node.Line, err)
	}
	*p = parsed
	return nil
}

// Package managers understood by the build-output check.
const (
	PackageManagerNPM  = "npm"
	PackageManagerPNPM = "pnpm"
	PackageManagerYarn = "yarn"
	PackageManagerAuto = "auto"
)

type Config struct {
	// Policy is strict (fail-fast) or lenient (best-effort).
	Policy Policy `yaml:"policy" validate:"required,oneof=strict lenient"`

	// CommandTimeout bounds each spawned command. Zero blocks until exit.
	CommandTimeout time.Duration `yaml:"command_timeout" validate:"gte=0"`

	// ProjectName is rendered into the placeholder page. Empty means
	// package.json "name", falling back to the directory name.
	ProjectName string `yaml:"project_name"`

	Checks Checks `yaml:"checks"`
}

// Checks maps each diagnostic step to the paths it inspects and the
// commands it runs to repair them.
type Checks struct {
	EntryPoint  EntryPointCheck  `yaml:"entry_point"`
	BuildOutput BuildOutputCheck `yaml:"build_output"`
	Listing     ListingCheck     `yaml:"listing"`
	DeployTool  DeployToolCheck  `yaml:"deploy_tool"`
}

type EntryPointCheck struct {
	Enabled bool `yaml:"enabled"`

	// Paths are mutually acceptable entry points, relative to the project
	// directory. The first one is scaffolded when none exists.
	Paths []string `yaml:"paths" validate:"required_if=Enabled true,dive,required"`
}

type BuildOutputCheck struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`

	PackageManager string `yaml:"package_manager" validate:"omitempty,oneof=npm pnpm yarn auto"`

	// Commands overrides the package manager's install and build commands.
	Commands [][]string `yaml:"commands,omitempty" validate:"omitempty,dive,min=1,dive,required"`
}

type ListingCheck struct {
	Enabled bool     `yaml:"enabled"`
	Posix   []string `yaml:"posix" validate:"required_if=Enabled true,dive,required"`
	Windows []string `yaml:"windows" validate:"required_if=Enabled true,dive,required"`
}

type DeployToolCheck struct {
	Enabled        bool     `yaml:"enabled"`
	Name           string   `yaml:"name"`
	VersionCommand []string `yaml:"version_command" validate:"required_if=Enabled true,dive,required"`
	InstallCommand []string `yaml:"install_command" validate:"required_if=Enabled true,dive,required"`

	// MinVersion treats an older installed tool as missing, e.g. "28.0.0",
	// "v28.0.0" or "28.0".
	MinVersion string `yaml:"min_version" validate:"omitempty,toolversion"`
}

// DefaultConfig returns the configuration equivalent to running the check
// with no configuration file: Next.js entry points, npm, dist, vercel.
func DefaultConfig() Config {
	return Config{
		Policy: PolicyLenient,
		Checks: Checks{
			EntryPoint: EntryPointCheck{
				Enabled: true,
				Paths:   []string{"app/page.tsx", "pages/index.js"},
			},
			BuildOutput: BuildOutputCheck{
				Enabled:        true,
				Path:           "dist",
				PackageManager: PackageManagerNPM,
			},
			Listing: ListingCheck{
				Enabled: true,
				Posix:   []string{"ls", "-la"},
				Windows: []string{"cmd", "/c", "dir"},
			},
			DeployTool: DeployToolCheck{
				Enabled:        true,
				Name:           "vercel",
				VersionCommand: []string{"vercel", "--version"},
				InstallCommand: []string{"npm", "install", "-g", "vercel"},
			},
		},
	}
}

// PackageManagerCommands returns the install and build commands for a
// package manager. Unknown names get npm's.
func PackageManagerCommands(pm string) [][]string {
	switch pm {
	case PackageManagerPNPM:
		return [][]string{{"pnpm", "install"}, {"pnpm", "run", "build"}}
	case PackageManagerYarn:
		return [][]string{{"yarn", "install"}, {"yarn", "run", "build"}}
	default:
		return [][]string{{"npm", "install"}, {"npm", "run", "build"}}
	}
}

// BuildCommands returns the explicit Commands, or the commands of the
// resolved package manager when none are configured.
func (b BuildOutputCheck) BuildCommands(resolvedPM string) [][]string {
	if len(b.Commands) > 0 {
		return b.Commands
	}
	return PackageManagerCommands(resolvedPM)
}

// Command returns the listing command for the given GOOS value.
func (l ListingCheck) Command(goos string) []string {
	if goos == "windows" {
		return l.Windows
	}
	return l.Posix
}
