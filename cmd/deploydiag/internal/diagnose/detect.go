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
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/AleutianAI/deploydiag/cmd/deploydiag/config"
	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/scaffold"
)

// lockfiles in detection priority order.
var lockfiles = []struct {
	name string
	pm   string
}{
	{"pnpm-lock.yaml", config.PackageManagerPNPM},
	{"yarn.lock", config.PackageManagerYarn},
	{"package-lock.json", config.PackageManagerNPM},
}

// DetectPackageManager infers the package manager from the lockfile in dir.
// Without a lockfile it returns npm.
func DetectPackageManager(dir string) string {
	for _, lf := range lockfiles {
		if scaffold.Exists(filepath.Join(dir, lf.name)) {
			return lf.pm
		}
	}
	return config.PackageManagerNPM
}

// ResolvePackageManager returns configured, or the detected manager when
// configured is "auto" or empty.
func ResolvePackageManager(dir, configured string) string {
	if configured == "" || configured == config.PackageManagerAuto {
		return DetectPackageManager(dir)
	}
	return configured
}

var versionPattern = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z.-]+)?`)

// ParseToolVersion extracts the first version number from a tool's version
// output ("Vercel CLI 33.1.0" -> "v33.1.0"). It returns "" if none is found.
func ParseToolVersion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if m := versionPattern.FindString(line); m != "" {
			v := "v" + m
			if semver.IsValid(v) {
				return semver.Canonical(v)
			}
		}
	}
	return ""
}

// OlderThan reports whether version is older than min. Both may omit the
// leading "v". An unparseable min never marks a tool as outdated.
func OlderThan(version, min string) bool {
	v := config.NormalizeVersion(version)
	m := config.NormalizeVersion(min)
	if !semver.IsValid(m) || !semver.IsValid(v) {
		return false
	}
	return semver.Compare(v, m) < 0
}
