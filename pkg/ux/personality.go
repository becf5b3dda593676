// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityEnv is the environment variable that overrides the output level.
const PersonalityEnv = "DEPLOYDIAG_PERSONALITY"

// PersonalityLevel defines the verbosity and richness of CLI output
type PersonalityLevel string

const (
	// PersonalityFull enables boxes, colors and a closing summary banner
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard enables colors and icons
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal uses icons without colors on message text
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs plain prefixed lines suitable for CI log parsing
	PersonalityMachine PersonalityLevel = "machine"
)

var (
	currentLevel  = PersonalityStandard
	personalityMu sync.RWMutex
)

// GetPersonalityLevel returns the process-wide personality level
func GetPersonalityLevel() PersonalityLevel {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentLevel
}

// SetPersonalityLevel updates the process-wide personality level
func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentLevel = level
}

// ParsePersonalityLevel converts a string to PersonalityLevel
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "f":
		return PersonalityFull
	case "standard", "std", "s":
		return PersonalityStandard
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// InitPersonality resolves the personality level from, in order, an explicit
// flag value, DEPLOYDIAG_PERSONALITY, and terminal detection. CI jobs with a
// redirected stdout get machine output.
func InitPersonality(flagValue string) PersonalityLevel {
	level := resolvePersonality(flagValue, os.Getenv(PersonalityEnv), IsTerminal(os.Stdout.Fd()))
	SetPersonalityLevel(level)
	return level
}

func resolvePersonality(flagValue, envValue string, terminal bool) PersonalityLevel {
	if flagValue != "" {
		return ParsePersonalityLevel(flagValue)
	}
	if envValue != "" {
		return ParsePersonalityLevel(envValue)
	}
	if !terminal {
		return PersonalityMachine
	}
	return PersonalityStandard
}

// IsTerminal reports whether fd refers to a terminal, including Cygwin/MSYS
// pseudo terminals on Windows.
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive returns true if prompts may be shown
func IsInteractive() bool {
	return GetPersonalityLevel() != PersonalityMachine &&
		IsTerminal(os.Stdin.Fd()) && IsTerminal(os.Stdout.Fd())
}
