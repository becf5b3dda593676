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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the per-project configuration file looked up in --dir.
	FileName = ".deploydiag.yaml"

	// PolicyEnv overrides the configured policy.
	PolicyEnv = "DEPLOYDIAG_POLICY"
)

// ErrConfigExists is returned by WriteDefault when the target file exists
// and force was not requested.
var ErrConfigExists = errors.New("config file already exists")

// Load reads the configuration for a project.
//
// # Description
//
// Resolution order, later wins:
//  1. DefaultConfig()
//  2. explicitPath if non-empty (must exist), otherwise
//     {projectDir}/.deploydiag.yaml if present
//  3. DEPLOYDIAG_POLICY from getenv
//
// The result is validated before it is returned.
//
// # Outputs
//
//   - *Config: the effective configuration
//   - string: the file that was read, "" when running on defaults
//   - error: read, parse or validation failure
func Load(projectDir, explicitPath string, getenv func(string) string) (*Config, string, error) {
	cfg := DefaultConfig()

	path := explicitPath
	if path == "" {
		candidate := filepath.Join(projectDir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read the config file %s: %w", path, err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}

	if getenv != nil {
		if err := ApplyEnv(&cfg, getenv); err != nil {
			return nil, "", err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, path, nil
}

// decode unmarshals YAML over cfg, rejecting unknown keys so that a typo
// like "enable: false" does not silently keep a step on.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv applies environment overrides.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(PolicyEnv); v != "" {
		p, err := ParsePolicy(v)
		if err != nil {
			return fmt.Errorf("%s: %w", PolicyEnv, err)
		}
		cfg.Policy = p
	}
	return nil
}

// Marshal renders cfg as YAML, as written by `config init`.
func Marshal(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteDefault writes DefaultConfig to path, creating parent directories.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	data, err := Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
