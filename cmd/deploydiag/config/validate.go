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
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
)

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()

	// Report fields by their YAML keys so messages match the file.
	configValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Tool versions are compared with golang.org/x/mod/semver, which allows
	// "28.0" and "28"; validator's own semver tag would reject those and "v28.0.0".
	_ = configValidate.RegisterValidation("toolversion", func(fl validator.FieldLevel) bool {
		return ValidToolVersion(fl.Field().String())
	})
}

// NormalizeVersion prefixes a bare version with "v" for x/mod/semver.
func NormalizeVersion(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	return s
}

// ValidToolVersion reports whether s is a version min_version accepts:
// semver with an optional leading "v" and optional minor and patch.
func ValidToolVersion(s string) bool {
	return semver.IsValid(NormalizeVersion(s))
}

// ValidationError lists every configuration field that failed validation.
type ValidationError struct {
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Fields, "; "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks struct tags and the cross-field rules tags cannot express.
//
// # Outputs
//
//   - error: *ValidationError naming each offending field, or nil
func (c *Config) Validate() error {
	var fields []string
	var cause error

	if err := configValidate.Struct(c); err != nil {
		cause = err
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, describe(fe))
			}
		} else {
			fields = append(fields, err.Error())
		}
	}

	if c.Checks.EntryPoint.Enabled && len(c.Checks.EntryPoint.Paths) == 0 {
		fields = append(fields, "checks.entry_point.paths: at least one path is required")
	}
	if c.Checks.Listing.Enabled && (len(c.Checks.Listing.Posix) == 0 || len(c.Checks.Listing.Windows) == 0) {
		fields = append(fields, "checks.listing: posix and windows commands are required")
	}
	if c.Checks.DeployTool.Enabled && (len(c.Checks.DeployTool.VersionCommand) == 0 || len(c.Checks.DeployTool.InstallCommand) == 0) {
		fields = append(fields, "checks.deploy_tool: version_command and install_command are required")
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields, Err: cause}
}

func describe(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s (got %v)", ns, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed %s (got %v)", ns, fe.Tag(), fe.Value())
}
