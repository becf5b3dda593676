// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scaffold creates missing project files without ever touching
// existing ones.
package scaffold

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	dirPerm  = 0755
	filePerm = 0644
)

// ScaffoldError wraps a filesystem failure while creating a file.
//
// Scaffold errors are never downgraded to warnings: they abort the run under
// both policies.
type ScaffoldError struct {
	// Op is "stat", "mkdir" or "write".
	Op   string
	Path string
	Err  error
}

func (e *ScaffoldError) Error() string {
	return fmt.Sprintf("scaffold %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ScaffoldError) Unwrap() error {
	return e.Err
}

var _ error = (*ScaffoldError)(nil)

// EnsureFile creates path with exactly content if nothing exists at path.
//
// # Description
//
// When path is absent, every missing parent directory is created (0755)
// and the file is written (0644) with O_EXCL so a file that appears
// concurrently is never overwritten. When anything already exists at path,
// file or directory, nothing is done.
//
// # Outputs
//
//   - bool: true if the file was created by this call
//   - error: *ScaffoldError on any filesystem failure
//
// # Examples
//
//	created, err := scaffold.EnsureFile("app/page.tsx", page)
//	if err != nil {
//	    return err
//	}
func EnsureFile(path, content string) (bool, error) {
	if _, err := os.Lstat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, &ScaffoldError{Op: "stat", Path: path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return false, &ScaffoldError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, &ScaffoldError{Op: "write", Path: path, Err: err}
	}

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return false, &ScaffoldError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return false, &ScaffoldError{Op: "write", Path: path, Err: err}
	}
	return true, nil
}

// Exists reports whether anything exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
