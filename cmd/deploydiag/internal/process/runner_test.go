// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX sh")
	}
}

// =============================================================================
// DefaultRunner Tests
// =============================================================================

func TestDefaultRunner_CapturesStreamsSeparately(t *testing.T) {
	skipOnWindows(t)
	r := NewDefaultRunner()

	res, err := r.Run(context.Background(), t.TempDir(), []string{"sh", "-c", "echo out; echo err >&2; exit 3"})
	require.NoError(t, err)

	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Succeeded())
	assert.Equal(t, []string{"sh", "-c", "echo out; echo err >&2; exit 3"}, res.Argv)
}

func TestDefaultRunner_UsesWorkingDirectory(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), nil, 0644))

	res, err := NewDefaultRunner().Run(context.Background(), dir, []string{"ls"})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Contains(t, res.Stdout, "marker.txt")
}

func TestDefaultRunner_ArgumentsAreNotShellInterpreted(t *testing.T) {
	skipOnWindows(t)
	res, err := NewDefaultRunner().Run(context.Background(), t.TempDir(), []string{"echo", "a; rm -rf /", "$HOME"})
	require.NoError(t, err)
	assert.Equal(t, "a; rm -rf / $HOME\n", res.Stdout)
}

func TestDefaultRunner_CommandNotFound(t *testing.T) {
	res, err := NewDefaultRunner().Run(context.Background(), t.TempDir(), []string{"deploydiag-no-such-tool-xyz", "--version"})
	require.NoError(t, err, "a missing tool is a failed result, not an error")

	assert.Equal(t, ExitNotStarted, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)
	assert.False(t, res.Succeeded())
}

func TestDefaultRunner_EmptyCommand(t *testing.T) {
	_, err := NewDefaultRunner().Run(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyCommand)

	_, err = NewDefaultRunner().Run(context.Background(), "", []string{""})
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestDefaultRunner_ContextDeadline(t *testing.T) {
	skipOnWindows(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := NewDefaultRunner().Run(ctx, t.TempDir(), []string{"sleep", "5"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	require.NotNil(t, res)
	assert.NotEqual(t, 0, res.ExitCode)
}

// =============================================================================
// MockRunner Tests
// =============================================================================

func TestMockRunner_RecordsCalls(t *testing.T) {
	m := &MockRunner{}

	_, err := m.Run(context.Background(), "/proj", []string{"npm", "install"})
	require.NoError(t, err)
	_, err = m.Run(context.Background(), "/proj", []string{"npm", "run", "build"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"npm", "install"}, {"npm", "run", "build"}}, m.Argvs())
	assert.Equal(t, "/proj", m.Calls[0].Dir)

	m.Reset()
	assert.Empty(t, m.Argvs())
}

func TestMockRunner_Script(t *testing.T) {
	m := &MockRunner{RunFunc: Script(map[string]int{"vercel --version": 127})}

	res, err := m.Run(context.Background(), "", []string{"vercel", "--version"})
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
	assert.True(t, strings.Contains(res.Stderr, "vercel --version"))

	res, err = m.Run(context.Background(), "", []string{"ls", "-la"})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
}

func TestCommandError(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{"stderr", NewCommandError([]string{"npm", "run", "build"}, 1, "  missing script  \n", nil), "npm run build (exit 1): missing script"},
		{"wrapped", NewCommandError([]string{"vercel"}, -1, "", cause), "vercel (exit -1): boom"},
		{"bare", NewCommandError([]string{"ls"}, 2, "", nil), "ls (exit 2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}

	assert.ErrorIs(t, NewCommandError([]string{"x"}, 1, "", cause), cause)
}
