// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	triggers []string
	count    atomic.Int32
	err      error
}

func (r *recorder) run(_ context.Context, trigger string) error {
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()
	r.count.Add(1)
	return r.err
}

func fastOptions() Options {
	return Options{Debounce: 20 * time.Millisecond, MinInterval: time.Millisecond}
}

func startWatcher(t *testing.T, w *Watcher) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give fsnotify time to register the tree.
	time.Sleep(100 * time.Millisecond)

	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("watcher did not stop")
			return nil
		}
	}
}

func TestWatch_RunOnStart(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	opts := fastOptions()
	opts.RunOnStart = true
	w := New(dir, rec.run, nil, opts)

	stop := startWatcher(t, w)
	require.Eventually(t, func() bool { return rec.count.Load() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, []string{"start"}, rec.triggers)
}

func TestWatch_FileChangeTriggersRun(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New(dir, rec.run, nil, fastOptions())

	stop := startWatcher(t, w)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{}`), 0o644))

	require.Eventually(t, func() bool { return rec.count.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
}

func TestWatch_BurstIsCoalesced(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	opts := fastOptions()
	opts.Debounce = 150 * time.Millisecond
	w := New(dir, rec.run, nil, opts)

	stop := startWatcher(t, w)
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte{byte(i)}, 0o644))
	}

	require.Eventually(t, func() bool { return rec.count.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, int32(1), rec.count.Load())
}

func TestWatch_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New(dir, rec.run, nil, fastOptions())

	stop := startWatcher(t, w)
	sub := filepath.Join(dir, "app")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return rec.count.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	before := rec.count.Load()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "page.tsx"), []byte("x"), 0o644))
	require.Eventually(t, func() bool { return rec.count.Load() > before }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
}

func TestWatch_IgnoredDirectories(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"node_modules", "dist"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, d), 0o755))
	}
	rec := &recorder{}
	opts := fastOptions()
	opts.IgnorePaths = []string{"./dist"}
	w := New(dir, rec.run, nil, opts)

	stop := startWatcher(t, w)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "x.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dist", "index.html"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, stop())

	assert.Zero(t, rec.count.Load())
}

func TestWatch_RunErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{err: errors.New("strict failure")}
	opts := fastOptions()
	opts.RunOnStart = true
	w := New(dir, rec.run, nil, opts)

	stop := startWatcher(t, w)
	require.Eventually(t, func() bool { return rec.count.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644))
	require.Eventually(t, func() bool { return rec.count.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
}

func TestWatch_OwnWritesDoNotRetrigger(t *testing.T) {
	dir := t.TempDir()
	var runs atomic.Int32
	run := func(context.Context, string) error {
		n := runs.Add(1)
		if err := os.WriteFile(filepath.Join(dir, "package-lock.json"), []byte{byte(n)}, 0o644); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Join(dir, "app"), 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, "app", "page.tsx"), []byte{byte(n)}, 0o644)
	}
	opts := Options{Debounce: 20 * time.Millisecond, MinInterval: 50 * time.Millisecond, RunOnStart: true}
	w := New(dir, run, nil, opts)

	stop := startWatcher(t, w)
	time.Sleep(time.Second)
	assert.Equal(t, int32(1), runs.Load(), "writes made by a run do not start another")

	// An outside change afterwards still triggers, and so does one inside
	// the directory the run created.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app", "page.tsx"), []byte("edit"), 0o644))
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, int32(2), runs.Load())
}

func TestWatch_MissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), (&recorder{}).run, nil, fastOptions())
	err := w.Watch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch")
}

func TestShouldIgnore(t *testing.T) {
	w := New("/proj", nil, nil, Options{Ignore: []string{"out"}})

	assert.True(t, w.shouldIgnore("/proj/node_modules"))
	assert.True(t, w.shouldIgnore("/proj/node_modules/react/index.js"))
	assert.True(t, w.shouldIgnore("/proj/.git/HEAD"))
	assert.True(t, w.shouldIgnore("/proj/out/index.html"))
	assert.False(t, w.shouldIgnore("/proj/app/page.tsx"))
	assert.False(t, w.shouldIgnore("/proj"))
}

func TestShouldIgnore_PathsAreRootedAtDir(t *testing.T) {
	w := New("/proj", nil, nil, Options{IgnorePaths: []string{"build/out", "./dist", "../elsewhere", "."}})

	assert.True(t, w.shouldIgnore("/proj/build/out"))
	assert.True(t, w.shouldIgnore("/proj/build/out/index.html"))
	assert.True(t, w.shouldIgnore("/proj/dist/app.js"))
	assert.False(t, w.shouldIgnore("/proj/src/out/helper.ts"), "only the configured path is ignored")
	assert.False(t, w.shouldIgnore("/proj/out/index.html"))
	assert.False(t, w.shouldIgnore("/proj/build/outline.md"))
	assert.False(t, w.shouldIgnore("/proj/build"))
	assert.False(t, w.shouldIgnore("/proj/src/dist/x.js"))
	assert.False(t, w.shouldIgnore("/proj/app/page.tsx"), "paths outside Dir and Dir itself are dropped")
}
