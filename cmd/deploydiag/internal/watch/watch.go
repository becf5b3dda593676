// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch re-runs the diagnosis when project files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/deploydiag/pkg/logging"
)

// DefaultIgnore lists directory names never watched.
var DefaultIgnore = []string{"node_modules", ".git", ".next", ".vercel"}

// RunFunc performs one full diagnosis. Its error is logged and watching
// continues.
type RunFunc func(ctx context.Context, trigger string) error

// Options configures a Watcher.
type Options struct {
	// Ignore lists directory or file base names skipped at any depth, in
	// addition to DefaultIgnore.
	Ignore []string

	// IgnorePaths lists paths relative to Dir skipped with everything
	// below them. The build output directory belongs here.
	IgnorePaths []string

	// Debounce is the quiet period after the last event before a run.
	// Default: 500ms.
	Debounce time.Duration

	// MinInterval is the minimum time between two runs. Default: 5s.
	MinInterval time.Duration

	// RunOnStart runs once before waiting for the first change.
	RunOnStart bool
}

// Watcher watches a project tree and calls Run on changes.
//
// # Description
//
// fsnotify is not recursive, so every directory below Dir is added at start
// and directories created later are added as their Create events arrive.
// Events are coalesced: a burst of writes (an editor save, npm install)
// produces one run after Debounce of quiet, and a token bucket limits runs
// to one per MinInterval.
//
// Changes made while Run is in progress belong to the run itself (a
// scaffolded page, a rewritten package-lock.json) and never trigger another
// run. Events are dropped until Debounce after Run returns.
//
// The event loop and the run loop are goroutines in one errgroup; Watch
// returns when ctx is cancelled or either loop fails.
type Watcher struct {
	Dir    string
	Run    RunFunc
	Logger *logging.Logger
	opts   Options

	ignore      map[string]bool
	ignorePaths []string
	running     atomic.Bool
}

// New creates a Watcher for dir.
func New(dir string, run RunFunc, logger *logging.Logger, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	ignore := make(map[string]bool, len(DefaultIgnore)+len(opts.Ignore))
	for _, n := range DefaultIgnore {
		ignore[n] = true
	}
	for _, n := range opts.Ignore {
		ignore[filepath.Base(filepath.Clean(n))] = true
	}
	var paths []string
	for _, p := range opts.IgnorePaths {
		p = filepath.ToSlash(filepath.Clean(p))
		if p == "." || p == "" || strings.HasPrefix(p, "../") || p == ".." {
			continue
		}
		paths = append(paths, p)
	}
	return &Watcher{Dir: dir, Run: run, Logger: logger, opts: opts, ignore: ignore, ignorePaths: paths}
}

// Watch blocks until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.Dir, err)
	}

	triggers := make(chan string, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.eventLoop(gctx, fsw, triggers)
	})
	g.Go(func() error {
		return w.runLoop(gctx, triggers)
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// addRecursive adds root and every non-ignored subdirectory.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

// shouldIgnore reports whether path lies under an ignored path or has an
// ignored name as any component below Dir.
func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.Dir, path)
	if err != nil {
		return w.ignore[filepath.Base(path)]
	}
	rel = filepath.ToSlash(rel)
	for _, p := range w.ignorePaths {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	for _, part := range strings.Split(rel, "/") {
		if w.ignore[part] {
			return true
		}
	}
	return false
}

func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher, triggers chan<- string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.shouldIgnore(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			// New directories are watched even during a run.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(fsw, event.Name); err != nil {
						w.Logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			if w.running.Load() {
				w.Logger.Debug("change made by the run ignored", "path", event.Name, "op", event.Op.String())
				continue
			}
			w.Logger.Debug("change detected", "path", event.Name, "op", event.Op.String())

			// A pending trigger already covers this change.
			select {
			case triggers <- event.Name:
			default:
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) runLoop(ctx context.Context, triggers <-chan string) error {
	limiter := rate.NewLimiter(rate.Every(w.opts.MinInterval), 1)

	if w.opts.RunOnStart {
		_ = limiter.Allow()
		w.runOnce(ctx, "start", triggers)
	}

	for {
		var trigger string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case trigger = <-triggers:
		}

		if !w.quiet(ctx, triggers) {
			return ctx.Err()
		}
		if err := limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		// Changes made while waiting are covered by this run.
		select {
		case <-triggers:
		default:
		}
		w.runOnce(ctx, trigger, triggers)
	}
}

// quiet waits until no trigger has arrived for Debounce. It returns false
// if ctx is cancelled first.
func (w *Watcher) quiet(ctx context.Context, triggers <-chan string) bool {
	timer := time.NewTimer(w.opts.Debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-triggers:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.opts.Debounce)
		case <-timer.C:
			return true
		}
	}
}

// runOnce calls Run with change events suppressed. Suppression lasts until
// Debounce after Run returns, since events for the run's last writes may
// still be queued; any trigger that slipped through is then discarded.
func (w *Watcher) runOnce(ctx context.Context, trigger string, triggers <-chan string) {
	w.running.Store(true)
	defer w.running.Store(false)

	w.Logger.Info("running diagnosis", "trigger", trigger)
	if err := w.Run(ctx, trigger); err != nil {
		w.Logger.Warn("diagnosis failed, still watching", "error", err)
	}

	settle := time.NewTimer(w.opts.Debounce)
	defer settle.Stop()
	select {
	case <-ctx.Done():
		return
	case <-settle.C:
	}
	select {
	case <-triggers:
	default:
	}
}
