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
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner animates a single status line while a long command runs.
// A Spinner from a non-animating Printer does nothing.
type Spinner struct {
	out     io.Writer
	message string
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	active  bool
}

// StartSpinner starts a spinner with message. The caller must call Stop
// before printing anything else to the same writer.
//
//	spin := printer.StartSpinner("npm run build")
//	res, err := runner.Run(ctx, dir, argv)
//	spin.Stop()
func (p *Printer) StartSpinner(message string) *Spinner {
	s := &Spinner{out: p.Out, message: message}
	if !p.Animate || p.Level == PersonalityMachine || p.Level == PersonalityMinimal {
		return s
	}
	s.active = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()

		frame := 0
		for {
			select {
			case <-s.stop:
				fmt.Fprint(s.out, "\r\033[K")
				return
			case <-ticker.C:
				fmt.Fprintf(s.out, "\r%s %s", Styles.Command.Render(spinnerFrames[frame]), s.message)
				frame = (frame + 1) % len(spinnerFrames)
			}
		}
	}()
	return s
}

// Stop clears the spinner line. Safe to call more than once.
func (s *Spinner) Stop() {
	if !s.active {
		return
	}
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
}
