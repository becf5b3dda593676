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
	"context"
	"errors"

	"github.com/charmbracelet/huh"
)

// Prompter asks whether a corrective action may run.
type Prompter interface {
	Confirm(ctx context.Context, title, description string) (bool, error)
}

// AutoApprove approves every action. It is used for non-interactive runs.
type AutoApprove struct{}

func (AutoApprove) Confirm(context.Context, string, string) (bool, error) {
	return true, nil
}

// HuhPrompter asks on the terminal with a huh confirm field.
type HuhPrompter struct {
	// Accessible renders plain prompts for screen readers.
	Accessible bool
}

// Confirm shows a yes/no prompt. Aborting the prompt (Ctrl+C) declines.
func (p HuhPrompter) Confirm(ctx context.Context, title, description string) (bool, error) {
	ok := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithAccessible(p.Accessible)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// ScriptedPrompter answers from a fixed table keyed by title, defaulting to
// Default. Used in tests.
type ScriptedPrompter struct {
	Answers map[string]bool
	Default bool
	Asked   []string
}

func (p *ScriptedPrompter) Confirm(_ context.Context, title, _ string) (bool, error) {
	p.Asked = append(p.Asked, title)
	if v, ok := p.Answers[title]; ok {
		return v, nil
	}
	return p.Default, nil
}

var (
	_ Prompter = AutoApprove{}
	_ Prompter = HuhPrompter{}
	_ Prompter = (*ScriptedPrompter)(nil)
)
