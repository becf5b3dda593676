// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides styled terminal output for the deploydiag CLI.
//
// All output goes through a Printer so that the diagnostic procedure can be
// exercised in tests against a bytes.Buffer. The rendering of each message
// depends on the PersonalityLevel: machine output is plain, prefixed and
// stable, everything else is styled with lipgloss.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Command lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Command: lipgloss.NewStyle().Foreground(ColorTealPrimary),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconFixed   Icon = "✚"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconSkipped Icon = "○"
	IconArrow   Icon = "→"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess, IconFixed:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconSkipped:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes personality-aware messages. Out receives progress and
// command output; Err receives machine-mode warnings and errors.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Level PersonalityLevel

	// Animate enables spinners. Only set it when Out is a terminal.
	Animate bool
}

// NewPrinter returns a Printer on stdout/stderr using the process-wide
// personality level.
func NewPrinter() *Printer {
	return &Printer{
		Out:     os.Stdout,
		Err:     os.Stderr,
		Level:   GetPersonalityLevel(),
		Animate: IsTerminal(os.Stdout.Fd()),
	}
}

// NewBufferPrinter returns a Printer whose output, including warnings and
// errors, goes to w.
func NewBufferPrinter(w io.Writer, level PersonalityLevel) *Printer {
	return &Printer{Out: w, Err: w, Level: level}
}

func (p *Printer) machine() bool { return p.Level == PersonalityMachine }

// Title prints a styled title. Suppressed in machine mode.
func (p *Printer) Title(text string) {
	if p.machine() {
		return
	}
	fmt.Fprintln(p.Out, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Out, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Err, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func (p *Printer) Error(text string) {
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Err, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", IconError.Render(), text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if p.machine() {
		fmt.Fprintln(p.Out, text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Command echoes a command line before it runs, "+ npm install" style.
func (p *Printer) Command(argv []string) {
	line := "+ " + strings.Join(argv, " ")
	if p.machine() {
		fmt.Fprintln(p.Out, line)
		return
	}
	fmt.Fprintln(p.Out, Styles.Command.Render(line))
}

// Raw writes captured command output verbatim, adding a trailing newline
// when missing. Empty output prints nothing.
func (p *Printer) Raw(text string) {
	if text == "" {
		return
	}
	fmt.Fprint(p.Out, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(p.Out)
	}
}

// Box prints text in a rounded box. Only the full personality draws boxes.
func (p *Printer) Box(title, content string) {
	if p.Level != PersonalityFull {
		fmt.Fprintf(p.Out, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.Out, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}

// ErrorBox prints a failure with its detail, boxed under the full personality.
func (p *Printer) ErrorBox(title, content string) {
	if p.Level != PersonalityFull {
		p.Error(title + ": " + content)
		return
	}
	fmt.Fprintln(p.Out, Styles.ErrorBox.Width(60).Render(Styles.Error.Bold(true).Render(title)+"\n"+content))
}

// StepStatus prints one line for a finished diagnostic step.
func (p *Printer) StepStatus(name string, icon Icon, detail string) {
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Out, "STEP\t%s\t%s\t%s\n", name, statusWord(icon), detail)
	case PersonalityMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", icon.Render(), name)
	default:
		if detail != "" {
			fmt.Fprintf(p.Out, "%s %s %s\n", icon.Render(), Styles.Bold.Render(name), Styles.Muted.Render("("+detail+")"))
		} else {
			fmt.Fprintf(p.Out, "%s %s\n", icon.Render(), Styles.Bold.Render(name))
		}
	}
}

func statusWord(icon Icon) string {
	switch icon {
	case IconSuccess:
		return "ok"
	case IconFixed:
		return "fixed"
	case IconWarning:
		return "warning"
	case IconError:
		return "failed"
	case IconSkipped:
		return "skipped"
	default:
		return string(icon)
	}
}

// Summary prints the closing tally of step outcomes.
func (p *Printer) Summary(ok, fixed, warnings, failed, skipped int) {
	if p.machine() {
		fmt.Fprintf(p.Out, "SUMMARY: ok=%d fixed=%d warning=%d failed=%d skipped=%d\n",
			ok, fixed, warnings, failed, skipped)
		return
	}
	fmt.Fprintf(p.Out, "\n%s %s  %s %s  %s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", ok)), Styles.Muted.Render("ok"),
		Styles.Success.Render(fmt.Sprintf("%d", fixed)), Styles.Muted.Render("fixed"),
		Styles.Warning.Render(fmt.Sprintf("%d", warnings)), Styles.Muted.Render("warning"),
		Styles.Error.Render(fmt.Sprintf("%d", failed)), Styles.Muted.Render("failed"),
		Styles.Muted.Render(fmt.Sprintf("%d", skipped)), Styles.Muted.Render("skipped"),
	)
}
