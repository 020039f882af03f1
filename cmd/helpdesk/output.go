// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/helpdesk/services/helpdesk/resolver"
)

// styles renders CLI output. Without a terminal every style is a no-op.
type styles struct {
	enabled bool
	answer  lipgloss.Style
	meta    lipgloss.Style
	prompt  lipgloss.Style
	warn    lipgloss.Style
	heading lipgloss.Style
}

func newStyles(w io.Writer) styles {
	f, ok := w.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return styles{}
	}
	return styles{
		enabled: true,
		answer:  lipgloss.NewStyle().Foreground(lipgloss.Color("#7DCFFF")),
		meta:    lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).Italic(true),
		prompt:  lipgloss.NewStyle().Foreground(lipgloss.Color("#9ECE6A")).Bold(true),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#E0AF68")),
		heading: lipgloss.NewStyle().Bold(true).Underline(true),
	}
}

func (s styles) render(st lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return st.Render(text)
}

// printResult writes an answer followed by its method, score and any
// alternatives or suggestions.
func printResult(w io.Writer, s styles, res resolver.MatchResult) {
	fmt.Fprintln(w, s.render(s.answer, res.Answer))

	meta := fmt.Sprintf("[%s", res.Method)
	if res.Matched() {
		meta += fmt.Sprintf(" %.2f, row %d", res.Score, res.Row)
	}
	meta += "]"
	fmt.Fprintln(w, s.render(s.meta, meta))

	if len(res.Alternatives) > 0 {
		fmt.Fprintln(w, s.render(s.meta, "Related questions:"))
		for _, alt := range res.Alternatives {
			fmt.Fprintf(w, "  - %s (%s %.2f)\n", alt.Question, alt.Method, alt.Score)
		}
	}
	if len(res.Suggestions) > 0 {
		fmt.Fprintln(w, s.render(s.warn, "Did you mean:"))
		for _, q := range res.Suggestions {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
