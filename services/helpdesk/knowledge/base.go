// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge holds the helpdesk FAQ table and its loaders.
package knowledge

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors returned by the loaders.
var (
	// ErrMissingColumns means the table lacks a required column.
	ErrMissingColumns = errors.New("knowledge base is missing required columns")

	// ErrEmptyKnowledgeBase means no row had both a question and an answer.
	ErrEmptyKnowledgeBase = errors.New("knowledge base has no usable rows")

	// ErrUnsupportedFormat means the file extension has no loader.
	ErrUnsupportedFormat = errors.New("unsupported knowledge base format")
)

// Column names recognized in a knowledge-base header. Matching is
// case-insensitive after trimming.
const (
	ColumnQuestions  = "questions"
	ColumnAnswers    = "answers"
	ColumnCategories = "categories"
	ColumnTags       = "tags"
)

// Entry is one FAQ row.
//
// Row is the entry's position in Base.Entries and is the identity used to
// deduplicate candidates. SourceLine is the 1-based line or sheet row the
// entry came from, kept for diagnostics.
type Entry struct {
	Row        int    `json:"row" yaml:"-"`
	Question   string `json:"question" yaml:"questions"`
	Answer     string `json:"answer" yaml:"answers"`
	Category   string `json:"category,omitempty" yaml:"categories,omitempty"`
	Tags       string `json:"tags,omitempty" yaml:"tags,omitempty"`
	SourceLine int    `json:"-" yaml:"-"`
}

// TagList splits Tags on commas and semicolons, trimming blanks.
func (e Entry) TagList() []string {
	fields := strings.FieldsFunc(e.Tags, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Base is an immutable, ordered FAQ table.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Base struct {
	source     string
	entries    []Entry
	categories []string
	tags       []string
	dropped    int
}

// NewBase builds a Base from raw entries.
//
// Entries whose question or answer is blank after trimming are dropped.
// The remaining entries are renumbered so Entry.Row equals the slice index.
//
// # Outputs
//
//   - *Base: The table. Never nil on success.
//   - error: ErrEmptyKnowledgeBase if nothing usable remains.
func NewBase(source string, raw []Entry) (*Base, error) {
	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		e.Question = strings.TrimSpace(e.Question)
		e.Answer = strings.TrimSpace(e.Answer)
		e.Category = strings.TrimSpace(e.Category)
		e.Tags = strings.TrimSpace(e.Tags)
		if e.Question == "" || e.Answer == "" {
			continue
		}
		e.Row = len(entries)
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptyKnowledgeBase)
	}

	b := &Base{
		source:  source,
		entries: entries,
		dropped: len(raw) - len(entries),
	}
	b.categories, b.tags = collectLabels(entries)
	return b, nil
}

// Source returns the path or label the base was loaded from.
func (b *Base) Source() string { return b.source }

// Len returns the number of usable entries.
func (b *Base) Len() int { return len(b.entries) }

// Dropped returns how many input rows were skipped for a blank question or answer.
func (b *Base) Dropped() int { return b.dropped }

// Entry returns the entry at row. ok is false when row is out of range.
func (b *Base) Entry(row int) (Entry, bool) {
	if row < 0 || row >= len(b.entries) {
		return Entry{}, false
	}
	return b.entries[row], true
}

// Entries returns a copy of all entries in row order.
func (b *Base) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Questions returns the question text of every entry in row order.
func (b *Base) Questions() []string {
	out := make([]string, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Question
	}
	return out
}

// Categories returns the sorted distinct non-empty categories.
func (b *Base) Categories() []string {
	return append([]string(nil), b.categories...)
}

// Tags returns the sorted distinct tags across all entries.
func (b *Base) Tags() []string {
	return append([]string(nil), b.tags...)
}

// FilterByCategory returns the entries whose category equals name,
// ignoring case. An empty name returns nil.
func (b *Base) FilterByCategory(name string) []Entry {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var out []Entry
	for _, e := range b.entries {
		if strings.EqualFold(e.Category, name) {
			out = append(out, e)
		}
	}
	return out
}

func collectLabels(entries []Entry) (categories, tags []string) {
	catSet := make(map[string]struct{})
	tagSet := make(map[string]struct{})
	for _, e := range entries {
		if e.Category != "" {
			catSet[e.Category] = struct{}{}
		}
		for _, t := range e.TagList() {
			tagSet[t] = struct{}{}
		}
	}
	categories = make([]string, 0, len(catSet))
	for c := range catSet {
		categories = append(categories, c)
	}
	tags = make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(categories)
	sort.Strings(tags)
	return categories, tags
}
