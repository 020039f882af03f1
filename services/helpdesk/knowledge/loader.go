// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

var tracer = otel.Tracer("helpdesk.knowledge")

// Format identifies a knowledge-base file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".tsv":
		return FormatTSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// Load reads a knowledge-base file and returns the validated table.
//
// # Description
//
// The format is chosen from the extension (.csv, .tsv, .xlsx, .yaml/.yml).
// Tabular formats need a header row naming at least the questions and
// answers columns; categories and tags are optional. For XLSX only the
// first sheet is read.
//
// # Inputs
//
//   - ctx: Context for tracing.
//   - path: File to read.
//
// # Outputs
//
//   - *Base: The loaded table.
//   - error: Wraps ErrUnsupportedFormat, ErrMissingColumns,
//     ErrEmptyKnowledgeBase or the underlying I/O error. Callers treat any
//     error as fatal.
func Load(ctx context.Context, path string) (*Base, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Load")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	format, err := FormatFromPath(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unsupported format")
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}
	defer func() { _ = f.Close() }()

	base, err := LoadReader(ctx, f, format, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("format", string(format)),
		attribute.Int("entries", base.Len()),
		attribute.Int("dropped", base.Dropped()),
	)
	slog.Info("knowledge base loaded",
		slog.String("path", path),
		slog.String("format", string(format)),
		slog.Int("entries", base.Len()),
		slog.Int("dropped", base.Dropped()),
		slog.Int("categories", len(base.categories)),
	)
	return base, nil
}

// LoadReader parses a knowledge base of the given format from r.
// source labels the result and appears in error messages.
func LoadReader(ctx context.Context, r io.Reader, format Format, source string) (*Base, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		raw []Entry
		err error
	)
	switch format {
	case FormatCSV:
		raw, err = readDelimited(r, ',')
	case FormatTSV:
		raw, err = readDelimited(r, '\t')
	case FormatXLSX:
		raw, err = readXLSX(r)
	case FormatYAML:
		raw, err = readYAML(r)
	default:
		return nil, fmt.Errorf("%s: %w", source, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return NewBase(source, raw)
}

// =============================================================================
// Tabular
// =============================================================================

// columnIndex maps the recognized column names to positions in a header row.
type columnIndex struct {
	question, answer, category, tags int
}

func indexHeader(header []string) (columnIndex, error) {
	idx := columnIndex{question: -1, answer: -1, category: -1, tags: -1}
	for i, h := range header {
		// A UTF-8 BOM on the first cell is common in spreadsheet exports.
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch name {
		case ColumnQuestions:
			idx.question = i
		case ColumnAnswers:
			idx.answer = i
		case ColumnCategories:
			idx.category = i
		case ColumnTags:
			idx.tags = i
		}
	}

	var missing []string
	if idx.question < 0 {
		missing = append(missing, ColumnQuestions)
	}
	if idx.answer < 0 {
		missing = append(missing, ColumnAnswers)
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return idx, nil
}

func (c columnIndex) entry(record []string, line int) Entry {
	cell := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return record[i]
	}
	return Entry{
		Question:   cell(c.question),
		Answer:     cell(c.answer),
		Category:   cell(c.category),
		Tags:       cell(c.tags),
		SourceLine: line,
	}
}

func entriesFromRows(rows [][]string) ([]Entry, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s, %s", ErrMissingColumns, ColumnQuestions, ColumnAnswers)
	}
	idx, err := indexHeader(rows[0])
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows)-1)
	for i, rec := range rows[1:] {
		out = append(out, idx.entry(rec, i+2))
	}
	return out, nil
}

func readDelimited(r io.Reader, sep rune) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse delimited: %w", err)
	}
	return entriesFromRows(rows)
}

func readXLSX(r io.Reader) ([]Entry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets: %w", ErrEmptyKnowledgeBase)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return entriesFromRows(rows)
}

// =============================================================================
// YAML
// =============================================================================

// readYAML accepts a sequence of mappings keyed by the column names.
//
//	- questions: How do I reset my VPN password?
//	  answers: Go to the VPN portal and click Forgot Password.
//	  categories: Network
//	  tags: vpn, password
func readYAML(r io.Reader) ([]Entry, error) {
	var rows []map[string]any
	if err := yaml.NewDecoder(r).Decode(&rows); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyKnowledgeBase
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyKnowledgeBase
	}

	// Column presence is judged on the union of keys so a sparse first row
	// does not hide a column.
	seen := make(map[string]bool)
	normalized := make([]map[string]string, len(rows))
	for i, row := range rows {
		m := make(map[string]string, len(row))
		for k, v := range row {
			key := strings.ToLower(strings.TrimSpace(k))
			seen[key] = true
			if v != nil {
				m[key] = fmt.Sprint(v)
			}
		}
		normalized[i] = m
	}

	var missing []string
	for _, col := range []string{ColumnQuestions, ColumnAnswers} {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	out := make([]Entry, len(normalized))
	for i, m := range normalized {
		out[i] = Entry{
			Question:   m[ColumnQuestions],
			Answer:     m[ColumnAnswers],
			Category:   m[ColumnCategories],
			Tags:       m[ColumnTags],
			SourceLine: i + 1,
		}
	}
	return out, nil
}
