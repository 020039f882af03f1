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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = `Questions,Answers,Categories,Tags
How do I reset my VPN password?,Go to the VPN portal and click Forgot Password.,Network,"vpn, password"
How do I connect to the office printer?,Add the printer from Settings > Printers.,Hardware,printer
,Orphan answer with no question,Misc,
Where can I download Microsoft Office?,   ,Software,office
Where can I download Microsoft Office?,Use the Software Center.,Software,"office; install"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_CSV(t *testing.T) {
	path := writeFile(t, "faq.csv", sampleCSV)

	base, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, base.Len())
	assert.Equal(t, 2, base.Dropped())
	assert.Equal(t, path, base.Source())

	e, ok := base.Entry(0)
	require.True(t, ok)
	assert.Equal(t, 0, e.Row)
	assert.Equal(t, "How do I reset my VPN password?", e.Question)
	assert.Equal(t, "Go to the VPN portal and click Forgot Password.", e.Answer)
	assert.Equal(t, "Network", e.Category)
	assert.Equal(t, []string{"vpn", "password"}, e.TagList())
	assert.Equal(t, 2, e.SourceLine)

	last, ok := base.Entry(2)
	require.True(t, ok)
	assert.Equal(t, 2, last.Row, "rows are renumbered after dropping blanks")
	assert.Equal(t, "Use the Software Center.", last.Answer)

	_, ok = base.Entry(3)
	assert.False(t, ok)
}

func TestLoad_TSV(t *testing.T) {
	path := writeFile(t, "faq.tsv", "questions\tanswers\nWhat is my IP?\tRun ipconfig.\n")
	base, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"What is my IP?"}, base.Questions())
	assert.Empty(t, base.Categories())
}

func TestLoad_HeaderCaseAndBOM(t *testing.T) {
	path := writeFile(t, "faq.csv", "\ufeff QUESTIONS , Answers \nq1,a1\n")
	base, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, base.Len())
}

func TestLoad_MissingColumns(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing string
	}{
		{"no answers", "questions,categories\nq,c\n", "answers"},
		{"no questions", "answers\na\n", "questions"},
		{"empty file", "", "questions, answers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "faq.csv", tt.content)
			_, err := Load(context.Background(), path)
			require.ErrorIs(t, err, ErrMissingColumns)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestLoad_OnlyBlankRows(t *testing.T) {
	path := writeFile(t, "faq.csv", "questions,answers\n , \nq,\n")
	_, err := Load(context.Background(), path)
	require.ErrorIs(t, err, ErrEmptyKnowledgeBase)
}

func TestLoad_EmptyYAML(t *testing.T) {
	for _, content := range []string{"", "# comments only\n"} {
		path := writeFile(t, "faq.yaml", content)
		_, err := Load(context.Background(), path)
		require.ErrorIs(t, err, ErrEmptyKnowledgeBase, "%q", content)
	}
}

func TestLoad_UnreadableFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "faq.json", "[]")
	_, err := Load(context.Background(), path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_YAML(t *testing.T) {
	content := `
- questions: How do I reset my VPN password?
  answers: Go to the VPN portal and click Forgot Password.
  categories: Network
  tags: vpn, password
- Questions: What port does SSH use?
  Answers: 22
`
	path := writeFile(t, "faq.yaml", content)
	base, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 2, base.Len())

	e, _ := base.Entry(1)
	assert.Equal(t, "22", e.Answer, "non-string scalars are stringified")
	assert.Equal(t, []string{"Network"}, base.Categories())
}

func TestLoad_YAMLMissingColumns(t *testing.T) {
	path := writeFile(t, "faq.yml", "- questions: only a question\n")
	_, err := Load(context.Background(), path)
	require.ErrorIs(t, err, ErrMissingColumns)
}

func TestLoad_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"questions", "answers", "categories"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"How do I reset my VPN password?", "Go to the VPN portal and click Forgot Password.", "Network"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"How do I map a drive?", "Use File Explorer > Map network drive.", "Storage"}))

	path := filepath.Join(t.TempDir(), "faq.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	base, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, base.Len())
	assert.Equal(t, []string{"Network", "Storage"}, base.Categories())
}

func TestLoadReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadReader(ctx, strings.NewReader(sampleCSV), FormatCSV, "inline")
	require.ErrorIs(t, err, context.Canceled)
}
