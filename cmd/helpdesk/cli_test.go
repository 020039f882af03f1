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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/helpdesk/services/helpdesk"
	"github.com/AleutianAI/helpdesk/services/helpdesk/config"
	"github.com/AleutianAI/helpdesk/services/helpdesk/feedback"
	"github.com/AleutianAI/helpdesk/services/helpdesk/resolver"
)

const testKB = `Questions,Answers,Categories,Tags
How do I reset my VPN password?,Go to the VPN portal and click Forgot Password.,Network,"vpn, password"
How do I connect to the office printer?,Add \\print01\office from Settings.,Hardware,printer
Why is my laptop running slow?,Restart the laptop.,Hardware,performance
`

// runCLI executes the root command in-process and returns stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTestKB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "faq.csv")
	require.NoError(t, os.WriteFile(path, []byte(testKB), 0o644))
	return path
}

func baseArgs(t *testing.T, kb string) []string {
	return []string{"--kb", kb, "--no-semantic", "--cache-dir", t.TempDir(), "--log-level", "error"}
}

// =============================================================================
// Root
// =============================================================================

func TestCLI_Help(t *testing.T) {
	out, err := runCLI(t, "", "--help")
	require.NoError(t, err)
	for _, want := range []string{"ask", "chat", "serve", "inspect", "--kb", "--no-semantic"} {
		assert.Contains(t, out, want)
	}
}

func TestCLI_InvalidLogLevel(t *testing.T) {
	_, err := runCLI(t, "", "ask", "--kb", writeTestKB(t), "--log-level", "loud", "hello")
	assert.ErrorContains(t, err, "invalid --log-level")
}

func TestCLI_MissingKnowledgeBase(t *testing.T) {
	t.Setenv("HELPDESK_KB", "")
	_, err := runCLI(t, "", "ask", "--no-semantic", "--no-cache", "hello")
	assert.ErrorIs(t, err, helpdesk.ErrNoKnowledgeBase)

	_, err = runCLI(t, "", "ask", "--kb", filepath.Join(t.TempDir(), "nope.csv"), "--no-semantic", "--no-cache", "hello")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// =============================================================================
// ask
// =============================================================================

func TestCLI_Ask(t *testing.T) {
	args := append(baseArgs(t, writeTestKB(t)), "ask", "reset", "vpn", "password")
	out, err := runCLI(t, "", args...)
	require.NoError(t, err)
	assert.Contains(t, out, "Go to the VPN portal and click Forgot Password.")
	assert.Contains(t, out, "[fuzzy 0.75, row 0]")
}

func TestCLI_AskJSON(t *testing.T) {
	args := append(baseArgs(t, writeTestKB(t)), "ask", "--json", "quantum banana orchestra")
	out, err := runCLI(t, "", args...)
	require.NoError(t, err)

	var res resolver.MatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, resolver.MethodNone, res.Method)
	assert.Equal(t, -1, res.Row)
}

func TestCLI_AskRequiresQuestion(t *testing.T) {
	_, err := runCLI(t, "", append(baseArgs(t, writeTestKB(t)), "ask")...)
	assert.Error(t, err)
}

// =============================================================================
// chat
// =============================================================================

func TestCLI_Chat(t *testing.T) {
	table, err := config.DefaultGreetings(context.Background())
	require.NoError(t, err)
	hello, _ := table.Lookup("hello")
	bye, _ := table.Lookup("bye")
	liked, _ := feedback.Acknowledgement(feedback.KindLike)

	input := "hello\n\nreset vpn password\n/like\n?!\nquit\nnever reached\n"
	out, err := runCLI(t, input, append(baseArgs(t, writeTestKB(t)), "chat")...)
	require.NoError(t, err)

	assert.Contains(t, out, hello)
	assert.Contains(t, out, "Go to the VPN portal")
	assert.Contains(t, out, liked)
	assert.Contains(t, out, "[gibberish]")
	assert.Contains(t, out, bye)
	assert.NotContains(t, out, "never reached")
}

func TestCLI_ChatEOF(t *testing.T) {
	out, err := runCLI(t, "hi\n", append(baseArgs(t, writeTestKB(t)), "chat")...)
	require.NoError(t, err)
	assert.Contains(t, out, "[greeting]")
}

func TestReactionKind(t *testing.T) {
	tests := []struct {
		line string
		kind feedback.Kind
		ok   bool
	}{
		{"/like", feedback.KindLike, true},
		{"/LOVE", feedback.KindLove, true},
		{"👎", feedback.KindDislike, true},
		{"🤔", feedback.KindConfused, true},
		{"like", "", false},
		{"/reset", "", false},
		{"reset vpn password", "", false},
	}
	for _, tt := range tests {
		k, ok := reactionKind(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.kind, k, tt.line)
	}
}

// =============================================================================
// inspect
// =============================================================================

func TestCLI_Inspect(t *testing.T) {
	out, err := runCLI(t, "", append(baseArgs(t, writeTestKB(t)), "inspect")...)
	require.NoError(t, err)
	assert.Contains(t, out, "entries:     3")
	assert.Contains(t, out, "Hardware, Network")
	assert.Contains(t, out, "semantic:    disabled")
}

// =============================================================================
// serve
// =============================================================================

func TestNewServer(t *testing.T) {
	kb := writeTestKB(t)
	app, err := helpdesk.NewApp(context.Background(), helpdesk.AppOptions{
		KnowledgeBase: kb,
		NoSemantic:    true,
		CacheDir:      t.TempDir(),
	})
	require.NoError(t, err)
	defer app.Close()

	r, err := app.BuildResolver(context.Background())
	require.NoError(t, err)

	srv := newServer(app, helpdesk.NewResolverHolder(r), &serveOptions{port: 9090})
	assert.Equal(t, ":9090", srv.Addr)

	req := httptest.NewRequest(http.MethodPost, "/v1/helpdesk/answer", strings.NewReader(`{"query":"reset vpn password"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"method":"fuzzy"`)
}
