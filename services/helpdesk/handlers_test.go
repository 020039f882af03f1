// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/helpdesk/services/helpdesk/config"
	"github.com/AleutianAI/helpdesk/services/helpdesk/embedding/embeddingtest"
	"github.com/AleutianAI/helpdesk/services/helpdesk/feedback"
	"github.com/AleutianAI/helpdesk/services/helpdesk/knowledge"
	"github.com/AleutianAI/helpdesk/services/helpdesk/resolver"
	badgerstore "github.com/AleutianAI/helpdesk/services/helpdesk/storage/badger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestResolver loads a small knowledge base with the bag-of-words
// embedder.
func setupTestResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	base, err := knowledge.NewBase("test.csv", []knowledge.Entry{
		{Question: "How do I reset my VPN password?", Answer: "Use the VPN portal.", Category: "Network", Tags: "vpn, password"},
		{Question: "How do I connect to the office printer?", Answer: "Add \\\\print01.", Category: "Hardware", Tags: "printer"},
		{Question: "Why is my laptop running slow?", Answer: "Restart it.", Category: "Hardware", Tags: "performance"},
	})
	require.NoError(t, err)
	cfg, err := config.LoadResolverConfig(context.Background(), nil)
	require.NoError(t, err)

	r, err := resolver.Load(context.Background(), base, embeddingtest.NewBagOfWords(), cfg, resolver.WithLogger(quietLogger()))
	require.NoError(t, err)
	return r
}

func setupTestFeedback(t *testing.T) *feedback.Store {
	t.Helper()
	db, err := badgerstore.OpenDB(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return feedback.NewStore(db, quietLogger())
}

func setupTestRouter(t *testing.T, r *resolver.Resolver, store *feedback.Store) *gin.Engine {
	t.Helper()
	cfg := DefaultRouterConfig()
	cfg.RateLimit = 0
	return NewRouter(NewHandlers(NewResolverHolder(r), store, quietLogger()), cfg)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// =============================================================================
// Answer
// =============================================================================

func TestHandleAnswer(t *testing.T) {
	router := setupTestRouter(t, setupTestResolver(t), nil)

	tests := []struct {
		name   string
		query  string
		method resolver.Method
		row    int
	}{
		{"fuzzy", "reset vpn password", resolver.MethodFuzzy, 0},
		{"semantic", "laptop slow", resolver.MethodSemantic, 2},
		{"greeting", "hello", resolver.MethodGreeting, -1},
		{"gibberish", "?!", resolver.MethodGibberish, -1},
		{"empty", "", resolver.MethodGibberish, -1},
		{"none", "quantum banana orchestra", resolver.MethodNone, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/v1/helpdesk/answer", map[string]string{"query": tt.query})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			resp := decode[AnswerResponse](t, w)
			assert.Equal(t, tt.method, resp.Method)
			assert.Equal(t, tt.row, resp.Row)
			assert.NotEmpty(t, resp.Answer)
			assert.NotEmpty(t, resp.RequestID)
			assert.Equal(t, resp.RequestID, w.Header().Get(RequestIDHeader))
		})
	}
}

func TestHandleAnswer_BadRequests(t *testing.T) {
	router := setupTestRouter(t, setupTestResolver(t), nil)

	w := doJSON(t, router, http.MethodPost, "/v1/helpdesk/answer", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeMissingParameter, decode[ErrorResponse](t, w).Code)

	w = doJSON(t, router, http.MethodPost, "/v1/helpdesk/answer", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidRequest, decode[ErrorResponse](t, w).Code)
}

func TestHandleAnswer_NotReady(t *testing.T) {
	router := setupTestRouter(t, nil, nil)

	w := doJSON(t, router, http.MethodPost, "/v1/helpdesk/answer", map[string]string{"query": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeNotReady, decode[ErrorResponse](t, w).Code)
}

func TestHandleAnswer_KeepsCallerRequestID(t *testing.T) {
	router := setupTestRouter(t, setupTestResolver(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/helpdesk/answer", strings.NewReader(`{"query":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", decode[AnswerResponse](t, w).RequestID)
}

func TestHandleAnswer_LogsToInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	router := NewRouter(NewHandlers(NewResolverHolder(setupTestResolver(t)), nil, logger), RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/helpdesk/answer", strings.NewReader(`{"query":"reset vpn password"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, "req-456")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	out := buf.String()
	assert.Contains(t, out, "Answered query")
	assert.Contains(t, out, "request_id=req-456")
	assert.Contains(t, out, "handler=HandleAnswer")
	assert.Contains(t, out, "method=fuzzy")
}

func TestNewHandlers_NilLoggerUsesDefault(t *testing.T) {
	h := NewHandlers(nil, nil, nil)
	assert.Same(t, slog.Default(), h.logger)
}

// =============================================================================
// Search and categories
// =============================================================================

func TestHandleSearch(t *testing.T) {
	router := setupTestRouter(t, setupTestResolver(t), nil)

	w := doJSON(t, router, http.MethodPost, "/v1/helpdesk/search", SearchRequest{Query: "connect printer", TopK: 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[SearchResponse](t, w)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[0].Row)
	assert.GreaterOrEqual(t, resp.Results[0].Score, resp.Results[1].Score)
}

func TestHandleSearch_Validation(t *testing.T) {
	router := setupTestRouter(t, setupTestResolver(t), nil)

	w := doJSON(t, router, http.MethodPost, "/v1/helpdesk/search", map[string]any{"top_k": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeMissingParameter, decode[ErrorResponse](t, w).Code)

	w = doJSON(t, router, http.MethodPost, "/v1/helpdesk/search", SearchRequest{Query: "vpn", TopK: MaxSearchTopK + 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidRequest, decode[ErrorResponse](t, w).Code)
}

func TestHandleCategories(t *testing.T) {
	router := setupTestRouter(t, setupTestResolver(t), nil)

	w := doJSON(t, router, http.MethodGet, "/v1/helpdesk/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[CategoriesResponse](t, w)
	assert.Equal(t, 3, resp.Entries)
	assert.Equal(t, []string{"Hardware", "Network"}, resp.Categories)
	assert.Contains(t, resp.Tags, "vpn")
	assert.Contains(t, resp.Tags, "printer")
}

// =============================================================================
// Feedback
// =============================================================================

func TestHandleFeedback_RoundTrip(t *testing.T) {
	router := setupTestRouter(t, setupTestResolver(t), setupTestFeedback(t))

	w := doJSON(t, router, http.MethodPost, "/v1/helpdesk/feedback", FeedbackRequest{
		Kind:   "👎",
		Query:  "reset vpn password",
		Answer: "Use the VPN portal.",
		Method: "fuzzy",
		Score:  0.75,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[FeedbackResponse](t, w)
	assert.Equal(t, feedback.KindDislike, created.Record.Kind)
	assert.Equal(t, "I’m sorry. Could you please rephrase?", created.Message)
	assert.NotEmpty(t, created.Record.ID)

	w = doJSON(t, router, http.MethodGet, "/v1/helpdesk/feedback?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[FeedbackListResponse](t, w)
	require.Len(t, list.Records, 1)
	assert.Equal(t, created.Record.ID, list.Records[0].ID)
}

func TestHandleFeedback_Errors(t *testing.T) {
	router := setupTestRouter(t, setupTestResolver(t), setupTestFeedback(t))

	w := doJSON(t, router, http.MethodPost, "/v1/helpdesk/feedback", map[string]string{"query": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeMissingParameter, decode[ErrorResponse](t, w).Code)

	w = doJSON(t, router, http.MethodPost, "/v1/helpdesk/feedback", map[string]string{"kind": "meh"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidRequest, decode[ErrorResponse](t, w).Code)

	w = doJSON(t, router, http.MethodGet, "/v1/helpdesk/feedback?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleFeedback_NoStore(t *testing.T) {
	router := setupTestRouter(t, setupTestResolver(t), nil)

	w := doJSON(t, router, http.MethodPost, "/v1/helpdesk/feedback", map[string]string{"kind": "like"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/helpdesk/feedback", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// =============================================================================
// Health, readiness, metrics
// =============================================================================

func TestHandleHealthAndReady(t *testing.T) {
	r := setupTestResolver(t)
	holder := NewResolverHolder(nil)
	router := NewRouter(NewHandlers(holder, nil, quietLogger()), RouterConfig{})

	w := doJSON(t, router, http.MethodGet, "/v1/helpdesk/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/helpdesk/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	holder.Store(r)
	w = doJSON(t, router, http.MethodGet, "/v1/helpdesk/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ready := decode[ReadyResponse](t, w)
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, 3, ready.Entries)
	assert.True(t, ready.Semantic)
	assert.Equal(t, config.ModeCascade, ready.Mode)
	assert.True(t, strings.HasSuffix(ready.CorpusHash, "..."), ready.CorpusHash)
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupTestRouter(t, setupTestResolver(t), nil)
	doJSON(t, router, http.MethodPost, "/v1/helpdesk/answer", map[string]string{"query": "hello"})

	w := doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "helpdesk_resolver_answers_total")
}
