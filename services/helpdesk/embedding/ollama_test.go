// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/helpdesk/services/helpdesk/config"
)

// =============================================================================
// Mock Ollama Server
// =============================================================================

// mockOllamaServer returns vectors whose first component is the input length,
// so tests can check that batch results stay in input order. Requests whose
// input contains failMarker get a 500.
//
// calls uses an atomic counter because EmbedBatch fires concurrent requests.
func mockOllamaServer(t *testing.T, failMarker string, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		var req ollamaEmbedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "test-model" {
			http.Error(w, "unexpected model "+req.Model, http.StatusBadRequest)
			return
		}
		if failMarker != "" && strings.Contains(req.Input, failMarker) {
			http.Error(w, "simulated failure", http.StatusInternalServerError)
			return
		}
		resp := ollamaEmbedResp{
			Embeddings: [][]float32{{float32(len(req.Input)), 1, 0}},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Logf("mock server encode error: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOllama(t *testing.T, serverURL string) *OllamaEmbedder {
	t.Helper()
	return NewOllamaEmbedder(config.EmbedderConfig{
		URL:              serverURL + "/api/embed",
		Model:            "test-model",
		Timeout:          5 * time.Second,
		BatchConcurrency: 3,
	}, nil)
}

// =============================================================================
// Tests
// =============================================================================

func TestOllamaEmbedder_Defaults(t *testing.T) {
	e := NewOllamaEmbedder(config.EmbedderConfig{}, nil)
	if e.URL() != defaultOllamaURL {
		t.Errorf("URL = %q, want %q", e.URL(), defaultOllamaURL)
	}
	if e.Model() != defaultOllamaModel {
		t.Errorf("Model = %q, want %q", e.Model(), defaultOllamaModel)
	}
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	srv := mockOllamaServer(t, "", nil)
	e := newTestOllama(t, srv.URL)

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 5 {
		t.Errorf("vec = %v, want [5 1 0]", vec)
	}
}

func TestOllamaEmbedder_Embed_ServerError(t *testing.T) {
	srv := mockOllamaServer(t, "boom", nil)
	e := newTestOllama(t, srv.URL)

	_, err := e.Embed(context.Background(), "boom")
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("err = %v, want status 500 error", err)
	}
}

func TestOllamaEmbedder_Embed_EmptyVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ollamaEmbedResp{Embeddings: [][]float32{}})
	}))
	defer srv.Close()

	e := newTestOllama(t, srv.URL)
	_, err := e.Embed(context.Background(), "anything")
	if !errors.Is(err, ErrEmptyVector) {
		t.Errorf("err = %v, want ErrEmptyVector", err)
	}
}

func TestOllamaEmbedder_Embed_Unreachable(t *testing.T) {
	srv := mockOllamaServer(t, "", nil)
	url := srv.URL
	srv.Close()

	e := newTestOllama(t, url)
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Error("expected error for closed server")
	}
}

func TestOllamaEmbedder_EmbedBatch_Order(t *testing.T) {
	var calls atomic.Int64
	srv := mockOllamaServer(t, "", &calls)
	e := newTestOllama(t, srv.URL)

	texts := []string{"a", "bbbb", "cc", "ddddddd", "eee"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("len = %d, want %d", len(vecs), len(texts))
	}
	for i, text := range texts {
		if int(vecs[i][0]) != len(text) {
			t.Errorf("vecs[%d][0] = %v, want %d", i, vecs[i][0], len(text))
		}
	}
	if calls.Load() != int64(len(texts)) {
		t.Errorf("calls = %d, want %d", calls.Load(), len(texts))
	}
}

func TestOllamaEmbedder_EmbedBatch_FailureFailsBatch(t *testing.T) {
	srv := mockOllamaServer(t, "bad", nil)
	e := newTestOllama(t, srv.URL)

	_, err := e.EmbedBatch(context.Background(), []string{"ok", "bad row", "fine"})
	if err == nil {
		t.Fatal("expected batch error")
	}
}

func TestOllamaEmbedder_EmbedBatch_Empty(t *testing.T) {
	e := NewOllamaEmbedder(config.EmbedderConfig{}, nil)
	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", vecs, err)
	}
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(config.EmbedderConfig{Provider: config.ProviderOllama, Model: "m"}, nil)
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if _, ok := e.(*OllamaEmbedder); !ok {
		t.Errorf("got %T, want *OllamaEmbedder", e)
	}

	t.Setenv("HELPDESK_TEST_EMPTY_KEY", "")
	_, err = NewEmbedder(config.EmbedderConfig{Provider: config.ProviderOpenAI, Model: "m", APIKeyEnv: "HELPDESK_TEST_EMPTY_KEY"}, nil)
	if err == nil {
		t.Error("expected error when API key env is empty")
	}

	t.Setenv("HELPDESK_TEST_KEY", "sk-test")
	e, err = NewEmbedder(config.EmbedderConfig{Provider: config.ProviderOpenAI, Model: "text-embedding-3-small", APIKeyEnv: "HELPDESK_TEST_KEY"}, nil)
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if e.Model() != "text-embedding-3-small" {
		t.Errorf("Model = %q", e.Model())
	}

	if _, err := NewEmbedder(config.EmbedderConfig{Provider: "cohere"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNormalizeAndDot(t *testing.T) {
	if Normalize([]float32{0, 0}) != nil {
		t.Error("zero vector should normalize to nil")
	}
	u := Normalize([]float32{3, 4})
	if got := L2Norm(u); got < 0.9999 || got > 1.0001 {
		t.Errorf("norm = %v, want 1", got)
	}
	if got := Dot([]float32{1, 2, 3}, []float32{4, 5}); got != 14 {
		t.Errorf("Dot = %v, want 14", got)
	}
}
