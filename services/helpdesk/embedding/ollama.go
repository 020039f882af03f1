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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/helpdesk/services/helpdesk/config"
)

const (
	defaultOllamaURL   = "http://localhost:11434/api/embed"
	defaultOllamaModel = "nomic-embed-text-v2-moe"
)

// ollamaEmbedReq is the Ollama /api/embed request body.
type ollamaEmbedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResp is the Ollama /api/embed response body.
type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaEmbedder calls Ollama's /api/embed endpoint.
//
// # Description
//
// Each text is a separate request. EmbedBatch fans requests out with at most
// BatchConcurrency in flight, which is enough to keep a local Ollama busy
// while the knowledge base is indexed.
//
// # Thread Safety
//
// Safe for concurrent use.
type OllamaEmbedder struct {
	url         string
	model       string
	concurrency int
	client      *http.Client
	logger      *slog.Logger
}

// NewOllamaEmbedder creates an embedder from cfg. Empty fields fall back to
// the local Ollama defaults.
func NewOllamaEmbedder(cfg config.EmbedderConfig, logger *slog.Logger) *OllamaEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	url := cfg.URL
	if url == "" {
		url = defaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultEmbedTimeout
	}
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = config.DefaultBatchConcurrency
	}

	return &OllamaEmbedder{
		url:         url,
		model:       model,
		concurrency: concurrency,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Model returns the configured model name.
func (e *OllamaEmbedder) Model() string { return e.model }

// URL returns the endpoint the embedder posts to.
func (e *OllamaEmbedder) URL() string { return e.url }

// Embed returns the embedding vector for text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedReq{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(body))
	}

	var ollamaResp ollamaEmbedResp
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(ollamaResp.Embeddings) == 0 || len(ollamaResp.Embeddings[0]) == 0 {
		return nil, ErrEmptyVector
	}

	return ollamaResp.Embeddings[0], nil
}

// EmbedBatch embeds every text in parallel and returns vectors in input order.
//
// # Outputs
//
//   - [][]float32: One vector per text.
//   - error: The first failure; remaining requests are cancelled.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)

	// Semaphore to limit concurrency.
	sem := make(chan struct{}, e.concurrency)

	for i, text := range texts {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			vec, err := e.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ollama batch embed: %w", err)
	}

	e.logger.Debug("ollama batch embed complete",
		slog.Int("texts", len(texts)),
		slog.String("model", e.model),
		slog.Duration("duration", time.Since(start)),
	)
	return out, nil
}
