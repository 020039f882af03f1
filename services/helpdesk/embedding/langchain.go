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
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/AleutianAI/helpdesk/services/helpdesk/config"
)

// LangChainEmbedder embeds through any OpenAI-compatible /embeddings API
// using langchaingo.
type LangChainEmbedder struct {
	inner embeddings.Embedder
	model string
}

// NewLangChainEmbedder builds an OpenAI-compatible embedder.
//
// cfg.URL, when set, replaces the OpenAI base URL so self-hosted gateways
// work. apiKey must not be empty.
func NewLangChainEmbedder(cfg config.EmbedderConfig, apiKey string) (*LangChainEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("langchain embedder: api key must not be empty")
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.URL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.URL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	batch := cfg.BatchConcurrency * 10
	if batch <= 0 {
		batch = 100
	}
	inner, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(batch),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create langchain embedder: %w", err)
	}
	return &LangChainEmbedder{inner: inner, model: cfg.Model}, nil
}

// Model returns the configured model name.
func (e *LangChainEmbedder) Model() string { return e.model }

// Embed returns the vector for text.
func (e *LangChainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("langchain embed: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	return vec, nil
}

// EmbedBatch returns one vector per text, in input order.
func (e *LangChainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("langchain batch embed: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("langchain batch embed: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
