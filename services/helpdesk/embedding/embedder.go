// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding turns helpdesk text into dense vectors and persists the
// question vectors between restarts.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/AleutianAI/helpdesk/services/helpdesk/config"
)

// ErrEmptyVector is returned when a backend answers with no vector.
var ErrEmptyVector = errors.New("embedding service returned empty vector")

// Embedder produces sentence embeddings.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order. Any failure
	// fails the whole batch.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model names the embedding model. It is part of the cache key.
	Model() string
}

// NewEmbedder builds the backend selected by cfg.Provider.
//
// # Inputs
//
//   - cfg: Embedder section of the resolver config.
//   - logger: Logger for request diagnostics. Nil uses slog.Default().
//
// # Outputs
//
//   - Embedder: Ready-to-use backend.
//   - error: Non-nil for an unknown provider or a missing API key.
func NewEmbedder(cfg config.EmbedderConfig, logger *slog.Logger) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOllama, "":
		return NewOllamaEmbedder(cfg, logger), nil
	case config.ProviderOpenAI:
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("embedder %s: environment variable %s is not set", cfg.Provider, cfg.APIKeyEnv)
		}
		return NewLangChainEmbedder(cfg, key)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// =============================================================================
// Vector Helpers
// =============================================================================

// L2Norm computes the Euclidean norm of v.
func L2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v, or nil if v has zero norm.
func Normalize(v []float32) []float32 {
	norm := L2Norm(v)
	if norm == 0 {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot computes the dot product of a and b over the shorter length.
func Dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
