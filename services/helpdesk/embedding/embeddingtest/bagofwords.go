// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embeddingtest provides a deterministic, network-free Embedder for
// tests in other packages.
package embeddingtest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/helpdesk/services/helpdesk/fuzzy"
)

// ErrInjected is returned for texts registered with FailOn.
var ErrInjected = errors.New("embeddingtest: injected failure")

// DefaultDims is the vector size used by NewBagOfWords.
const DefaultDims = 256

// stopwords carry no topic, so dropping them keeps unrelated questions
// orthogonal the way a real sentence model would.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "i": true, "my": true, "do": true,
	"how": true, "to": true, "is": true, "can": true, "where": true,
	"what": true, "why": true, "on": true, "in": true, "of": true,
	"for": true, "it": true, "me": true, "you": true,
}

// BagOfWords hashes each non-stopword token into one of Dims buckets.
// Texts sharing content words get positive cosine similarity; texts sharing
// none are orthogonal (barring bucket collisions).
type BagOfWords struct {
	Dims      int
	ModelName string

	calls atomic.Int64

	mu      sync.Mutex
	failOn  map[string]bool
	failAll bool
}

// NewBagOfWords returns an embedder with DefaultDims buckets.
func NewBagOfWords() *BagOfWords {
	return &BagOfWords{Dims: DefaultDims, ModelName: "bag-of-words-test"}
}

// FailOn makes Embed return ErrInjected for the given texts (after the same
// lowercasing and trimming the resolver applies).
func (b *BagOfWords) FailOn(texts ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failOn == nil {
		b.failOn = make(map[string]bool)
	}
	for _, t := range texts {
		b.failOn[strings.ToLower(strings.TrimSpace(t))] = true
	}
}

// FailAll makes every call fail until reset with FailAll(false).
func (b *BagOfWords) FailAll(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAll = fail
}

// Calls returns the number of texts embedded so far.
func (b *BagOfWords) Calls() int64 { return b.calls.Load() }

// Model returns ModelName.
func (b *BagOfWords) Model() string { return b.ModelName }

// Embed returns the bucket-count vector of text. A text with no content
// words yields a zero vector.
func (b *BagOfWords) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.calls.Add(1)

	b.mu.Lock()
	fail := b.failAll || b.failOn[strings.ToLower(strings.TrimSpace(text))]
	b.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}

	dims := b.Dims
	if dims <= 0 {
		dims = DefaultDims
	}
	vec := make([]float32, dims)
	for _, tok := range strings.Fields(fuzzy.FullProcess(text)) {
		if stopwords[tok] {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(dims)]++
	}
	return vec, nil
}

// EmbedBatch embeds texts sequentially.
func (b *BagOfWords) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := b.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
