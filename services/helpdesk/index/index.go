// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index is an exact cosine nearest-neighbour index over question
// embeddings.
//
// Knowledge bases are a few hundred to a few thousand rows, so a linear scan
// over unit vectors answers a query in well under a millisecond and needs no
// approximate structure.
package index

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AleutianAI/helpdesk/services/helpdesk/embedding"
)

var (
	// ErrDimensionMismatch means vectors of different lengths were supplied.
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")

	// ErrZeroVector means a vector had zero norm and has no direction.
	ErrZeroVector = errors.New("index: zero vector")

	// ErrEmpty means Build was called with no vectors.
	ErrEmpty = errors.New("index: no vectors")
)

// Neighbor is one search hit.
type Neighbor struct {
	// Row is the position of the vector passed to Build.
	Row int

	// Distance is the cosine distance, 1 - Similarity, in [0, 2].
	Distance float64

	// Similarity is the cosine similarity in [-1, 1].
	Similarity float64
}

// Index holds unit-normalized row vectors.
//
// # Thread Safety
//
// Read-only after Build; safe for concurrent Search.
type Index struct {
	dims    int
	vectors [][]float32
}

// Build normalizes vectors and returns an index over them. Row i of the
// index corresponds to vectors[i].
func Build(vectors [][]float32) (*Index, error) {
	if len(vectors) == 0 {
		return nil, ErrEmpty
	}
	dims := len(vectors[0])
	unit := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: row %d has %d dims, want %d", ErrDimensionMismatch, i, len(v), dims)
		}
		u := embedding.Normalize(v)
		if u == nil {
			return nil, fmt.Errorf("%w: row %d", ErrZeroVector, i)
		}
		unit[i] = u
	}
	return &Index{dims: dims, vectors: unit}, nil
}

// Len returns the number of rows.
func (x *Index) Len() int { return len(x.vectors) }

// Dims returns the vector dimension.
func (x *Index) Dims() int { return x.dims }

// Search returns up to k nearest rows by ascending cosine distance. Equal
// distances keep row order. It returns an error if query has the wrong
// dimension or zero norm. A k <= 0 returns every row.
func (x *Index) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != x.dims {
		return nil, fmt.Errorf("%w: query has %d dims, want %d", ErrDimensionMismatch, len(query), x.dims)
	}
	q := embedding.Normalize(query)
	if q == nil {
		return nil, ErrZeroVector
	}

	hits := make([]Neighbor, len(x.vectors))
	for i, v := range x.vectors {
		sim := embedding.Dot(q, v)
		// Float error can push unit dot products slightly outside [-1, 1].
		sim = max(-1, min(1, sim))
		hits[i] = Neighbor{Row: i, Similarity: sim, Distance: 1 - sim}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
