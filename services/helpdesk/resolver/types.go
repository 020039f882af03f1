// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"errors"
)

// Method names the stage that produced a MatchResult.
type Method string

const (
	MethodGreeting  Method = "greeting"
	MethodGibberish Method = "gibberish"
	MethodFuzzy     Method = "fuzzy"
	MethodSemantic  Method = "semantic"
	MethodNone      Method = "none"
)

// Methods lists every method in classification order. Used to pre-create
// metric label values.
var Methods = []Method{MethodGibberish, MethodGreeting, MethodFuzzy, MethodSemantic, MethodNone}

// Sentinel errors returned by Load.
var (
	// ErrNilConfig means Load was called without a configuration.
	ErrNilConfig = errors.New("resolver: config must not be nil")

	// ErrNoEmbedder means semantic search is enabled but no embedder was given.
	ErrNoEmbedder = errors.New("resolver: semantic search enabled without an embedder")

	// ErrIndexBuild wraps any failure while embedding or indexing questions.
	ErrIndexBuild = errors.New("resolver: building question index")
)

// Candidate is one knowledge-base row scored by a single method.
type Candidate struct {
	Row      int     `json:"row"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Category string  `json:"category,omitempty"`
	Tags     string  `json:"tags,omitempty"`
	Score    float64 `json:"score"`
	Method   Method  `json:"method"`

	// accepted is set when the score clears its method's threshold.
	accepted bool
}

// MatchResult is the reply to one query.
//
// Row is -1 unless Method is fuzzy or semantic. Alternatives is only filled
// in hybrid mode and Suggestions only when Method is none.
type MatchResult struct {
	Answer       string      `json:"answer"`
	Score        float64     `json:"score"`
	Method       Method      `json:"method"`
	Row          int         `json:"row"`
	Question     string      `json:"question,omitempty"`
	Category     string      `json:"category,omitempty"`
	Tags         string      `json:"tags,omitempty"`
	Alternatives []Candidate `json:"alternatives,omitempty"`
	Suggestions  []string    `json:"suggestions,omitempty"`
}

// Matched reports whether the result came from the knowledge base.
func (m MatchResult) Matched() bool {
	return m.Method == MethodFuzzy || m.Method == MethodSemantic
}
