// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

//go:embed greetings.yaml
var defaultGreetingsYAML []byte

// Greeting maps one phrase to its canned reply.
type Greeting struct {
	Phrase   string `yaml:"phrase" validate:"required"`
	Response string `yaml:"response" validate:"required"`
}

// GreetingTable is the ordered list of greeting and farewell phrases.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type GreetingTable struct {
	Greetings []Greeting `yaml:"greetings" validate:"required,min=1,dive"`
}

// Lookup returns the response for an exact phrase, ignoring case.
func (t *GreetingTable) Lookup(phrase string) (string, bool) {
	for _, g := range t.Greetings {
		if strings.EqualFold(g.Phrase, strings.TrimSpace(phrase)) {
			return g.Response, true
		}
	}
	return "", false
}

// DefaultGreetings parses the embedded greeting table.
func DefaultGreetings(ctx context.Context) (*GreetingTable, error) {
	return LoadGreetings(ctx, defaultGreetingsYAML)
}

// LoadGreetings parses and validates a greeting table.
//
// Description:
//
//	Phrases are lowercased and trimmed. Duplicate phrases are rejected
//	since only the first could ever match.
//
// Outputs:
//
//	*GreetingTable - The table in declared order.
//	error - Wraps ErrInvalidConfig on empty or duplicate phrases.
func LoadGreetings(ctx context.Context, data []byte) (*GreetingTable, error) {
	_, span := configTracer.Start(ctx, "config.LoadGreetings")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadGreetings: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadGreetings: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var table GreetingTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("LoadGreetings: parsing YAML: %w", err)
	}

	seen := make(map[string]bool, len(table.Greetings))
	for i := range table.Greetings {
		g := &table.Greetings[i]
		g.Phrase = strings.ToLower(strings.TrimSpace(g.Phrase))
		g.Response = strings.TrimSpace(g.Response)
		if g.Phrase != "" && seen[g.Phrase] {
			return nil, fmt.Errorf("%w: greetings[%d]: duplicate phrase %q", ErrInvalidConfig, i, g.Phrase)
		}
		seen[g.Phrase] = true
	}

	if err := structValidator().Struct(&table); err != nil {
		return nil, fmt.Errorf("%w: greetings: %v", ErrInvalidConfig, err)
	}

	span.SetAttributes(attribute.Int("greetings", len(table.Greetings)))
	return &table, nil
}
