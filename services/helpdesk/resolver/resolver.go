// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver answers free-text helpdesk queries from a knowledge base.
//
// A query is classified as gibberish, a greeting or a question. Questions are
// matched first by token-sort fuzzy ratio and then by embedding similarity;
// a query that clears neither threshold gets a fixed no-match reply.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/helpdesk/services/helpdesk/config"
	"github.com/AleutianAI/helpdesk/services/helpdesk/embedding"
	"github.com/AleutianAI/helpdesk/services/helpdesk/fuzzy"
	"github.com/AleutianAI/helpdesk/services/helpdesk/index"
	"github.com/AleutianAI/helpdesk/services/helpdesk/knowledge"
	"github.com/AleutianAI/helpdesk/services/helpdesk/redact"
)

// =============================================================================
// Options
// =============================================================================

type options struct {
	logger    *slog.Logger
	greetings *config.GreetingTable
	cache     embedding.VectorCache
}

// Option configures Load.
type Option func(*options)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithGreetings replaces the embedded greeting table.
func WithGreetings(t *config.GreetingTable) Option {
	return func(o *options) { o.greetings = t }
}

// WithVectorCache persists question embeddings between loads.
func WithVectorCache(c embedding.VectorCache) Option {
	return func(o *options) { o.cache = c }
}

// =============================================================================
// Resolver
// =============================================================================

// Resolver answers queries against one knowledge base.
//
// # Description
//
// Everything a query needs is computed by Load: processed question text for
// fuzzy matching and, when semantic search is enabled, the question
// embedding index. Answer only reads that state.
//
// # Thread Safety
//
// Immutable after Load; safe for concurrent use.
type Resolver struct {
	base      *knowledge.Base
	cfg       config.ResolverConfig
	greetings *config.GreetingTable
	embedder  embedding.Embedder
	index     *index.Index
	logger    *slog.Logger

	questions []string // question text as loaded, by row
	processed []string // fuzzy.FullProcess by row
	sorted    []string // fuzzy.SortedTokens by row

	corpusHash string
}

// Load builds a resolver over base.
//
// # Description
//
// When cfg.Semantic.Enabled is set, every question is embedded (lowercased
// and trimmed) and indexed. With a VectorCache the vectors are looked up by
// corpus hash first and saved after a fresh embedding. Cache failures are
// logged and do not fail the load.
//
// # Inputs
//
//   - ctx: Context for the embedding calls.
//   - base: Knowledge base. Must hold at least one entry.
//   - emb: Embedder. May be nil only when semantic search is disabled.
//   - cfg: Validated resolver config. It is copied.
//   - opts: Optional logger, greeting table and vector cache.
//
// # Outputs
//
//   - *Resolver: Ready to answer.
//   - error: knowledge.ErrEmptyKnowledgeBase, ErrNilConfig, ErrNoEmbedder,
//     or ErrIndexBuild wrapping the embedding failure. All are fatal for
//     the caller.
func Load(ctx context.Context, base *knowledge.Base, emb embedding.Embedder, cfg *config.ResolverConfig, opts ...Option) (*Resolver, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.Load")
	defer span.End()

	if base == nil || base.Len() == 0 {
		return nil, fmt.Errorf("resolver: %w", knowledge.ErrEmptyKnowledgeBase)
	}
	if cfg == nil {
		return nil, ErrNilConfig
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.greetings == nil {
		table, err := config.DefaultGreetings(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolver: load greetings: %w", err)
		}
		o.greetings = table
	}

	r := &Resolver{
		base:      base,
		cfg:       *cfg,
		greetings: o.greetings,
		logger:    o.logger,
	}

	entries := base.Entries()
	r.questions = make([]string, len(entries))
	r.processed = make([]string, len(entries))
	r.sorted = make([]string, len(entries))
	for i, e := range entries {
		r.questions[i] = e.Question
		r.processed[i] = fuzzy.FullProcess(e.Question)
		r.sorted[i] = fuzzy.SortedTokens(e.Question)
	}

	if cfg.Semantic.Enabled {
		if emb == nil {
			return nil, ErrNoEmbedder
		}
		r.embedder = emb
		start := time.Now()
		if err := r.buildIndex(ctx, o.cache); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "index build failed")
			return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
		}
		r.logger.Info("resolver: question index ready",
			slog.Int("questions", r.index.Len()),
			slog.Int("dims", r.index.Dims()),
			slog.String("model", emb.Model()),
			slog.String("corpus_hash", embedding.ShortHash(r.corpusHash)),
			slog.Duration("duration", time.Since(start)),
		)
	}

	kbEntries.Set(float64(base.Len()))
	span.SetAttributes(
		attribute.Int("entries", base.Len()),
		attribute.String("mode", cfg.Mode),
		attribute.Bool("semantic", cfg.Semantic.Enabled),
	)
	return r, nil
}

// buildIndex embeds every question, reusing cached vectors when possible.
func (r *Resolver) buildIndex(ctx context.Context, cache embedding.VectorCache) error {
	texts := make([]string, len(r.questions))
	for i, q := range r.questions {
		texts[i] = embedText(q)
	}
	r.corpusHash = embedding.CorpusHash(texts, r.embedder.Model())

	vectors := make(map[string][]float32, len(texts))
	if cache != nil {
		cached, err := cache.Load(ctx, r.corpusHash)
		switch {
		case err != nil:
			indexCacheTotal.WithLabelValues("error").Inc()
			r.logger.Warn("resolver: embedding cache load failed, embedding all questions",
				slog.String("error", err.Error()),
			)
		case len(cached) > 0:
			indexCacheTotal.WithLabelValues("hit").Inc()
			vectors = cached
		default:
			indexCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	var missing []string
	queued := make(map[string]bool)
	for _, t := range texts {
		if _, ok := vectors[t]; !ok && !queued[t] {
			queued[t] = true
			missing = append(missing, t)
		}
	}

	if len(missing) > 0 {
		embedded, err := r.embedder.EmbedBatch(ctx, missing)
		if err != nil {
			return err
		}
		if len(embedded) != len(missing) {
			return fmt.Errorf("embedder returned %d vectors for %d questions", len(embedded), len(missing))
		}
		for i, t := range missing {
			unit := embedding.Normalize(embedded[i])
			if unit == nil {
				return fmt.Errorf("question %q: %w", t, index.ErrZeroVector)
			}
			vectors[t] = unit
		}
	}

	rows := make([][]float32, len(texts))
	for i, t := range texts {
		rows[i] = vectors[t]
	}
	idx, err := index.Build(rows)
	if err != nil {
		return err
	}
	r.index = idx

	if len(missing) > 0 && cache != nil {
		if err := cache.Save(ctx, r.corpusHash, vectors); err != nil {
			r.logger.Warn("resolver: failed to persist question embeddings",
				slog.String("error", err.Error()),
				slog.String("corpus_hash", embedding.ShortHash(r.corpusHash)),
			)
		}
	}
	return nil
}

// =============================================================================
// Accessors
// =============================================================================

// Base returns the knowledge base the resolver was loaded with.
func (r *Resolver) Base() *knowledge.Base { return r.base }

// Config returns a copy of the resolver configuration.
func (r *Resolver) Config() config.ResolverConfig { return r.cfg }

// SemanticEnabled reports whether the embedding stage is active.
func (r *Resolver) SemanticEnabled() bool { return r.index != nil }

// CorpusHash returns the embedding cache key, or "" without semantic search.
func (r *Resolver) CorpusHash() string { return r.corpusHash }

// =============================================================================
// Answer
// =============================================================================

// Answer classifies query and returns the best reply.
//
// # Description
//
// Stages, first hit wins:
//  1. Input shorter than two runes or without any word character: gibberish.
//  2. A greeting phrase scoring above greeting_threshold: its canned reply,
//     score 1.0.
//  3. Fewer than three distinct runes, or mostly non-word tokens: gibberish.
//  4. Cascade mode: best token-sort ratio above fuzzy.threshold, then the
//     nearest question within semantic.max_distance. Hybrid mode: merged
//     candidates as described on Search, first one clearing its threshold.
//  5. Otherwise none, with "did you mean" suggestions.
//
// The greeting check runs before the distinct-rune rule so that "hi" is
// answered as a greeting.
//
// # Outputs
//
//   - MatchResult: Never an error. A failed query embedding yields none.
//
// # Thread Safety
//
// Safe for concurrent use.
func (r *Resolver) Answer(ctx context.Context, query string) (result MatchResult) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.Answer")
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("resolver: recovered panic in Answer", slog.Any("panic", p))
			result = r.noMatch("")
		}
		span.SetAttributes(
			attribute.String("method", string(result.Method)),
			attribute.Float64("score", result.Score),
			attribute.Int("row", result.Row),
		)
		span.End()
		recordAnswer(result.Method, time.Since(start))
		r.logger.Debug("resolver: answered",
			slog.String("query", redact.String(query)),
			slog.String("method", string(result.Method)),
			slog.Float64("score", result.Score),
			slog.Int("row", result.Row),
			slog.Duration("duration", time.Since(start)),
		)
	}()

	if IsHardGibberish(query) {
		return r.gibberish()
	}
	if g, ok := MatchGreeting(r.greetings, query, r.cfg.GreetingThreshold); ok {
		return MatchResult{Answer: g.Response, Score: 1.0, Method: MethodGreeting, Row: -1}
	}
	if IsSoftGibberish(query) {
		return r.gibberish()
	}

	if r.cfg.Mode == config.ModeHybrid {
		return r.answerHybrid(ctx, query)
	}
	return r.answerCascade(ctx, query)
}

func (r *Resolver) answerCascade(ctx context.Context, query string) MatchResult {
	if top := r.fuzzyTop(query, 1); len(top) > 0 && top[0].accepted {
		return r.fromCandidate(top[0], nil)
	}

	if r.index == nil {
		return r.noMatch(query)
	}
	hits, err := r.semanticTop(ctx, query, 1)
	if err != nil {
		return r.noMatch(query)
	}
	if len(hits) > 0 && hits[0].accepted {
		return r.fromCandidate(hits[0], nil)
	}
	return r.noMatch(query)
}

func (r *Resolver) answerHybrid(ctx context.Context, query string) MatchResult {
	var semantic []Candidate
	if r.index != nil {
		var err error
		semantic, err = r.semanticTop(ctx, query, r.cfg.TopK)
		if err != nil {
			return r.noMatch(query)
		}
	}
	merged := mergeCandidates(semantic, r.fuzzyTop(query, r.cfg.TopK), r.cfg.TopK)

	for i, c := range merged {
		if !c.accepted {
			continue
		}
		alts := make([]Candidate, 0, len(merged)-1)
		alts = append(alts, merged[:i]...)
		alts = append(alts, merged[i+1:]...)
		return r.fromCandidate(c, alts)
	}
	return r.noMatch(query)
}

// =============================================================================
// Search
// =============================================================================

// Search returns up to topK candidates from both methods without applying
// thresholds or classification.
//
// # Description
//
// Semantic candidates are listed before fuzzy ones, duplicates of the same
// row keep their first occurrence, and the result is stably sorted by score
// descending. If the query cannot be embedded only fuzzy candidates are
// returned. A topK <= 0 uses the configured top_k.
//
// # Thread Safety
//
// Safe for concurrent use.
func (r *Resolver) Search(ctx context.Context, query string, topK int) []Candidate {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolver.Search")
	defer span.End()

	if topK <= 0 {
		topK = r.cfg.TopK
	}
	var semantic []Candidate
	if r.index != nil && strings.TrimSpace(query) != "" {
		// An embedding failure is already logged and counted.
		semantic, _ = r.semanticTop(ctx, query, topK)
	}
	merged := mergeCandidates(semantic, r.fuzzyTop(query, topK), topK)
	span.SetAttributes(attribute.Int("results", len(merged)))
	return merged
}

// mergeCandidates concatenates semantic then fuzzy, drops repeated rows,
// stably sorts by score descending and keeps topK.
func mergeCandidates(semantic, fuzzyHits []Candidate, topK int) []Candidate {
	all := make([]Candidate, 0, len(semantic)+len(fuzzyHits))
	all = append(all, semantic...)
	all = append(all, fuzzyHits...)

	seen := make(map[int]bool, len(all))
	merged := all[:0]
	for _, c := range all {
		if seen[c.Row] {
			continue
		}
		seen[c.Row] = true
		merged = append(merged, c)
	}

	sortCandidates(merged)
	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

// =============================================================================
// Stages
// =============================================================================

// fuzzyTop scores every question by token-sort ratio.
func (r *Resolver) fuzzyTop(query string, k int) []Candidate {
	sq := fuzzy.SortedTokens(query)
	if sq == "" {
		return nil
	}
	matches := fuzzy.ExtractTop(sq, r.sorted, fuzzy.Ratio, k)
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		c := r.candidate(m.Index, float64(m.Score)/100, MethodFuzzy)
		c.accepted = m.Score > r.cfg.Fuzzy.Threshold
		out = append(out, c)
	}
	return out
}

// semanticTop embeds the query and returns the k nearest questions.
func (r *Resolver) semanticTop(ctx context.Context, query string, k int) ([]Candidate, error) {
	qctx, cancel := context.WithTimeout(ctx, r.cfg.Semantic.QueryTimeout)
	defer cancel()

	vec, err := r.embedder.Embed(qctx, embedText(query))
	if err == nil {
		var hits []index.Neighbor
		hits, err = r.index.Search(vec, k)
		if err == nil {
			out := make([]Candidate, 0, len(hits))
			for _, h := range hits {
				c := r.candidate(h.Row, clamp01(1-h.Distance), MethodSemantic)
				c.accepted = h.Distance <= r.cfg.Semantic.MaxDistance
				out = append(out, c)
			}
			return out, nil
		}
	}

	embedFailuresTotal.Inc()
	r.logger.Warn("resolver: query embedding failed, treating as no match",
		slog.String("error", redact.String(err.Error())),
	)
	return nil, err
}

func (r *Resolver) candidate(row int, score float64, method Method) Candidate {
	e, _ := r.base.Entry(row)
	return Candidate{
		Row:      row,
		Question: e.Question,
		Answer:   e.Answer,
		Category: e.Category,
		Tags:     e.Tags,
		Score:    score,
		Method:   method,
	}
}

// =============================================================================
// Results
// =============================================================================

func (r *Resolver) fromCandidate(c Candidate, alternatives []Candidate) MatchResult {
	answer := c.Answer
	if r.cfg.Response.AppendMetadata {
		answer = decorate(answer, c.Category, c.Tags)
	}
	if len(alternatives) == 0 {
		alternatives = nil
	}
	return MatchResult{
		Answer:       answer,
		Score:        clamp01(c.Score),
		Method:       c.Method,
		Row:          c.Row,
		Question:     c.Question,
		Category:     c.Category,
		Tags:         c.Tags,
		Alternatives: alternatives,
	}
}

func (r *Resolver) gibberish() MatchResult {
	return MatchResult{Answer: r.cfg.Response.Gibberish, Score: 0, Method: MethodGibberish, Row: -1}
}

func (r *Resolver) noMatch(query string) MatchResult {
	res := MatchResult{Answer: r.cfg.Response.NoMatch, Score: 0, Method: MethodNone, Row: -1}
	for _, s := range suggest(fuzzy.FullProcess(query), r.processed, r.questions,
		r.cfg.Suggestions.Limit, r.cfg.Suggestions.MinSimilarity) {
		res.Suggestions = append(res.Suggestions, s.question)
	}
	return res
}

// decorate appends the category and tag lines shown under an answer.
func decorate(answer, category, tags string) string {
	var b strings.Builder
	b.WriteString(answer)
	if c := strings.TrimSpace(category); c != "" {
		b.WriteString("\n\n**Category:** ")
		b.WriteString(c)
	}
	if t := strings.TrimSpace(tags); t != "" {
		b.WriteString("\n\n**Related:** ")
		b.WriteString(t)
	}
	return b.String()
}

// =============================================================================
// Helpers
// =============================================================================

// embedText is the form of a question or query sent to the embedder.
func embedText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clamp01(x float64) float64 {
	return max(0, min(1, x))
}

func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].Score > cs[j].Score
	})
}
