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

// =============================================================================
// VectorCache: Question Embedding Persistence
// =============================================================================
//
// Embedding every knowledge-base question on startup costs one model call per
// row. The vectors only change when the question set or the model changes,
// so they are stored in BadgerDB keyed by a corpus hash.
//
// Storage layout:
//
//	helpdesk/emb/v1/{corpusHash}  →  gob-encoded map[string][]float32
//	                                  (normalized question → unit vector)
//	                                  TTL: 7 days by default
//
// Answers, categories and tags are not part of the hash. Editing an answer
// does not require re-embedding.

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/AleutianAI/helpdesk/services/helpdesk/storage/badger"
)

// DefaultCacheTTL is the lifetime of a cached corpus entry.
const DefaultCacheTTL = 7 * 24 * time.Hour

// CacheKeyPrefix is prepended to the corpus hash to form the BadgerDB key.
const CacheKeyPrefix = "helpdesk/emb/v1/"

// errCacheMiss distinguishes "key not found" from a storage failure.
var errCacheMiss = errors.New("cache miss")

// VectorCache persists question vectors across restarts.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type VectorCache interface {
	// Load returns (nil, nil) on a miss, (nil, err) on storage failure and
	// a non-empty map on a hit.
	Load(ctx context.Context, corpusHash string) (map[string][]float32, error)

	// Save stores vectors under corpusHash. Empty maps are ignored.
	Save(ctx context.Context, corpusHash string, vectors map[string][]float32) error
}

// BadgerVectorCache implements VectorCache on a shared BadgerDB.
//
// # Description
//
// The caller owns the DB and must keep it open while the cache is used.
// Expiry is left to Badger's TTL; an expired key reads as a miss.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerVectorCache struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerVectorCache creates a cache on db. A ttl <= 0 uses DefaultCacheTTL.
// It panics if db is nil.
func NewBadgerVectorCache(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *BadgerVectorCache {
	if db == nil {
		panic("NewBadgerVectorCache: db must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerVectorCache{db: db, ttl: ttl, logger: logger}
}

// Load retrieves the vectors stored for corpusHash.
func (s *BadgerVectorCache) Load(ctx context.Context, corpusHash string) (map[string][]float32, error) {
	key := CacheKey(corpusHash)

	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errCacheMiss) {
		s.logger.Debug("embedding cache: miss", slog.String("hash", ShortHash(corpusHash)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding cache load: %w", err)
	}

	vectors, err := DecodeVectors(raw)
	if err != nil {
		return nil, fmt.Errorf("embedding cache decode: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	s.logger.Debug("embedding cache: hit",
		slog.String("hash", ShortHash(corpusHash)),
		slog.Int("questions", len(vectors)),
	)
	return vectors, nil
}

// Save writes vectors under corpusHash with the configured TTL.
func (s *BadgerVectorCache) Save(ctx context.Context, corpusHash string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	raw, err := EncodeVectors(vectors)
	if err != nil {
		return fmt.Errorf("embedding cache encode: %w", err)
	}

	key := CacheKey(corpusHash)
	err = s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.SetEntry(dgbadger.NewEntry(key, raw).WithTTL(s.ttl))
	})
	if err != nil {
		return fmt.Errorf("embedding cache save: %w", err)
	}

	s.logger.Debug("embedding cache: saved",
		slog.String("hash", ShortHash(corpusHash)),
		slog.Int("questions", len(vectors)),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

// =============================================================================
// Corpus Hash
// =============================================================================

// CorpusHash returns a hex SHA-256 over the distinct questions and the model.
//
// Questions are sorted and deduplicated so reordering or duplicating rows
// in the knowledge base keeps the same hash. Any added, removed or edited
// question, or a different model, changes it.
func CorpusHash(questions []string, model string) string {
	sorted := make([]string, len(questions))
	copy(sorted, questions)
	sort.Strings(sorted)

	h := sha256.New()
	prev := ""
	for i, q := range sorted {
		if i > 0 && q == prev {
			continue
		}
		prev = q
		// Newline-terminated entries keep boundaries unambiguous.
		fmt.Fprintf(h, "%s\n", q)
	}
	fmt.Fprintf(h, "model=%s\n", model)

	return hex.EncodeToString(h.Sum(nil))
}

// =============================================================================
// Helpers
// =============================================================================

// CacheKey builds the BadgerDB key for corpusHash.
func CacheKey(corpusHash string) []byte {
	return []byte(CacheKeyPrefix + corpusHash)
}

// ShortHash returns the first 8 characters of a hash for log display.
func ShortHash(h string) string {
	if len(h) > 8 {
		return h[:8] + "..."
	}
	return h
}

// EncodeVectors serializes a question→vector map with encoding/gob.
func EncodeVectors(vectors map[string][]float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vectors); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeVectors is the inverse of EncodeVectors.
func DecodeVectors(data []byte) (map[string][]float32, error) {
	var vectors map[string][]float32
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return vectors, nil
}
