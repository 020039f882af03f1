// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feedback records user reactions to helpdesk answers.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/helpdesk/services/helpdesk/redact"
	badgerstore "github.com/AleutianAI/helpdesk/services/helpdesk/storage/badger"
)

// KeyPrefix is the BadgerDB key prefix for feedback records.
const KeyPrefix = "helpdesk/feedback/v1/"

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// ErrUnknownKind is returned for a reaction outside the four known kinds.
var ErrUnknownKind = errors.New("feedback: unknown kind")

var feedbackTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "helpdesk",
		Subsystem: "feedback",
		Name:      "records_total",
		Help:      "Feedback records stored, by kind",
	},
	[]string{"kind"},
)

// =============================================================================
// Kinds
// =============================================================================

// Kind is a reaction to one answer.
type Kind string

const (
	KindLike     Kind = "like"
	KindDislike  Kind = "dislike"
	KindConfused Kind = "confused"
	KindLove     Kind = "love"
)

var acknowledgements = map[Kind]string{
	KindLike:     "Great! Let me know if there’s anything else.",
	KindDislike:  "I’m sorry. Could you please rephrase?",
	KindConfused: "I’m here to help! Feel free to ask another question.",
	KindLove:     "Thank you for your feedback! 😊",
}

var emojiKinds = map[string]Kind{
	"👍":  KindLike,
	"👎":  KindDislike,
	"🤔":  KindConfused,
	"❤️": KindLove,
	"❤":  KindLove,
}

// ParseKind accepts a kind name in any case or its button emoji.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	if k, ok := emojiKinds[s]; ok {
		return k, nil
	}
	k := Kind(strings.ToLower(s))
	if _, ok := acknowledgements[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Acknowledgement returns the reply shown after a reaction.
func Acknowledgement(kind Kind) (string, error) {
	msg, ok := acknowledgements[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return msg, nil
}

// =============================================================================
// Store
// =============================================================================

// Record is one stored reaction.
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Method    string    `json:"method,omitempty"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists feedback records in BadgerDB.
//
// # Description
//
// Records are keyed by a version 7 UUID, so key order is creation order and
// List can walk the prefix backwards to get the newest first.
//
// # Thread Safety
//
// Safe for concurrent use. Each call runs in its own transaction.
type Store struct {
	db     *badgerstore.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore returns a store over db. db must not be nil.
func NewStore(db *badgerstore.DB, logger *slog.Logger) *Store {
	if db == nil {
		panic("feedback.NewStore: db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

// Record validates rec, assigns its ID and timestamp, and stores it.
// Credentials pasted into the query are masked before it is written.
//
// # Outputs
//
//   - Record: The stored record with ID and CreatedAt set.
//   - error: ErrUnknownKind, or a storage failure.
func (s *Store) Record(ctx context.Context, rec Record) (Record, error) {
	if _, ok := acknowledgements[rec.Kind]; !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownKind, rec.Kind)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Record{}, fmt.Errorf("feedback: generate id: %w", err)
	}
	rec.ID = id.String()
	rec.CreatedAt = s.now().UTC()
	rec.Query = redact.String(rec.Query)

	raw, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("feedback: encode: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set([]byte(KeyPrefix+rec.ID), raw)
	})
	if err != nil {
		return Record{}, fmt.Errorf("feedback: save: %w", err)
	}

	feedbackTotal.WithLabelValues(string(rec.Kind)).Inc()
	s.logger.Info("feedback recorded",
		slog.String("id", rec.ID),
		slog.String("kind", string(rec.Kind)),
		slog.String("method", rec.Method),
	)
	return rec, nil
}

// List returns up to limit records, newest first. A limit <= 0 uses
// DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var out []Record
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(KeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the last key <= seek.
		for it.Seek([]byte(KeyPrefix + "\xff")); it.Valid() && len(out) < limit; it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				s.logger.Warn("feedback: skipping unreadable record",
					slog.String("key", string(it.Item().Key())),
					slog.String("error", err.Error()),
				)
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("feedback: list: %w", err)
	}
	return out, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (Record, bool, error) {
	var rec Record
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(KeyPrefix + id))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("feedback: get: %w", err)
	}
	return rec, found, nil
}
