// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// embedding_cache_dump inspects the helpdesk BadgerDB.
//
// The helpdesk stores one entry of question vectors per knowledge base
// corpus hash, plus user feedback records. This tool opens the directory
// read-only and prints every vector entry (corpus hash, TTL remaining,
// question count, dimensions, a short sample per question) followed by a
// feedback count per kind.
//
// Usage:
//
//	embedding_cache_dump [--path /path/to/helpdesk/cache] [--samples 4]
//
// If --path is not given, reads HELPDESK_CACHE_DIR from the environment,
// falling back to ~/.aleutian/cache/helpdesk/.
//
// Exit codes:
//
//	0 - success (including an empty or missing cache)
//	1 - error opening or reading the database
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/helpdesk/services/helpdesk"
	"github.com/AleutianAI/helpdesk/services/helpdesk/embedding"
	"github.com/AleutianAI/helpdesk/services/helpdesk/feedback"
	badgerstore "github.com/AleutianAI/helpdesk/services/helpdesk/storage/badger"
)

func main() {
	pathFlag := flag.String("path", "", "Path to the helpdesk BadgerDB directory (overrides HELPDESK_CACHE_DIR)")
	samples := flag.Int("samples", 4, "Vector values to print per question")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = helpdesk.DefaultCacheDir(os.Getenv)
	}
	if dbPath == "" {
		fatalf("cannot resolve cache directory, pass --path")
	}

	if err := dump(os.Stdout, dbPath, *samples, time.Now()); err != nil {
		fatalf("%v", err)
	}
}

// cacheEntry is one decoded vector entry.
type cacheEntry struct {
	key        string
	corpusHash string
	expiresAt  time.Time
	hasExpiry  bool
	vectors    map[string][]float32
	rawSize    int
	decodeErr  error
}

// snapshot is everything read from the database in one transaction.
type snapshot struct {
	entries  []cacheEntry
	feedback map[feedback.Kind]int
	corrupt  int
}

// dump writes the report for the database at dbPath to w.
func dump(w io.Writer, dbPath string, samples int, now time.Time) error {
	fmt.Fprintf(w, "Helpdesk cache path: %s\n", dbPath)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintln(w, "Cache directory does not exist. Run the helpdesk with semantic matching enabled to populate it.")
		return nil
	}

	cfg := badgerstore.DefaultConfig()
	cfg.Path = dbPath
	cfg.ReadOnly = true
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := badgerstore.OpenDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	snap, err := readSnapshot(context.Background(), db)
	if err != nil {
		return fmt.Errorf("read BadgerDB: %w", err)
	}

	printEntries(w, snap.entries, samples, now)
	printFeedback(w, snap)
	return nil
}

func readSnapshot(ctx context.Context, db *badgerstore.DB) (*snapshot, error) {
	snap := &snapshot{feedback: make(map[feedback.Kind]int)}

	err := db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(embedding.CacheKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			snap.entries = append(snap.entries, decodeEntry(it.Item()))
		}

		prefix = []byte(feedback.KeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec feedback.Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				snap.corrupt++
				continue
			}
			snap.feedback[rec.Kind]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func decodeEntry(item *dgbadger.Item) cacheEntry {
	key := string(item.Key())
	e := cacheEntry{
		key:        key,
		corpusHash: strings.TrimPrefix(key, embedding.CacheKeyPrefix),
	}

	// ExpiresAt is Unix seconds, 0 means no expiry.
	if expiresAt := item.ExpiresAt(); expiresAt > 0 {
		e.hasExpiry = true
		e.expiresAt = time.Unix(int64(expiresAt), 0)
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		e.decodeErr = fmt.Errorf("copy value: %w", err)
		return e
	}
	e.rawSize = len(raw)
	e.vectors, e.decodeErr = embedding.DecodeVectors(raw)
	return e
}

func printEntries(w io.Writer, entries []cacheEntry, samples int, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "\nNo embedding cache entries found.")
		return
	}

	fmt.Fprintf(w, "\nFound %d embedding cache entr%s:\n", len(entries), plural(len(entries), "y", "ies"))
	fmt.Fprintln(w, strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Fprintf(w, "\n[%d] Key:         %s\n", i+1, e.key)
		fmt.Fprintf(w, "    Corpus hash: %s\n", embedding.ShortHash(e.corpusHash))

		if e.hasExpiry {
			remaining := e.expiresAt.Sub(now)
			if remaining < 0 {
				fmt.Fprintf(w, "    TTL:         EXPIRED (%s ago)\n", (-remaining).Round(time.Second))
			} else {
				fmt.Fprintf(w, "    TTL:         %s remaining (expires %s)\n",
					remaining.Round(time.Second),
					e.expiresAt.Format("2006-01-02 15:04:05 MST"),
				)
			}
		} else {
			fmt.Fprintln(w, "    TTL:         no expiry set")
		}

		fmt.Fprintf(w, "    Raw size:    %s\n", formatBytes(e.rawSize))

		if e.decodeErr != nil {
			fmt.Fprintf(w, "    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}

		fmt.Fprintf(w, "    Questions:   %d vectors\n", len(e.vectors))

		questions := make([]string, 0, len(e.vectors))
		for q := range e.vectors {
			questions = append(questions, q)
		}
		sort.Strings(questions)

		fmt.Fprintf(w, "\n    %5s  %7s  %s\n", "Dims", "L2Norm", "Question / sample")
		for _, q := range questions {
			vec := e.vectors[q]
			fmt.Fprintf(w, "    %5d  %7.4f  %s\n", len(vec), embedding.L2Norm(vec), truncate(q, 60))
			fmt.Fprintf(w, "    %5s  %7s  %s\n", "", "", formatSample(vec, samples))
		}
	}
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("─", 80))
}

func printFeedback(w io.Writer, snap *snapshot) {
	total := snap.corrupt
	for _, n := range snap.feedback {
		total += n
	}
	fmt.Fprintf(w, "\nFeedback records: %d\n", total)
	if total == 0 {
		return
	}

	kinds := make([]string, 0, len(snap.feedback))
	for k := range snap.feedback {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "    %-10s %d\n", k, snap.feedback[feedback.Kind(k)])
	}
	if snap.corrupt > 0 {
		fmt.Fprintf(w, "    %-10s %d\n", "corrupt", snap.corrupt)
	}
}

// formatSample returns the first n values of a vector as a bracketed string.
func formatSample(v []float32, n int) string {
	if len(v) == 0 {
		return "[]"
	}
	if n > len(v) {
		n = len(v)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%+.4f", v[i])
	}
	suffix := ""
	if len(v) > n {
		suffix = " ..."
	}
	return "[" + strings.Join(parts, ", ") + suffix + "]"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "embedding_cache_dump: "+format+"\n", args...)
	os.Exit(1)
}
