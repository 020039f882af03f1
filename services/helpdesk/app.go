// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package helpdesk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/helpdesk/services/helpdesk/config"
	"github.com/AleutianAI/helpdesk/services/helpdesk/embedding"
	"github.com/AleutianAI/helpdesk/services/helpdesk/feedback"
	"github.com/AleutianAI/helpdesk/services/helpdesk/knowledge"
	"github.com/AleutianAI/helpdesk/services/helpdesk/resolver"
	badgerstore "github.com/AleutianAI/helpdesk/services/helpdesk/storage/badger"
)

// ErrNoKnowledgeBase is returned when no knowledge base path was given.
var ErrNoKnowledgeBase = errors.New("helpdesk: knowledge base path is required")

// AppOptions selects the knowledge base, configuration and cache location.
type AppOptions struct {
	// KnowledgeBase is the CSV, TSV, XLSX or YAML file to serve.
	KnowledgeBase string

	// ConfigPath is an optional YAML override of the resolver defaults.
	ConfigPath string

	// CacheDir holds the BadgerDB with cached embeddings and feedback.
	// Empty uses DefaultCacheDir.
	CacheDir string

	// NoCache skips opening BadgerDB entirely.
	NoCache bool

	// NoSemantic disables the embedding stage regardless of config.
	NoSemantic bool

	// Getenv reads environment overrides. nil uses os.Getenv.
	Getenv func(string) string

	// Embedder replaces the configured embedding client.
	Embedder embedding.Embedder

	Logger *slog.Logger
}

// App wires configuration, storage and the embedder shared by every
// resolver built for one process.
//
// # Description
//
// NewApp is called once. BuildResolver may be called any number of times,
// for example on every knowledge base change; each call returns a fresh,
// immutable resolver. Close releases the BadgerDB.
type App struct {
	opts     AppOptions
	cfg      *config.ResolverConfig
	db       *badgerstore.DB
	cache    embedding.VectorCache
	embedder embedding.Embedder
	feedback *feedback.Store
	logger   *slog.Logger
}

// DefaultCacheDir returns $HELPDESK_CACHE_DIR or ~/.aleutian/cache/helpdesk.
func DefaultCacheDir(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if dir := getenv("HELPDESK_CACHE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".aleutian", "cache", "helpdesk")
}

// NewApp loads configuration and opens shared resources.
//
// # Description
//
// Configuration is the embedded defaults, overlaid by ConfigPath, then by
// environment variables. A BadgerDB that cannot be opened is logged and
// skipped; the app then runs without the embedding cache and without
// feedback storage.
//
// # Outputs
//
//   - *App: Ready to build resolvers.
//   - error: ErrNoKnowledgeBase, an invalid configuration, or an embedder
//     that cannot be created.
func NewApp(ctx context.Context, opts AppOptions) (*App, error) {
	if opts.KnowledgeBase == "" {
		return nil, ErrNoKnowledgeBase
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	cfg, err := config.LoadResolverConfigFile(ctx, opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(opts.Getenv); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	if opts.NoSemantic {
		cfg.Semantic.Enabled = false
	}

	a := &App{opts: opts, cfg: cfg, logger: opts.Logger}

	if !opts.NoCache {
		a.openStore()
	}

	if cfg.Semantic.Enabled {
		a.embedder = opts.Embedder
		if a.embedder == nil {
			a.embedder, err = embedding.NewEmbedder(cfg.Embedder, opts.Logger)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("create embedder: %w", err)
			}
		}
	}
	return a, nil
}

func (a *App) openStore() {
	dir := a.opts.CacheDir
	if dir == "" {
		dir = DefaultCacheDir(a.opts.Getenv)
	}
	if dir == "" {
		return
	}

	bcfg := badgerstore.DefaultConfig()
	bcfg.Path = dir
	bcfg.Logger = a.logger
	db, err := badgerstore.OpenDB(bcfg)
	if err != nil {
		a.logger.Warn("Helpdesk BadgerDB unavailable, embedding cache and feedback disabled",
			slog.String("path", dir),
			slog.String("error", err.Error()),
		)
		return
	}
	a.db = db
	a.feedback = feedback.NewStore(db, a.logger)
	if a.cfg.Cache.Enabled {
		a.cache = embedding.NewBadgerVectorCache(db, a.cfg.Cache.TTL, a.logger)
	}
	a.logger.Info("Helpdesk BadgerDB opened", slog.String("path", dir))
}

// Config returns the effective resolver configuration.
func (a *App) Config() *config.ResolverConfig { return a.cfg }

// Feedback returns the feedback store, or nil without BadgerDB.
func (a *App) Feedback() *feedback.Store { return a.feedback }

// Logger returns the logger the app was built with.
func (a *App) Logger() *slog.Logger { return a.logger }

// KnowledgeBasePath returns the file the app serves.
func (a *App) KnowledgeBasePath() string { return a.opts.KnowledgeBase }

// BuildResolver loads the knowledge base file and builds a resolver over it.
func (a *App) BuildResolver(ctx context.Context) (*resolver.Resolver, error) {
	base, err := knowledge.Load(ctx, a.opts.KnowledgeBase)
	if err != nil {
		return nil, err
	}

	opts := []resolver.Option{resolver.WithLogger(a.logger)}
	if a.cache != nil {
		opts = append(opts, resolver.WithVectorCache(a.cache))
	}
	return resolver.Load(ctx, base, a.embedder, a.cfg, opts...)
}

// Close releases the BadgerDB. Safe to call more than once.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
