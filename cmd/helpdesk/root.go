// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/helpdesk/services/helpdesk"
	"github.com/AleutianAI/helpdesk/services/helpdesk/resolver"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	kb         string
	configPath string
	cacheDir   string
	logLevel   string
	noSemantic bool
	noCache    bool

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "helpdesk",
		Short: "Answer IT helpdesk questions from a FAQ knowledge base",
		Long: `helpdesk matches free-text questions against a FAQ file (CSV, TSV, XLSX
or YAML with Questions and Answers columns).

Each query is checked for gibberish and greetings, then matched by fuzzy
token-sort similarity and, failing that, by embedding similarity.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.kb, "kb", os.Getenv("HELPDESK_KB"), "knowledge base file (env HELPDESK_KB)")
	flags.StringVar(&opts.configPath, "config", "", "resolver config YAML overriding the defaults")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "BadgerDB directory for embeddings and feedback (env HELPDESK_CACHE_DIR)")
	flags.StringVar(&opts.logLevel, "log-level", envOr("HELPDESK_LOG_LEVEL", "warn"), "debug, info, warn or error (env HELPDESK_LOG_LEVEL)")
	flags.BoolVar(&opts.noSemantic, "no-semantic", false, "disable embedding search and use fuzzy matching only")
	flags.BoolVar(&opts.noCache, "no-cache", false, "do not open the BadgerDB cache")

	root.AddCommand(
		newAskCmd(opts),
		newChatCmd(opts),
		newServeCmd(opts),
		newInspectCmd(opts),
	)
	return root
}

// newLogger builds the text handler on w at the named level.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// newApp creates the shared App for a subcommand.
func (o *rootOptions) newApp(ctx context.Context) (*helpdesk.App, error) {
	return helpdesk.NewApp(ctx, helpdesk.AppOptions{
		KnowledgeBase: o.kb,
		ConfigPath:    o.configPath,
		CacheDir:      o.cacheDir,
		NoCache:       o.noCache,
		NoSemantic:    o.noSemantic,
		Logger:        o.logger,
	})
}

// loadResolver creates the App and builds one resolver. The caller closes
// the App.
func (o *rootOptions) loadResolver(ctx context.Context) (*helpdesk.App, *resolver.Resolver, error) {
	app, err := o.newApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	r, err := app.BuildResolver(ctx)
	if err != nil {
		_ = app.Close()
		return nil, nil, fmt.Errorf("load knowledge base %s: %w", o.kb, err)
	}
	return app, r, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
