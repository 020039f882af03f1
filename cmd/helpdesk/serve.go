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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AleutianAI/helpdesk/services/helpdesk"
)

type serveOptions struct {
	port      int
	watch     bool
	rateLimit float64
	rateBurst int
	debug     bool
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	so := &serveOptions{}
	defaults := helpdesk.DefaultRouterConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the helpdesk HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, so)
		},
	}
	cmd.Flags().IntVar(&so.port, "port", 8080, "port to listen on")
	cmd.Flags().BoolVar(&so.watch, "watch", false, "reload the knowledge base when the file changes")
	cmd.Flags().Float64Var(&so.rateLimit, "rate-limit", defaults.RateLimit, "requests per second per client, 0 disables")
	cmd.Flags().IntVar(&so.rateBurst, "rate-burst", defaults.RateBurst, "burst size per client")
	cmd.Flags().BoolVar(&so.debug, "debug", false, "gin debug mode and access log")
	return cmd
}

// newServer builds the http.Server for an already loaded holder.
func newServer(app *helpdesk.App, holder *helpdesk.ResolverHolder, so *serveOptions) *http.Server {
	routerCfg := helpdesk.DefaultRouterConfig()
	routerCfg.RateLimit = so.rateLimit
	routerCfg.RateBurst = so.rateBurst
	routerCfg.AccessLog = so.debug

	router := helpdesk.NewRouter(helpdesk.NewHandlers(holder, app.Feedback(), app.Logger()), routerCfg)
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", so.port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func runServe(parent context.Context, opts *rootOptions, so *serveOptions) error {
	if so.debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, r, err := opts.loadResolver(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("Failed to close helpdesk BadgerDB", slog.String("error", err.Error()))
		}
	}()

	holder := helpdesk.NewResolverHolder(r)

	if so.watch {
		watcher := helpdesk.NewKnowledgeBaseWatcher(app.KnowledgeBasePath(), app.BuildResolver, holder, slog.Default())
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("Knowledge base watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	srv := newServer(app, holder, so)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting helpdesk server",
			slog.String("address", srv.Addr),
			slog.Int("entries", r.Base().Len()),
			slog.Bool("semantic", r.SemanticEnabled()),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down helpdesk server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
