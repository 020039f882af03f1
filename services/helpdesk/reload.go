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
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/helpdesk/services/helpdesk/resolver"
)

// DefaultReloadDebounce coalesces the burst of events an editor produces
// when saving a file.
const DefaultReloadDebounce = 250 * time.Millisecond

var reloadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "helpdesk",
		Subsystem: "knowledge",
		Name:      "reloads_total",
		Help:      "Knowledge base reloads, by result",
	},
	[]string{"result"},
)

// BuildFunc builds a fresh resolver from the current knowledge base file.
type BuildFunc func(ctx context.Context) (*resolver.Resolver, error)

// KnowledgeBaseWatcher rebuilds the resolver when the knowledge base file
// changes and swaps it into a ResolverHolder.
//
// # Description
//
// The parent directory is watched rather than the file itself, so editors
// that save by writing a temp file and renaming it are still seen. Events
// for other files are ignored. A failed rebuild is logged and the previous
// resolver stays active.
//
// # Thread Safety
//
// Run must be called once. Reload is safe to call concurrently with Run.
type KnowledgeBaseWatcher struct {
	path     string
	build    BuildFunc
	holder   *ResolverHolder
	logger   *slog.Logger
	debounce time.Duration
}

// NewKnowledgeBaseWatcher watches path and rebuilds with build.
func NewKnowledgeBaseWatcher(path string, build BuildFunc, holder *ResolverHolder, logger *slog.Logger) *KnowledgeBaseWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return &KnowledgeBaseWatcher{
		path:     abs,
		build:    build,
		holder:   holder,
		logger:   logger,
		debounce: DefaultReloadDebounce,
	}
}

// Run watches until ctx is cancelled.
func (w *KnowledgeBaseWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("Watching knowledge base for changes", slog.String("path", w.path))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Knowledge base watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			_ = w.Reload(ctx)
		}
	}
}

// Reload rebuilds the resolver now. On failure the active resolver is kept
// and the error is returned.
func (w *KnowledgeBaseWatcher) Reload(ctx context.Context) error {
	start := time.Now()
	r, err := w.build(ctx)
	if err != nil {
		reloadsTotal.WithLabelValues("error").Inc()
		w.logger.Warn("Knowledge base reload failed, keeping previous resolver",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return err
	}

	w.holder.Store(r)
	reloadsTotal.WithLabelValues("success").Inc()
	w.logger.Info("Knowledge base reloaded",
		slog.String("path", w.path),
		slog.Int("entries", r.Base().Len()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
