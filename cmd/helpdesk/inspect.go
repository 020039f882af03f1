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
	"fmt"

	"github.com/spf13/cobra"
)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show knowledge base statistics and the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, r, err := opts.loadResolver(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			s := newStyles(out)
			base := r.Base()
			cfg := r.Config()

			fmt.Fprintln(out, s.render(s.heading, "Knowledge base"))
			fmt.Fprintf(out, "  source:      %s\n", base.Source())
			fmt.Fprintf(out, "  entries:     %d\n", base.Len())
			fmt.Fprintf(out, "  dropped:     %d\n", base.Dropped())
			fmt.Fprintf(out, "  categories:  %s\n", joinOrNone(base.Categories()))
			fmt.Fprintf(out, "  tags:        %s\n", joinOrNone(base.Tags()))

			fmt.Fprintln(out, s.render(s.heading, "Resolver"))
			fmt.Fprintf(out, "  mode:        %s\n", cfg.Mode)
			fmt.Fprintf(out, "  fuzzy:       > %d\n", cfg.Fuzzy.Threshold)
			if r.SemanticEnabled() {
				fmt.Fprintf(out, "  semantic:    distance <= %.2f (%s)\n", cfg.Semantic.MaxDistance, cfg.Embedder.Model)
				fmt.Fprintf(out, "  corpus hash: %s\n", r.CorpusHash())
			} else {
				fmt.Fprintln(out, "  semantic:    disabled")
			}
			return nil
		},
	}
}
