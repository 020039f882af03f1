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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/helpdesk/services/helpdesk/feedback"
	"github.com/AleutianAI/helpdesk/services/helpdesk/resolver"
)

// endKeywords close the chat session.
var endKeywords = map[string]bool{"bye": true, "quit": true, "end": true}

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive helpdesk session",
		Long: `Ask questions one per line. Type bye, quit or end to leave.

React to the last answer with /like, /dislike, /confused or /love (or the
matching emoji). Reactions are stored when the cache directory is available.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, r, err := opts.loadResolver(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			session := &chatSession{
				resolver: r,
				feedback: app.Feedback(),
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
				styles:   newStyles(cmd.OutOrStdout()),
			}
			err = session.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// chatSession is one REPL over a resolver.
type chatSession struct {
	resolver *resolver.Resolver
	feedback *feedback.Store
	in       io.Reader
	out      io.Writer
	styles   styles

	lastQuery  string
	lastResult *resolver.MatchResult
}

// Run reads lines until an end keyword, EOF or cancellation.
func (s *chatSession) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, s.styles.render(s.styles.heading, "IT Support"))
	fmt.Fprintln(s.out, s.styles.render(s.styles.meta, "Ask a question, or type bye to leave."))

	scanner := bufio.NewScanner(s.in)
	for {
		fmt.Fprint(s.out, s.styles.render(s.styles.prompt, "> "))
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if endKeywords[strings.ToLower(line)] {
			farewell := s.resolver.Answer(ctx, "bye")
			fmt.Fprintln(s.out, s.styles.render(s.styles.answer, farewell.Answer))
			return nil
		}

		if kind, ok := reactionKind(line); ok {
			s.react(ctx, kind)
			continue
		}

		res := s.resolver.Answer(ctx, line)
		printResult(s.out, s.styles, res)
		s.lastQuery = line
		s.lastResult = &res
	}
}

// reactionKind recognizes "/like" style commands and bare button emoji.
func reactionKind(line string) (feedback.Kind, bool) {
	token := strings.TrimPrefix(line, "/")
	if token == line {
		if k, err := feedback.ParseKind(line); err == nil && !isWord(line) {
			return k, true
		}
		return "", false
	}
	k, err := feedback.ParseKind(token)
	if err != nil {
		return "", false
	}
	return k, true
}

// isWord reports whether s is a plain word, so that typing "like" or "love"
// is still treated as a question.
func isWord(s string) bool {
	for _, r := range s {
		if r > 0x7f {
			return false
		}
	}
	return true
}

func (s *chatSession) react(ctx context.Context, kind feedback.Kind) {
	ack, _ := feedback.Acknowledgement(kind)

	if s.feedback != nil && s.lastResult != nil {
		_, err := s.feedback.Record(ctx, feedback.Record{
			Kind:   kind,
			Query:  s.lastQuery,
			Answer: s.lastResult.Answer,
			Method: string(s.lastResult.Method),
			Score:  s.lastResult.Score,
		})
		if err != nil {
			fmt.Fprintln(s.out, s.styles.render(s.styles.warn, "Could not save feedback: "+err.Error()))
		}
	}
	fmt.Fprintln(s.out, s.styles.render(s.styles.answer, ack))
}
