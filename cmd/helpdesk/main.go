// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command helpdesk answers IT helpdesk questions from a FAQ spreadsheet.
//
// Usage:
//
//	helpdesk ask --kb faq.csv "how do I reset my vpn password"
//	helpdesk chat --kb faq.xlsx
//	helpdesk serve --kb faq.csv --port 8080 --watch
//	helpdesk inspect --kb faq.csv
//
// Semantic matching needs an embedding service. By default that is Ollama:
//
//	EMBEDDING_SERVICE_URL=http://localhost:11434/api/embed \
//	EMBEDDING_MODEL=nomic-embed-text-v2-moe helpdesk chat --kb faq.csv
//
// Pass --no-semantic to use fuzzy matching only.
//
// Example requests against `helpdesk serve`:
//
//	curl -X POST http://localhost:8080/v1/helpdesk/answer \
//	  -H "Content-Type: application/json" \
//	  -d '{"query": "reset vpn password"}'
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Could not read .env file", slog.String("error", err.Error()))
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
