// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package redact masks credentials that users paste into helpdesk queries.
package redact

import (
	"regexp"
)

// pattern pairs a compiled regex with its replacement.
type pattern struct {
	re          *regexp.Regexp
	replacement string
}

// patterns are applied in order. More specific key formats come before the
// generic ones that share their prefix ("sk-ant-" before "sk-").
var patterns = []pattern{
	{
		re:          regexp.MustCompile(`sk-ant-api03-[A-Za-z0-9_-]{20,}`),
		replacement: "[REDACTED:anthropic_key]",
	},
	{
		re:          regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
		replacement: "[REDACTED:openai_key]",
	},
	{
		re:          regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`),
		replacement: "[REDACTED:google_key]",
	},
	{
		re:          regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`),
		replacement: "[REDACTED:bearer_token]",
	},
	{
		re:          regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`),
		replacement: "key=[REDACTED]",
	},
	// "password=hunter2", "Password: hunter2"
	{
		re:          regexp.MustCompile(`(?i)\b(password|passwd|pwd)(\s*[:=]\s*)[^\s&]{3,}`),
		replacement: "${1}${2}[REDACTED]",
	},
	// "my password is Winter2024!" but not "my password is not working".
	{
		re:          regexp.MustCompile(`(?i)\b(password|passwd|pwd)(\s+is\s+)\S*[0-9!@#$%^&*]\S*`),
		replacement: "${1}${2}[REDACTED]",
	},
	{
		re:          regexp.MustCompile(`(postgres|mysql|mongodb|smb|ftp)://[^\s]+@`),
		replacement: "${1}://[REDACTED]@",
	},
}

// String returns s with every known credential pattern masked.
//
// # Description
//
// Matching is by pattern only. Secrets in an unknown format pass through,
// and a secret split across lines is not matched.
//
// # Examples
//
//	String("vpn says password=Hunter22 is wrong")
//	// "vpn says password=[REDACTED] is wrong"
//
// # Thread Safety
//
// Safe for concurrent use.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, p := range patterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}
