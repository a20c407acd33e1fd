// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package materialize

import (
	"strings"
	"unicode"
)

// maxNameLength bounds sanitized directory names (in runes). Long enough
// for real titles, short enough to keep nested user/category/title paths
// inside Windows path limits.
const maxNameLength = 50

// SanitizeName reduces a display name to a filesystem-safe directory
// name: only letters, digits, spaces, hyphens and underscores survive,
// and the result is trimmed and truncated. Both the materializer and the
// privacy enforcer derive per-user directory names through this function,
// so it must stay deterministic.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}

	clean := strings.TrimSpace(b.String())
	if runes := []rune(clean); len(runes) > maxNameLength {
		clean = strings.TrimSpace(string(runes[:maxNameLength]))
	}
	return clean
}
