// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package materialize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Discover Movies", "Discover Movies"},
		{"punctuation stripped", "Alien: Covenant (2017)", "Alien Covenant 2017"},
		{"path separators stripped", "../../etc/passwd", "etcpasswd"},
		{"hyphen underscore kept", "Sci-Fi_Collection", "Sci-Fi_Collection"},
		{"unicode letters kept", "Amélie", "Amélie"},
		{"whitespace trimmed", "  spaced  ", "spaced"},
		{"empty", "", ""},
		{"only symbols", "!!!***", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.input))
		})
	}
}

func TestSanitizeNameTruncates(t *testing.T) {
	long := strings.Repeat("a", 80)
	got := SanitizeName(long)
	assert.Len(t, []rune(got), 50)
}

func TestSanitizeNameTruncationIsRuneSafe(t *testing.T) {
	long := strings.Repeat("é", 60)
	got := SanitizeName(long)
	assert.Len(t, []rune(got), 50)
	assert.True(t, strings.HasPrefix(got, "é"))
}

func TestLayoutUsesSanitizedNames(t *testing.T) {
	dir := CategoryDir("/data", "alice:smith", "a1b2c3", "Discover Movies!")
	assert.Contains(t, dir, "alicesmith")
	assert.Contains(t, dir, "Discover Movies")
	assert.NotContains(t, dir, "!")
}

func TestUserDirNameFallsBackToUserID(t *testing.T) {
	assert.Equal(t, "alice", UserDirName("alice", "a1b2c3"))
	assert.Equal(t, "a1b2c3", UserDirName("!!!", "a1b2c3"))
	assert.Equal(t, "a1b2c3", UserDirName("", "a1b2c3"))
}

func TestCategoryDirDistinctForDegenerateNames(t *testing.T) {
	a := CategoryDir("/data", "!!!", "user-a", "Discover Movies")
	b := CategoryDir("/data", "???", "user-b", "Discover Movies")
	assert.NotEqual(t, a, b)
}
