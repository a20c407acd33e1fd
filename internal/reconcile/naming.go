// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

// MarkerFileName tags a directory as engine-managed. Stale detection
// trusts this marker over name heuristics, so a user library that merely
// shares a name with a discovery library is never deleted.
const MarkerFileName = ".jellysage-library"

// tokenPattern matches the per-user suffix LibraryName appends.
var tokenPattern = regexp.MustCompile(`\[[0-9a-f]{6}\]$`)

// UserToken derives a short stable identifier from a user id. Library
// names must be unique server-wide, so every discovery library carries
// this token as a visible suffix. Six hex characters keep collisions
// implausible for realistic user counts while staying readable in the
// library list.
func UserToken(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:3])
}

// LibraryName builds the server-visible library name for one user and
// category, e.g. "Discover Movies [3fa2c1]".
func LibraryName(displayName, token string) string {
	return fmt.Sprintf("%s [%s]", displayName, token)
}

// HasUserToken reports whether a library name ends in a per-user token
// suffix.
func HasUserToken(name string) bool {
	return tokenPattern.MatchString(name)
}
