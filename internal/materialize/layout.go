// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package materialize

import "path/filepath"

// librariesSubdir is the directory under the data root holding all
// generated discovery content, one subtree per user.
const librariesSubdir = "libraries"

// LibrariesRoot returns the directory all discovery content lives under.
func LibrariesRoot(dataRoot string) string {
	return filepath.Join(dataRoot, librariesSubdir)
}

// UserDirName returns the path segment for one user's subtree. It
// doubles as the ownership signal for policy enforcement, so it must be
// derived identically everywhere. Names that sanitize to nothing
// (punctuation-only, emoji-only) fall back to the user id so distinct
// users never collapse into one directory.
func UserDirName(userName, userID string) string {
	if s := SanitizeName(userName); s != "" {
		return s
	}
	return SanitizeName(userID)
}

// UserDir returns one user's content directory.
func UserDir(dataRoot, userName, userID string) string {
	return filepath.Join(LibrariesRoot(dataRoot), UserDirName(userName, userID))
}

// CategoryDir returns the directory backing one user/category library.
func CategoryDir(dataRoot, userName, userID, displayName string) string {
	return filepath.Join(UserDir(dataRoot, userName, userID), SanitizeName(displayName))
}
