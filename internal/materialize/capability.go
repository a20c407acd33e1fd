// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package materialize

import (
	"os"
	"path/filepath"

	"github.com/jellysage/jellysage/internal/logging"
)

// CanSymlink probes whether the process may create symbolic links under
// dir by creating and immediately removing a test link. On Windows this
// requires elevation or developer mode, so the answer genuinely varies
// per environment. Categories that need real links (music) are skipped
// for the run when the probe fails.
func CanSymlink(dir string) bool {
	target := filepath.Join(dir, "symlink_target.tmp")
	link := filepath.Join(dir, "symlink_test.tmp")

	defer func() {
		_ = os.Remove(link)
		_ = os.Remove(target)
	}()

	if err := os.WriteFile(target, []byte("probe"), 0o644); err != nil {
		logging.Warn().Err(err).Str("dir", dir).Msg("Symlink probe could not write target file")
		return false
	}
	_ = os.Remove(link)

	if err := os.Symlink(target, link); err != nil {
		logging.Warn().Err(err).Msg("Symlink capabilities disabled for this run")
		return false
	}

	logging.Info().Msg("Symlink capabilities enabled")
	return true
}
