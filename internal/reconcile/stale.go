// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
stale.go - Stale Library Detection

Removes discovery libraries that no longer correspond to an enabled
user/category pair: users get deleted, categories get disabled, and
display names change, each of which orphans a previously registered
library.

A library is judged engine-managed through three signals, strongest
first: the on-disk marker file in any of its locations, a location under
the engine's data root, or a name carrying both a known discovery
keyword and a token suffix. Name matching alone never suffices without
the token, so an admin's hand-made "Recommended" library survives.

After deletion the ids of removed libraries are scrubbed from every
user's folder grants: the server keeps dangling ids in policies
indefinitely, and some clients render them as broken tiles.
*/

package reconcile

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jellysage/jellysage/internal/mediaserver"
)

// staleKeywords are display-name fragments that mark engine-created
// libraries across configuration changes and older releases.
var staleKeywords = []string{"Discover", "Recommended"}

// CleanupStale removes engine-managed libraries whose names are not in
// the expected set. Returns the item ids of the libraries it deleted.
// Individual delete failures are logged and skipped so one stuck
// library does not block the rest of the sweep.
func (r *Reconciler) CleanupStale(ctx context.Context, expected map[string]struct{}, dataRoot string) []string {
	folders, err := r.client.ListVirtualFolders(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("Cannot list libraries for stale sweep")
		return nil
	}

	var deleted []string
	for _, f := range folders {
		if _, ok := expected[f.Name]; ok {
			continue
		}
		if !isManagedLibrary(f, dataRoot) {
			continue
		}

		if err := r.client.DeleteVirtualFolder(ctx, f.Name, false); err != nil {
			r.log.Warn().Err(err).Str("library", f.Name).Msg("Cannot delete stale library")
			continue
		}
		r.log.Info().Str("library", f.Name).Msg("Stale library removed")
		if f.ItemID != "" {
			deleted = append(deleted, f.ItemID)
		}
	}
	return deleted
}

// isManagedLibrary decides whether a virtual folder was created by the
// engine.
func isManagedLibrary(f mediaserver.VirtualFolder, dataRoot string) bool {
	for _, loc := range f.Locations {
		if HasMarker(loc) {
			return true
		}
		if dataRoot != "" && isUnder(loc, dataRoot) {
			return true
		}
	}

	if !HasUserToken(f.Name) {
		return false
	}
	for _, kw := range staleKeywords {
		if strings.Contains(f.Name, kw) {
			return true
		}
	}
	return false
}

// isUnder reports whether path sits inside root.
func isUnder(path, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ScrubPolicies removes deleted library ids from every user's folder
// grant list. Per-user failures are contained: a policy that cannot be
// read or written today gets scrubbed on the next run.
func (r *Reconciler) ScrubPolicies(ctx context.Context, deletedIDs []string) {
	if len(deletedIDs) == 0 {
		return
	}
	gone := make(map[string]struct{}, len(deletedIDs))
	for _, id := range deletedIDs {
		gone[id] = struct{}{}
	}

	users, err := r.client.ListUsers(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("Cannot list users for policy scrub")
		return
	}

	for _, u := range users {
		full, err := r.client.GetUser(ctx, u.ID)
		if err != nil {
			r.log.Warn().Err(err).Str("user", u.Name).Msg("Cannot fetch policy for scrub")
			continue
		}
		if full.Policy == nil {
			continue
		}

		folders := full.Policy.EnabledFolders()
		kept := make([]string, 0, len(folders))
		for _, id := range folders {
			if _, dead := gone[id]; !dead {
				kept = append(kept, id)
			}
		}
		if len(kept) == len(folders) {
			continue
		}

		full.Policy.SetEnabledFolders(kept)
		if err := r.client.SetUserPolicy(ctx, u.ID, full.Policy); err != nil {
			r.log.Warn().Err(err).Str("user", u.Name).Msg("Cannot scrub policy")
			continue
		}
		r.log.Debug().Str("user", u.Name).Int("removed", len(folders)-len(kept)).Msg("Policy scrubbed")
	}
}
