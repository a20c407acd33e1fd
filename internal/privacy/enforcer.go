// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
enforcer.go - Per-User Library Visibility

Discovery libraries are built from one user's watch history, which makes
their contents personal data: user A's library must never appear in user
B's home screen. The server has no native per-library ownership concept,
so visibility is enforced through user policies after every run.

Libraries are classified by backing path: anything located under the
managed data root is a discovery library, everything else is public.
A discovery library belongs to the user whose directory segment appears
directly under the libraries root. Each user's policy
is then rewritten to grant exactly the public libraries plus their own
discovery libraries.

Policies are fetched in full per user before writing: the user-list
endpoint returns policy summaries, and writing a summary back would
silently strip fields the server only includes in the full form. Only
EnableAllFolders and EnabledFolders are modified; every other policy
field round-trips untouched.
*/

package privacy

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jellysage/jellysage/internal/logging"
	"github.com/jellysage/jellysage/internal/materialize"
	"github.com/jellysage/jellysage/internal/mediaserver"
)

// Enforcer rewrites user policies so each user sees only public
// libraries and their own discovery libraries.
type Enforcer struct {
	client   mediaserver.Client
	dataRoot string
	log      zerolog.Logger
}

// NewEnforcer creates an enforcer for the given managed data root.
func NewEnforcer(client mediaserver.Client, dataRoot string) *Enforcer {
	return &Enforcer{
		client:   client,
		dataRoot: dataRoot,
		log:      logging.With().Str("component", "privacy").Logger(),
	}
}

// Apply enforces visibility for every user. Per-user failures are
// logged and skipped; a single unreachable policy never blocks
// enforcement for the rest.
func (e *Enforcer) Apply(ctx context.Context) error {
	folders, err := e.client.ListVirtualFolders(ctx)
	if err != nil {
		return err
	}
	publicIDs, ownership := e.classify(folders)

	users, err := e.client.ListUsers(ctx)
	if err != nil {
		return err
	}

	for _, u := range users {
		if err := e.applyUser(ctx, u, publicIDs, ownership); err != nil {
			e.log.Warn().Err(err).Str("user", u.Name).Msg("Policy enforcement failed for user")
		}
	}
	return nil
}

// classify splits libraries into public ids and a map from sanitized
// owner name to that owner's discovery library ids.
func (e *Enforcer) classify(folders []mediaserver.VirtualFolder) (publicIDs []string, ownership map[string][]string) {
	root := materialize.LibrariesRoot(e.dataRoot)
	ownership = make(map[string][]string)

	for _, f := range folders {
		if f.ItemID == "" {
			continue
		}
		owner, managed := ownerOf(f, root)
		if !managed {
			publicIDs = append(publicIDs, f.ItemID)
			continue
		}
		if owner != "" {
			ownership[owner] = append(ownership[owner], f.ItemID)
		}
		// Managed but owner-less libraries (legacy layouts, manual
		// moves) are granted to nobody until the next run rebuilds
		// them in place.
	}
	return publicIDs, ownership
}

// ownerOf reports whether any of a folder's locations sit under the
// libraries root and, if so, which user subtree holds them.
func ownerOf(f mediaserver.VirtualFolder, librariesRoot string) (owner string, managed bool) {
	cleanRoot := filepath.Clean(librariesRoot)
	for _, loc := range f.Locations {
		rel, err := filepath.Rel(cleanRoot, filepath.Clean(loc))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		managed = true
		if segs := strings.Split(rel, string(filepath.Separator)); len(segs) > 0 && segs[0] != "." {
			return segs[0], true
		}
	}
	return "", managed
}

// applyUser rewrites one user's folder grants.
func (e *Enforcer) applyUser(ctx context.Context, u mediaserver.User, publicIDs []string, ownership map[string][]string) error {
	full, err := e.client.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	if full.Policy == nil {
		full.Policy = mediaserver.Policy{}
	}

	own := ownership[materialize.UserDirName(u.Name, u.ID)]
	granted := make([]string, 0, len(publicIDs)+len(own))
	granted = append(granted, publicIDs...)
	granted = append(granted, own...)

	full.Policy.SetEnableAllFolders(false)
	full.Policy.SetEnabledFolders(granted)

	if err := e.client.SetUserPolicy(ctx, u.ID, full.Policy); err != nil {
		return err
	}
	e.log.Debug().Str("user", u.Name).Int("public", len(publicIDs)).Int("own", len(own)).Msg("Visibility applied")
	return nil
}
