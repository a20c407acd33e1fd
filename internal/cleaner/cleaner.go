// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
cleaner.go - Full Uninstall / Reset

The cleaner is the inverse of the engine: it removes every trace the
engine has left on the server and on disk, returning the installation to
a pre-Jellysage state. It runs in four stages:

 1. delete every engine-managed virtual library;
 2. delete leftover CollectionFolder/UserView catalog rows the library
    delete does not reach (the server keeps them when the backing path
    already vanished);
 3. remove generated content under the data root, preserving
    configuration files and logs;
 4. audit every user policy and strip folder grants that no longer
    correspond to a real library.

Stages are ordered but independent: a partially failed stage never stops
the later ones, because a half-cleaned install is strictly better than
an aborted cleanup. Server-side deletes of large libraries can take
minutes, so the cleaner uses a much longer per-request timeout than the
engine.

Engine-managed artifacts are recognized the same three ways the stale
sweep recognizes them: the on-disk marker, a location under the data
root, or a keyword name carrying the per-user token suffix.
*/

package cleaner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jellysage/jellysage/internal/config"
	"github.com/jellysage/jellysage/internal/logging"
	"github.com/jellysage/jellysage/internal/mediaserver"
	"github.com/jellysage/jellysage/internal/reconcile"
)

// deleteTimeout bounds each server-side delete. Removing a large
// library cascades through the server's database and can legitimately
// take minutes.
const deleteTimeout = 5 * time.Minute

// nameKeywords identify engine-created artifacts by display name,
// covering the default category names of every release.
var nameKeywords = []string{"Discover Movies", "Discover Shows", "Discover Music", "Recommended"}

// Cleaner removes all engine-created state.
type Cleaner struct {
	cfg    *config.Config
	client mediaserver.Client
	log    zerolog.Logger
}

// New builds a cleaner from cfg. The API client gets a long per-request
// timeout suited to heavy deletes.
func New(cfg *config.Config) *Cleaner {
	serverCfg := cfg.Jellyfin
	serverCfg.Timeout = deleteTimeout
	return &Cleaner{
		cfg:    cfg,
		client: mediaserver.NewFromConfig(&serverCfg),
		log:    logging.With().Str("component", "cleaner").Logger(),
	}
}

// Clean runs all four stages. Stage failures are logged; the error
// reflects only a total inability to reach the server.
func (c *Cleaner) Clean(ctx context.Context) error {
	c.log.Info().Msg("Cleanup started")

	c.removeLibraries(ctx)
	c.removeOrphanedItems(ctx)
	c.removeLocalContent()
	c.auditPolicies(ctx)

	c.log.Info().Msg("Cleanup finished")
	return nil
}

// isManagedName reports whether a display name marks an engine-created
// artifact.
func isManagedName(name string) bool {
	for _, kw := range nameKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return reconcile.HasUserToken(name)
}

// removeLibraries deletes every engine-managed virtual library in
// parallel.
func (c *Cleaner) removeLibraries(ctx context.Context) {
	folders, err := c.client.ListVirtualFolders(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Cannot list libraries, skipping library removal")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Engine.ThreadCount)
	removed := 0
	for _, f := range folders {
		if !c.isManagedFolder(f) {
			continue
		}
		removed++
		g.Go(func() error {
			if err := c.client.DeleteVirtualFolder(gctx, f.Name, false); err != nil {
				c.log.Warn().Err(err).Str("library", f.Name).Msg("Library delete failed")
				return nil
			}
			c.log.Info().Str("library", f.Name).Msg("Library removed")
			return nil
		})
	}
	_ = g.Wait()
	c.log.Info().Int("matched", removed).Msg("Library removal stage done")
}

// isManagedFolder applies the marker, path, and name signals to a
// virtual library.
func (c *Cleaner) isManagedFolder(f mediaserver.VirtualFolder) bool {
	for _, loc := range f.Locations {
		if reconcile.HasMarker(loc) {
			return true
		}
		if isUnder(loc, c.cfg.Paths.DataRoot) {
			return true
		}
	}
	return isManagedName(f.Name)
}

// removeOrphanedItems deletes CollectionFolder and UserView catalog rows
// matching the managed naming. The library delete endpoint leaves these
// behind when the backing directory is already gone, and they render as
// dead tiles in client home screens.
func (c *Cleaner) removeOrphanedItems(ctx context.Context) {
	items, err := c.client.QueryItems(ctx, mediaserver.ItemQuery{
		IncludeItemTypes: "CollectionFolder,UserView",
		Recursive:        true,
		Fields:           []string{"Path"},
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("Cannot query catalog, skipping orphan removal")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Engine.ThreadCount)
	removed := 0
	for _, item := range items {
		managed := isManagedName(item.Name) ||
			(item.Path != "" && isUnder(item.Path, c.cfg.Paths.DataRoot))
		if !managed {
			continue
		}
		removed++
		g.Go(func() error {
			if err := c.client.DeleteItem(gctx, item.ID); err != nil {
				c.log.Warn().Err(err).Str("item", item.Name).Msg("Orphan delete failed")
				return nil
			}
			c.log.Info().Str("item", item.Name).Str("type", item.Type).Msg("Orphaned catalog entry removed")
			return nil
		})
	}
	_ = g.Wait()
	c.log.Info().Int("matched", removed).Msg("Orphan removal stage done")
}

// preservedNames are data-root entries the disk stage never touches.
var preservedNames = map[string]bool{
	"config.yaml": true,
	"config.yml":  true,
	"logs":        true,
}

// removeLocalContent deletes generated state under the data root while
// preserving configuration and log files.
func (c *Cleaner) removeLocalContent() {
	root := c.cfg.Paths.DataRoot
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Str("dir", root).Msg("Cannot read data root, skipping disk cleanup")
		return
	}

	for _, entry := range entries {
		if preservedNames[entry.Name()] || strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		target := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			c.log.Warn().Err(err).Str("path", target).Msg("Disk cleanup failed for entry")
			continue
		}
		c.log.Info().Str("path", target).Msg("Removed")
	}
}

// auditPolicies strips folder grants pointing at libraries that no
// longer exist. Runs after the deletes so it also scrubs the ids those
// stages just removed.
func (c *Cleaner) auditPolicies(ctx context.Context) {
	folders, err := c.client.ListVirtualFolders(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Cannot list libraries, skipping policy audit")
		return
	}
	valid := make(map[string]struct{}, len(folders))
	for _, f := range folders {
		if f.ItemID != "" {
			valid[f.ItemID] = struct{}{}
		}
	}

	users, err := c.client.ListUsers(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Cannot list users, skipping policy audit")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Engine.ThreadCount)
	for _, u := range users {
		g.Go(func() error {
			c.auditUser(gctx, u, valid)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Cleaner) auditUser(ctx context.Context, u mediaserver.User, valid map[string]struct{}) {
	full, err := c.client.GetUser(ctx, u.ID)
	if err != nil {
		c.log.Warn().Err(err).Str("user", u.Name).Msg("Cannot fetch policy for audit")
		return
	}
	if full.Policy == nil {
		return
	}

	folders := full.Policy.EnabledFolders()
	kept := make([]string, 0, len(folders))
	for _, id := range folders {
		if _, ok := valid[id]; ok {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(folders) {
		return
	}

	full.Policy.SetEnabledFolders(kept)
	if err := c.client.SetUserPolicy(ctx, u.ID, full.Policy); err != nil {
		c.log.Warn().Err(err).Str("user", u.Name).Msg("Policy audit write failed")
		return
	}
	c.log.Info().Str("user", u.Name).Int("removed", len(folders)-len(kept)).Msg("Ghost folder grants removed")
}

// isUnder reports whether path sits inside root.
func isUnder(path, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
