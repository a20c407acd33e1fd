// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
reconciler.go - Library Registration

Registers discovery directories as virtual libraries on the media
server. Registration is delete-before-create: the server's virtual
folder API offers no reliable in-place update, so the previous library
(if any) is removed by name and a fresh one created pointing at the
rebuilt directory. Deletion is idempotent (404 is success), which makes
Upsert safe to call on first run and every run after.
*/

package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jellysage/jellysage/internal/logging"
	"github.com/jellysage/jellysage/internal/mediaserver"
)

// Reconciler registers discovery directories with the media server.
type Reconciler struct {
	client mediaserver.Client
	log    zerolog.Logger
}

// NewReconciler creates a reconciler backed by client.
func NewReconciler(client mediaserver.Client) *Reconciler {
	return &Reconciler{
		client: client,
		log:    logging.With().Str("component", "reconcile").Logger(),
	}
}

// Upsert registers path as a virtual library named name. Any existing
// library with that name is removed first. After creation the discovery
// option set is applied; option application is best-effort because the
// library itself is already functional without it.
func (r *Reconciler) Upsert(ctx context.Context, name, collectionType, path string) error {
	if err := writeMarker(path); err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("Cannot write library marker")
	}

	if err := r.client.DeleteVirtualFolder(ctx, name, false); err != nil {
		// Creation with a colliding name fails loudly below, so a
		// failed delete is worth noting but not worth aborting for.
		r.log.Warn().Err(err).Str("library", name).Msg("Pre-create delete failed")
	}

	if err := r.client.CreateVirtualFolder(ctx, name, collectionType, []string{path}, false); err != nil {
		return fmt.Errorf("register library %q: %w", name, err)
	}

	libraryID, err := r.findLibraryID(ctx, name)
	if err != nil {
		r.log.Warn().Err(err).Str("library", name).Msg("Cannot resolve library id, skipping options")
		return nil
	}

	if err := r.client.SetLibraryOptions(ctx, libraryID, mediaserver.DiscoveryLibraryOptions()); err != nil {
		r.log.Warn().Err(err).Str("library", name).Msg("Cannot apply library options")
	}

	if err := r.client.RefreshLibrary(ctx, libraryID); err != nil {
		r.log.Warn().Err(err).Str("library", name).Msg("Cannot trigger library scan")
	}

	r.log.Info().Str("library", name).Str("type", collectionType).Msg("Library registered")
	return nil
}

// findLibraryID resolves a library name to its item id.
func (r *Reconciler) findLibraryID(ctx context.Context, name string) (string, error) {
	folders, err := r.client.ListVirtualFolders(ctx)
	if err != nil {
		return "", err
	}
	for _, f := range folders {
		if f.Name == name {
			return f.ItemID, nil
		}
	}
	return "", fmt.Errorf("library %q not found after creation", name)
}

// writeMarker drops the engine-managed marker file into a discovery
// directory.
func writeMarker(dir string) error {
	return os.WriteFile(filepath.Join(dir, MarkerFileName), []byte("managed by jellysage; do not edit\n"), 0o644)
}

// HasMarker reports whether dir carries the engine-managed marker.
func HasMarker(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, MarkerFileName))
	return err == nil
}
