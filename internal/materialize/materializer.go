// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
materializer.go - On-Disk Content Materialization

Turns ranked catalog items into filesystem artifacts under a per-user,
per-category directory. Video content becomes .strm pointer files (a text
file holding the resolved source path, which Jellyfin treats as a remote
stream pointer); music becomes genuine symbolic links because players
need byte-identical file access for audio. Image and .nfo sidecars are
copied verbatim so artwork and metadata follow the recommendation.

The target directory is deleted and rebuilt wholesale every run: a
discovery directory is always either fully absent or fully current,
never a merge of two runs.

All per-file errors are logged and skipped. A recommendation set with a
few broken files is still a recommendation set; aborting the walk would
throw away the rest of the run.
*/

package materialize

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jellysage/jellysage/internal/logging"
)

// strmExtension marks placeholder pointer files.
const strmExtension = ".strm"

// deleteRetries and deleteRetryPause bound the retry loop against
// transient file locks (antivirus, indexers) during directory teardown.
const (
	deleteRetries    = 3
	deleteRetryPause = 100 * time.Millisecond
)

// mediaExtensions are the file types that become pointers or links.
var mediaExtensions = map[string]bool{
	".mp3": true, ".flac": true, ".m4a": true, ".wav": true, ".ogg": true,
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true, ".wmv": true,
	".ts": true, ".mov": true, ".iso": true,
}

// sidecarExtensions are copied verbatim when not already present.
var sidecarExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".tbn": true, ".nfo": true,
}

// Materializer writes discovery content for one run. Each worker owns a
// disjoint directory subtree, so a single Materializer is safely shared.
type Materializer struct {
	resolver *PathResolver
	log      zerolog.Logger
}

// New creates a materializer using resolver for source path translation.
func New(resolver *PathResolver) *Materializer {
	return &Materializer{
		resolver: resolver,
		log:      logging.With().Str("component", "materialize").Logger(),
	}
}

// ResetDirectory deletes any previous revision of dir and recreates it
// empty. This runs before any content is written so partial or merged
// directory states cannot survive across runs.
func (m *Materializer) ResetDirectory(dir string) error {
	if err := removeWithRetry(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// removeWithRetry deletes a path, retrying transient failures.
func removeWithRetry(path string) error {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return nil
	}

	var err error
	for i := 0; i < deleteRetries; i++ {
		if err = os.RemoveAll(path); err == nil {
			return nil
		}
		time.Sleep(deleteRetryPause)
	}
	return err
}

// MaterializeItem writes the on-disk representation of one item under
// targetDir. useSymlinks selects genuine links over .strm pointers for
// media files. Per-file failures are logged and skipped.
func (m *Materializer) MaterializeItem(sourcePath, targetDir string, useSymlinks bool) {
	resolved := m.resolver.Resolve(sourcePath)

	info, err := os.Stat(resolved)
	if err == nil && info.IsDir() {
		m.materializeTree(resolved, targetDir, useSymlinks)
		return
	}

	// Single file (or unreachable path: still worth a pointer, the
	// media server may resolve it even when this host cannot).
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		m.log.Warn().Err(err).Str("dir", targetDir).Msg("Cannot create item directory")
		return
	}
	if useSymlinks {
		m.writeSymlink(resolved, filepath.Join(targetDir, filepath.Base(resolved)))
		return
	}
	m.writePointer(resolved, filepath.Join(targetDir, filepath.Base(resolved)+strmExtension))
}

// materializeTree mirrors a source directory: media files become
// pointers or links, sidecars are copied if absent, everything else is
// ignored.
func (m *Materializer) materializeTree(sourceDir, targetDir string, useSymlinks bool) {
	walkErr := filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			m.log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable entry")
			return nil
		}

		rel, relErr := filepath.Rel(sourceDir, path)
		if relErr != nil {
			return nil
		}
		target := filepath.Join(targetDir, rel)

		if d.IsDir() {
			if mkErr := os.MkdirAll(target, 0o755); mkErr != nil {
				m.log.Warn().Err(mkErr).Str("dir", target).Msg("Cannot create directory")
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		switch {
		case mediaExtensions[ext]:
			if useSymlinks {
				m.writeSymlink(path, target)
			} else {
				base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				m.writePointer(path, filepath.Join(filepath.Dir(target), base+strmExtension))
			}
		case sidecarExtensions[ext]:
			m.copyIfAbsent(path, target)
		}
		return nil
	})
	if walkErr != nil {
		m.log.Warn().Err(walkErr).Str("dir", sourceDir).Msg("Tree walk aborted")
	}
}

// writePointer writes a .strm placeholder containing the source path.
func (m *Materializer) writePointer(sourcePath, pointerPath string) {
	if err := os.WriteFile(pointerPath, []byte(sourcePath), 0o644); err != nil {
		m.log.Warn().Err(err).Str("pointer", pointerPath).Msg("Cannot write pointer file")
	}
}

// writeSymlink replaces any existing link at linkPath with a fresh one.
func (m *Materializer) writeSymlink(sourcePath, linkPath string) {
	_ = os.Remove(linkPath)
	if err := os.Symlink(sourcePath, linkPath); err != nil {
		m.log.Warn().Err(err).Str("link", linkPath).Msg("Cannot create symlink")
	}
}

// copyIfAbsent copies a sidecar file unless the target already exists,
// so manually edited artwork or metadata survives re-runs.
func (m *Materializer) copyIfAbsent(sourcePath, targetPath string) {
	if _, err := os.Stat(targetPath); err == nil {
		return
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		m.log.Warn().Err(err).Str("file", sourcePath).Msg("Cannot open sidecar")
		return
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(targetPath)
	if err != nil {
		m.log.Warn().Err(err).Str("file", targetPath).Msg("Cannot create sidecar")
		return
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		m.log.Warn().Err(err).Str("file", targetPath).Msg("Sidecar copy failed")
	}
}
