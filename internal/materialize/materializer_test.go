// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package materialize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMaterializer() *Materializer {
	return New(NewPathResolver(nil, false))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResetDirectoryRemovesPreviousContent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cat")
	writeFile(t, filepath.Join(dir, "old", "stale.strm"), "/gone")

	require.NoError(t, newTestMaterializer().ResetDirectory(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResetDirectoryOnMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-existed")
	require.NoError(t, newTestMaterializer().ResetDirectory(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMaterializeSingleFileWritesPointer(t *testing.T) {
	src := filepath.Join(t.TempDir(), "alien.mkv")
	writeFile(t, src, "video bytes")
	target := filepath.Join(t.TempDir(), "Alien")

	newTestMaterializer().MaterializeItem(src, target, false)

	data, err := os.ReadFile(filepath.Join(target, "alien.mkv.strm"))
	require.NoError(t, err)
	assert.Equal(t, src, string(data))
}

func TestMaterializeTreeMirrorsStructure(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "Season 1", "e01.mkv"), "x")
	writeFile(t, filepath.Join(src, "Season 1", "e01.nfo"), "<episodedetails/>")
	writeFile(t, filepath.Join(src, "poster.jpg"), "img")
	writeFile(t, filepath.Join(src, "notes.txt"), "ignored")

	target := filepath.Join(t.TempDir(), "Show")
	m := newTestMaterializer()
	require.NoError(t, m.ResetDirectory(target))
	m.MaterializeItem(src, target, false)

	// Media becomes a pointer with the media extension replaced.
	data, err := os.ReadFile(filepath.Join(target, "Season 1", "e01.strm"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(src, "Season 1", "e01.mkv"), string(data))

	// Sidecars are copied verbatim.
	nfo, err := os.ReadFile(filepath.Join(target, "Season 1", "e01.nfo"))
	require.NoError(t, err)
	assert.Equal(t, "<episodedetails/>", string(nfo))

	_, err = os.Stat(filepath.Join(target, "poster.jpg"))
	assert.NoError(t, err)

	// Unrelated files are not mirrored.
	_, err = os.Stat(filepath.Join(target, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestMaterializeTreeSymlinksMedia(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "01 track.flac"), "audio")

	target := filepath.Join(t.TempDir(), "Album")
	m := newTestMaterializer()
	require.NoError(t, m.ResetDirectory(target))
	m.MaterializeItem(src, target, true)

	link := filepath.Join(target, "01 track.flac")
	resolved, err := os.Readlink(link)
	if err != nil {
		t.Skip("filesystem does not support symlinks")
	}
	assert.Equal(t, filepath.Join(src, "01 track.flac"), resolved)
}

func TestSidecarCopyPreservesExisting(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "poster.jpg"), "new art")

	target := filepath.Join(t.TempDir(), "Movie")
	writeFile(t, filepath.Join(target, "poster.jpg"), "curated art")

	newTestMaterializer().MaterializeItem(src, target, false)

	data, err := os.ReadFile(filepath.Join(target, "poster.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "curated art", string(data))
}

func TestCanSymlinkLeavesNoProbeFiles(t *testing.T) {
	dir := t.TempDir()
	CanSymlink(dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
