// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package materialize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// escapeXML covers the five characters with reserved meaning in XML
// text content and attribute values.
var escapeXML = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// WriteMusicMetadata drops minimal album.nfo and artist.nfo files next
// to a materialized album so the media server identifies the album and
// its artist without a remote lookup. Existing files are never
// overwritten: a scraper or the user may have written richer metadata.
func (m *Materializer) WriteMusicMetadata(albumDir, albumTitle, artistName string) {
	if artistName == "" {
		artistName = "Unknown Artist"
	}

	albumNfo := fmt.Sprintf(
		"<album>\n  <title>%s</title>\n  <artist>%s</artist>\n</album>\n",
		escapeXML.Replace(albumTitle), escapeXML.Replace(artistName))
	m.writeIfAbsent(filepath.Join(albumDir, "album.nfo"), albumNfo)

	artistNfo := fmt.Sprintf(
		"<artist>\n  <name>%s</name>\n</artist>\n",
		escapeXML.Replace(artistName))
	m.writeIfAbsent(filepath.Join(filepath.Dir(albumDir), "artist.nfo"), artistNfo)
}

func (m *Materializer) writeIfAbsent(path, content string) {
	if _, err := os.Stat(path); err == nil {
		return
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		m.log.Warn().Err(err).Str("file", path).Msg("Cannot write metadata file")
	}
}
