// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package mediaserver

import "time"

// User is a media server user. Owned by the server; read-only here.
type User struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`

	// Policy is only populated by GetUser (the full form). The /Users
	// list endpoint returns a summary whose policy omits detail and must
	// never be written back.
	Policy Policy `json:"Policy,omitempty"`
}

// Policy is a user access policy. It is deliberately a loose map: the
// server defines dozens of policy fields and we must preserve every one
// of them untouched while overwriting only folder visibility.
type Policy map[string]any

// EnabledFolders returns the library ids the policy grants access to.
func (p Policy) EnabledFolders() []string {
	raw, ok := p["EnabledFolders"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	default:
		return nil
	}
}

// SetEnabledFolders overwrites the folder grant list.
func (p Policy) SetEnabledFolders(ids []string) {
	p["EnabledFolders"] = ids
}

// SetEnableAllFolders overwrites the all-folders override flag.
func (p Policy) SetEnableAllFolders(enabled bool) {
	p["EnableAllFolders"] = enabled
}

// Person is a credited person on an item.
type Person struct {
	Name string `json:"Name"`
	Type string `json:"Type"` // Actor, Director, ...
}

// UserItemData carries per-user playback state attached to an item.
type UserItemData struct {
	Played    bool `json:"Played"`
	PlayCount int  `json:"PlayCount"`
}

// Item is a point-in-time catalog item snapshot.
type Item struct {
	ID              string        `json:"Id"`
	Name            string        `json:"Name"`
	Type            string        `json:"Type"`
	Path            string        `json:"Path,omitempty"`
	Genres          []string      `json:"Genres,omitempty"`
	People          []Person      `json:"People,omitempty"`
	CollectionName  string        `json:"CollectionName,omitempty"`
	CommunityRating float64       `json:"CommunityRating,omitempty"`
	LastPlayedDate  *time.Time    `json:"LastPlayedDate,omitempty"`
	UserData        *UserItemData `json:"UserData,omitempty"`
	AlbumArtist     string        `json:"AlbumArtist,omitempty"`
	Artists         []string      `json:"Artists,omitempty"`
}

// Played reports the per-user played flag, false when no user data came back.
func (i *Item) Played() bool {
	return i.UserData != nil && i.UserData.Played
}

// itemsResult is the envelope the /Users/{id}/Items endpoint returns.
type itemsResult struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// VirtualFolder is a registered virtual library.
type VirtualFolder struct {
	Name           string   `json:"Name"`
	ItemID         string   `json:"ItemId"`
	CollectionType string   `json:"CollectionType"`
	Locations      []string `json:"Locations"`
}

// LibraryOptions is the subset of library options the engine manages.
// Real-time monitoring and expensive extraction are disabled on discovery
// libraries: their contents are regenerated wholesale each run, so
// incremental watching only burns server cycles.
type LibraryOptions struct {
	EnableRealtimeMonitor          bool `json:"EnableRealtimeMonitor"`
	EnableAutomaticSeriesGrouping  bool `json:"EnableAutomaticSeriesGrouping"`
	ExtractChapterImagesDuringScan bool `json:"ExtractChapterImagesDuringScan"`
	EnableChapterImageExtraction   bool `json:"EnableChapterImageExtraction"`
}

// DiscoveryLibraryOptions returns the fixed option set applied to every
// discovery library after creation.
func DiscoveryLibraryOptions() LibraryOptions {
	return LibraryOptions{
		EnableRealtimeMonitor:          false,
		EnableAutomaticSeriesGrouping:  true,
		ExtractChapterImagesDuringScan: false,
		EnableChapterImageExtraction:   false,
	}
}

// ItemQuery holds filter parameters for QueryUserItems.
type ItemQuery struct {
	ParentIDs        []string
	IncludeItemTypes string
	Recursive        bool
	Filters          string // IsPlayed, IsUnplayed
	Fields           []string
	Limit            int
}

// HistoryFields are the fields fetched when building taste profiles.
var HistoryFields = []string{"Genres", "People", "CollectionName", "LastPlayedDate", "UserData"}

// CandidateFields are the fields fetched when ranking recommendation
// candidates.
var CandidateFields = []string{"Path", "CommunityRating", "Genres", "People", "CollectionName", "UserData", "AlbumArtist", "Artists"}
