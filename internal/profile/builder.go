// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
builder.go - Taste Profile Construction

Builds a per-user preference model from played history. Directors weigh
heaviest (a deliberate directing choice says more about taste than a cast
appearance), then actors, then genres. Recent plays count more than old
ones. Each weight map is normalized by its own maximum so the strongest
signal in each dimension is exactly 1.0 regardless of history volume.

This component never fails upward: any fetch error yields an empty
profile with hasSufficientHistory=false, and scoring falls back to the
cold-start formula.
*/

package profile

import (
	"context"
	"time"

	"github.com/jellysage/jellysage/internal/logging"
	"github.com/jellysage/jellysage/internal/mediaserver"
)

// Accumulation weights per signal source.
const (
	genreWeight    = 1.0
	actorWeight    = 2.0
	directorWeight = 4.0
)

// minHistoryForPersonalization is the played-item count at which scoring
// switches from cold-start to warm-start.
const minHistoryForPersonalization = 5

// Profile is a normalized per-user preference model. Created fresh each
// run; the on-disk cache is advisory only.
type Profile struct {
	GenreWeights    map[string]float64  `json:"genre_weights"`
	ActorWeights    map[string]float64  `json:"actor_weights"`
	DirectorWeights map[string]float64  `json:"director_weights"`
	Collections     map[string]struct{} `json:"collections"`
}

// Empty returns a profile with no accumulated signal.
func Empty() *Profile {
	return &Profile{
		GenreWeights:    map[string]float64{},
		ActorWeights:    map[string]float64{},
		DirectorWeights: map[string]float64{},
		Collections:     map[string]struct{}{},
	}
}

// HasCollection reports whether the user has engaged with a collection.
func (p *Profile) HasCollection(name string) bool {
	if name == "" {
		return false
	}
	_, ok := p.Collections[name]
	return ok
}

// Builder constructs taste profiles from media server play history.
type Builder struct {
	client       mediaserver.Client
	historyLimit int

	// now is injectable for recency tests.
	now func() time.Time
}

// NewBuilder creates a profile builder. historyLimit bounds the played
// history fetch.
func NewBuilder(client mediaserver.Client, historyLimit int) *Builder {
	if historyLimit <= 0 {
		historyLimit = 3000
	}
	return &Builder{
		client:       client,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// Build fetches the user's played history and accumulates it into a
// profile. The second return value reports whether the history is large
// enough for warm-start scoring. Errors are contained: a failed fetch
// returns an empty profile and false.
func (b *Builder) Build(ctx context.Context, userID string) (*Profile, bool) {
	items, err := b.client.QueryUserItems(ctx, userID, mediaserver.ItemQuery{
		Recursive: true,
		Filters:   "IsPlayed",
		Fields:    mediaserver.HistoryFields,
		Limit:     b.historyLimit,
	})
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("History fetch failed, falling back to cold start")
		return Empty(), false
	}

	p := Empty()
	now := b.now()
	for i := range items {
		item := &items[i]
		w := recencyMultiplier(item.LastPlayedDate, now)

		for _, g := range item.Genres {
			p.GenreWeights[g] += genreWeight * w
		}
		for _, person := range item.People {
			switch person.Type {
			case "Director":
				p.DirectorWeights[person.Name] += directorWeight * w
			case "Actor":
				p.ActorWeights[person.Name] += actorWeight * w
			}
		}
		if item.CollectionName != "" {
			p.Collections[item.CollectionName] = struct{}{}
		}
	}

	normalize(p.GenreWeights)
	normalize(p.ActorWeights)
	normalize(p.DirectorWeights)

	return p, len(items) >= minHistoryForPersonalization
}

// recencyMultiplier scales a play's contribution by how recent it was.
// Unknown play dates get a middling weight rather than zero: the item
// was played, we just cannot tell when.
func recencyMultiplier(lastPlayed *time.Time, now time.Time) float64 {
	if lastPlayed == nil {
		return 0.7
	}
	days := now.Sub(*lastPlayed).Hours() / 24
	switch {
	case days < 30:
		return 1.5
	case days < 90:
		return 1.0
	case days < 365:
		return 0.6
	default:
		return 0.3
	}
}

// normalize rescales a weight map in place so its maximum becomes 1.0.
// Empty maps are left unchanged.
func normalize(weights map[string]float64) {
	var max float64
	for _, v := range weights {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return
	}
	for k, v := range weights {
		weights[k] = v / max
	}
}
