// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
engine.go - Catalog Scoring and Ranking

Scores catalog items against a taste profile with two formulas:

  - Cold start (insufficient history): community rating dominates. Rated
    items score rating+2.0; unrated audio gets a randomized baseline
    because objective quality signals are sparse for music; everything
    else unrated scores zero.
  - Warm start: community rating (or a per-kind default) plus weighted
    genre/person/collection affinity, minus a penalty for items the user
    has already seen.

Both branches add a small uniform jitter so near-tied rankings vary
between runs instead of freezing into one order forever.
*/

package scoring

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/jellysage/jellysage/internal/config"
	"github.com/jellysage/jellysage/internal/mediaserver"
	"github.com/jellysage/jellysage/internal/profile"
)

// Cold-start constants.
const (
	coldRatingBonus  = 2.0
	coldAudioFloor   = 6.5
	coldAudioCeiling = 9.5
	warmAudioDefault = 7.0
	warmVideoDefault = 5.0
)

// ScoredItem pairs a catalog item with its computed score. Transient:
// exists only between ranking and materialization.
type ScoredItem struct {
	mediaserver.Item
	Score float64
}

// Engine scores and ranks catalog items. Safe for concurrent use.
type Engine struct {
	// rng injects jitter; protected by rngMu for concurrent workers.
	rng   *rand.Rand
	rngMu sync.Mutex
}

// NewEngine creates a scoring engine seeded from src. Pass a fixed-seed
// source in tests for reproducible jitter.
func NewEngine(src rand.Source) *Engine {
	return &Engine{rng: rand.New(src)}
}

// isAudio reports whether the item is music content.
func isAudio(item *mediaserver.Item) bool {
	return item.Type == "MusicAlbum" || item.Type == "Audio"
}

// Score computes one item's score against a profile.
func (e *Engine) Score(item *mediaserver.Item, p *profile.Profile, w config.Weights, coldStart bool) float64 {
	var score float64
	rating := item.CommunityRating

	if coldStart {
		switch {
		case rating > 0:
			score = rating + coldRatingBonus
		case isAudio(item):
			score = e.uniform(coldAudioFloor, coldAudioCeiling)
		}
		return score + e.uniform(0, w.Diversity)
	}

	if rating > 0 {
		score = rating
	} else if isAudio(item) {
		score = warmAudioDefault
	} else {
		score = warmVideoDefault
	}

	for _, g := range item.Genres {
		score += p.GenreWeights[g] * w.Genres
	}
	for _, person := range item.People {
		switch person.Type {
		case "Director":
			score += p.DirectorWeights[person.Name] * w.Directors
		case "Actor":
			score += p.ActorWeights[person.Name] * w.Actors
		}
	}
	if p.HasCollection(item.CollectionName) {
		score += w.Collection
	}
	if item.Played() {
		score -= w.SeenPenalty
	}

	return score + e.uniform(0, w.Diversity)
}

// Rank scores all candidates once each, drops items below minScore or
// without a resolvable source path, and returns the top limit items in
// descending score order. The sort is stable so ties keep fetch order.
func (e *Engine) Rank(items []mediaserver.Item, p *profile.Profile, w config.Weights, coldStart bool, minScore float64, limit int) []ScoredItem {
	scored := make([]ScoredItem, 0, len(items))
	for i := range items {
		item := items[i]
		if item.Path == "" {
			continue
		}
		s := e.Score(&item, p, w, coldStart)
		if s < minScore {
			continue
		}
		scored = append(scored, ScoredItem{Item: item, Score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// uniform draws from [lo, hi). Returns lo when the band is empty.
func (e *Engine) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return lo + e.rng.Float64()*(hi-lo)
}
