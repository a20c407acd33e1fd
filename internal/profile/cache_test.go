// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package profile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	cache, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	p := Empty()
	p.GenreWeights["Sci-Fi"] = 1.0
	p.Collections["Alien Collection"] = struct{}{}

	require.NoError(t, cache.Put("u1", p))

	cached, err := cache.Get("u1")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cached.Profile.GenreWeights["Sci-Fi"], 1e-9)
	assert.True(t, cached.Profile.HasCollection("Alien Collection"))
	assert.False(t, cached.Updated.IsZero())
}

func TestCacheMissIsSentinel(t *testing.T) {
	cache, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	_, err = cache.Get("nobody")
	assert.True(t, errors.Is(err, ErrNotCached))
}
