// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package applock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	lk, err := New(path)
	require.NoError(t, err)

	held, err := lk.TryAcquire()
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, lk.Release())
}

func TestMutualExclusion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	first, err := New(path)
	require.NoError(t, err)
	held, err := first.TryAcquire()
	require.NoError(t, err)
	require.True(t, held)

	second, err := New(path)
	require.NoError(t, err)
	held, err = second.TryAcquire()
	require.NoError(t, err)
	assert.False(t, held, "second holder must be refused while the first holds the lock")

	require.NoError(t, first.Release())

	held, err = second.TryAcquire()
	require.NoError(t, err)
	assert.True(t, held, "lock must be acquirable after release")
	require.NoError(t, second.Release())
}

func TestNewCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "test.lock")

	lk, err := New(path)
	require.NoError(t, err)

	held, err := lk.TryAcquire()
	require.NoError(t, err)
	assert.True(t, held)
	require.NoError(t, lk.Release())
}

func TestReleaseWithoutAcquire(t *testing.T) {
	lk, err := New(filepath.Join(t.TempDir(), "test.lock"))
	require.NoError(t, err)
	assert.NoError(t, lk.Release())
}
