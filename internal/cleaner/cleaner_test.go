// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package cleaner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jellysage/jellysage/internal/config"
	"github.com/jellysage/jellysage/internal/mediaserver"
)

// fakeClient serves canned server state and records deletions. Safe for
// the cleaner's parallel stages.
type fakeClient struct {
	mediaserver.Client
	mu       sync.Mutex
	folders  []mediaserver.VirtualFolder
	items    []mediaserver.Item
	users    []mediaserver.User
	policies map[string]mediaserver.Policy

	deletedFolders []string
	deletedItems   []string
}

func (f *fakeClient) ListVirtualFolders(ctx context.Context) ([]mediaserver.VirtualFolder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mediaserver.VirtualFolder(nil), f.folders...), nil
}

func (f *fakeClient) DeleteVirtualFolder(ctx context.Context, name string, refresh bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedFolders = append(f.deletedFolders, name)
	kept := f.folders[:0]
	for _, folder := range f.folders {
		if folder.Name != name {
			kept = append(kept, folder)
		}
	}
	f.folders = kept
	return nil
}

func (f *fakeClient) QueryItems(ctx context.Context, q mediaserver.ItemQuery) ([]mediaserver.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mediaserver.Item(nil), f.items...), nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedItems = append(f.deletedItems, itemID)
	return nil
}

func (f *fakeClient) ListUsers(ctx context.Context) ([]mediaserver.User, error) {
	return f.users, nil
}

func (f *fakeClient) GetUser(ctx context.Context, userID string) (*mediaserver.User, error) {
	for _, u := range f.users {
		if u.ID == userID {
			return &mediaserver.User{ID: u.ID, Name: u.Name, Policy: f.policies[userID]}, nil
		}
	}
	return nil, os.ErrNotExist
}

func (f *fakeClient) SetUserPolicy(ctx context.Context, userID string, policy mediaserver.Policy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policies[userID] = policy
	return nil
}

func newTestCleaner(cfg *config.Config, client mediaserver.Client) *Cleaner {
	c := New(cfg)
	c.client = client
	return c
}

func testConfig(dataRoot string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Paths.DataRoot = dataRoot
	return cfg
}

func TestIsManagedName(t *testing.T) {
	assert.True(t, isManagedName("Discover Movies [ab12cd]"))
	assert.True(t, isManagedName("Discover Music"))
	assert.True(t, isManagedName("Recommended"))
	assert.True(t, isManagedName("Anything [ff00aa]"), "token suffix alone marks managed")
	assert.False(t, isManagedName("Movies"))
	assert.False(t, isManagedName("Family Collection"))
}

func TestRemoveLibrariesMatchesAllSignals(t *testing.T) {
	dataRoot := t.TempDir()
	client := &fakeClient{
		folders: []mediaserver.VirtualFolder{
			{Name: "Discover Movies [ab12cd]", ItemID: "1", Locations: []string{"/elsewhere"}},
			{Name: "Oddly Named", ItemID: "2", Locations: []string{filepath.Join(dataRoot, "libraries", "alice", "X")}},
			{Name: "Movies", ItemID: "3", Locations: []string{"/srv/movies"}},
		},
	}

	newTestCleaner(testConfig(dataRoot), client).removeLibraries(context.Background())

	assert.ElementsMatch(t, []string{"Discover Movies [ab12cd]", "Oddly Named"}, client.deletedFolders)
}

func TestRemoveOrphanedItems(t *testing.T) {
	dataRoot := t.TempDir()
	client := &fakeClient{
		items: []mediaserver.Item{
			{ID: "o1", Name: "Discover Shows [99aa00]", Type: "CollectionFolder"},
			{ID: "o2", Name: "Ghost View", Type: "UserView", Path: filepath.Join(dataRoot, "libraries", "bob", "old")},
			{ID: "k1", Name: "Movies", Type: "CollectionFolder", Path: "/srv/movies"},
		},
	}

	newTestCleaner(testConfig(dataRoot), client).removeOrphanedItems(context.Background())

	assert.ElementsMatch(t, []string{"o1", "o2"}, client.deletedItems)
}

func TestRemoveLocalContentPreservesConfigAndLogs(t *testing.T) {
	dataRoot := t.TempDir()
	mustWrite := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dataRoot, name), []byte(content), 0o644))
	}
	mustWrite("config.yaml", "jellyfin:\n  url: http://localhost:8096\n")
	mustWrite("engine.log", "log line")
	mustWrite("status.json", "{}")
	mustWrite(".installed", "2026-08-30")
	require.NoError(t, os.MkdirAll(filepath.Join(dataRoot, "libraries", "alice"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dataRoot, "logs"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dataRoot, "profile-cache"), 0o755))

	newTestCleaner(testConfig(dataRoot), &fakeClient{}).removeLocalContent()

	survivors := map[string]bool{}
	entries, err := os.ReadDir(dataRoot)
	require.NoError(t, err)
	for _, e := range entries {
		survivors[e.Name()] = true
	}

	assert.True(t, survivors["config.yaml"])
	assert.True(t, survivors["engine.log"])
	assert.True(t, survivors["logs"])
	assert.False(t, survivors["libraries"])
	assert.False(t, survivors["status.json"])
	assert.False(t, survivors[".installed"])
	assert.False(t, survivors["profile-cache"])
}

func TestAuditPoliciesStripsGhostGrants(t *testing.T) {
	client := &fakeClient{
		folders: []mediaserver.VirtualFolder{{Name: "Movies", ItemID: "real"}},
		users:   []mediaserver.User{{ID: "u1", Name: "alice"}},
		policies: map[string]mediaserver.Policy{
			"u1": {"EnabledFolders": []any{"real", "ghost-1", "ghost-2"}, "IsAdministrator": true},
		},
	}

	newTestCleaner(testConfig(t.TempDir()), client).auditPolicies(context.Background())

	policy := client.policies["u1"]
	assert.Equal(t, []string{"real"}, policy.EnabledFolders())
	assert.Equal(t, true, policy["IsAdministrator"])
}

func TestCleanRunsAllStagesDespiteFailures(t *testing.T) {
	// Data root that cannot be listed: the disk stage logs and moves on,
	// and the policy audit still runs.
	client := &fakeClient{
		folders:  []mediaserver.VirtualFolder{{Name: "Movies", ItemID: "real"}},
		users:    []mediaserver.User{{ID: "u1", Name: "alice"}},
		policies: map[string]mediaserver.Policy{"u1": {"EnabledFolders": []any{"real", "ghost"}}},
	}
	cfg := testConfig(filepath.Join(t.TempDir(), "does-not-exist"))

	require.NoError(t, newTestCleaner(cfg, client).Clean(context.Background()))

	assert.Equal(t, []string{"real"}, client.policies["u1"].EnabledFolders())
}
