// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package profile

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefix for cached profiles.
const profileKeyPrefix = "profile:"

// ErrNotCached is returned by Get when no snapshot exists for a user.
var ErrNotCached = errors.New("profile not cached")

// CachedProfile is the stored form: the profile plus when it was built.
type CachedProfile struct {
	Profile *Profile  `json:"profile"`
	Updated time.Time `json:"updated"`
}

// Cache is a BadgerDB-backed advisory store of the last profile built per
// user. It exists for operator inspection and debugging; the engine
// rebuilds profiles fresh every run and never reads the cache on the
// scoring path, so any cache error is loggable and ignorable.
type Cache struct {
	db *badger.DB
}

// OpenCache opens (or creates) the profile cache at dir.
func OpenCache(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open profile cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Put stores the latest profile snapshot for a user.
func (c *Cache) Put(userID string, p *Profile) error {
	data, err := json.Marshal(CachedProfile{Profile: p, Updated: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(profileKeyPrefix+userID), data)
	})
}

// Get retrieves the last stored snapshot for a user.
func (c *Cache) Get(userID string) (*CachedProfile, error) {
	var cached CachedProfile

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profileKeyPrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotCached
		}
		if err != nil {
			return fmt.Errorf("get profile: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cached)
		})
	})
	if err != nil {
		return nil, err
	}
	return &cached, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
