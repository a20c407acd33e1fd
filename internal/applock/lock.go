// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

// Package applock guards against concurrent engine or cleaner runs with
// an advisory file lock under the data root. Both binaries contend on
// the same lock file, so an engine run and a cleanup can never interleave
// their library mutations. The lock is advisory: a crashed holder's lock
// is released by the OS, so no stale-lock recovery is needed.
package applock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is a single-instance advisory lock.
type Lock struct {
	fl *flock.Flock
}

// New creates a lock on path. The parent directory is created if absent;
// the lock file itself appears on first acquire.
func New(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &Lock{fl: flock.New(path)}, nil
}

// TryAcquire attempts to take the lock without blocking. Returns false
// when another process holds it.
func (l *Lock) TryAcquire() (bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.fl.Path(), err)
	}
	return ok, nil
}

// Release drops the lock. Safe to call when the lock was never acquired.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.fl.Path()
}
