// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package mediaserver

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jellysage/jellysage/internal/logging"
)

// Ensure BreakerClient implements Client
var _ Client = (*BreakerClient)(nil)

// BreakerClient wraps a Client with a circuit breaker. When the media
// server is down or drowning, the breaker fails calls fast instead of
// letting every worker burn its full retry budget against a dead socket.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerClient wraps inner with circuit breaker protection.
// Configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 30 second timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
func NewBreakerClient(inner Client) *BreakerClient {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "mediaserver-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
		},
	})

	return &BreakerClient{inner: inner, cb: cb}
}

// IsOpen reports whether the breaker is currently rejecting calls.
func (b *BreakerClient) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// ErrCircuitOpen reports whether err was produced by the breaker itself
// rather than by the wrapped call.
func ErrCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// execute runs fn under the breaker and discards the typed result plumbing.
func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

func (b *BreakerClient) Ping(ctx context.Context) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.Ping(ctx)
	})
	return err
}

func (b *BreakerClient) ListUsers(ctx context.Context) ([]User, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.ListUsers(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]User), nil
}

func (b *BreakerClient) GetUser(ctx context.Context, userID string) (*User, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.GetUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*User), nil
}

func (b *BreakerClient) SetUserPolicy(ctx context.Context, userID string, policy Policy) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.SetUserPolicy(ctx, userID, policy)
	})
	return err
}

func (b *BreakerClient) QueryUserItems(ctx context.Context, userID string, q ItemQuery) ([]Item, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.QueryUserItems(ctx, userID, q)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Item), nil
}

func (b *BreakerClient) QueryItems(ctx context.Context, q ItemQuery) ([]Item, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.QueryItems(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Item), nil
}

func (b *BreakerClient) ListVirtualFolders(ctx context.Context) ([]VirtualFolder, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.ListVirtualFolders(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]VirtualFolder), nil
}

func (b *BreakerClient) CreateVirtualFolder(ctx context.Context, name, collectionType string, paths []string, refresh bool) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.CreateVirtualFolder(ctx, name, collectionType, paths, refresh)
	})
	return err
}

func (b *BreakerClient) DeleteVirtualFolder(ctx context.Context, name string, refresh bool) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.DeleteVirtualFolder(ctx, name, refresh)
	})
	return err
}

func (b *BreakerClient) DeleteItem(ctx context.Context, itemID string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.DeleteItem(ctx, itemID)
	})
	return err
}

func (b *BreakerClient) SetLibraryOptions(ctx context.Context, libraryID string, opts LibraryOptions) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.SetLibraryOptions(ctx, libraryID, opts)
	})
	return err
}

func (b *BreakerClient) RefreshLibrary(ctx context.Context, libraryID string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.RefreshLibrary(ctx, libraryID)
	})
	return err
}
