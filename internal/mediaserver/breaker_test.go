// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package mediaserver

import (
	"context"
	"errors"
	"testing"
)

// failingClient fails every call. Unimplemented methods panic, which is
// fine: these tests only exercise Ping and ListUsers.
type failingClient struct {
	Client
	calls int
}

var errDown = errors.New("server down")

func (f *failingClient) Ping(ctx context.Context) error {
	f.calls++
	return errDown
}

func (f *failingClient) ListUsers(ctx context.Context) ([]User, error) {
	f.calls++
	return nil, errDown
}

func TestBreakerOpensAfterSustainedFailures(t *testing.T) {
	inner := &failingClient{}
	client := NewBreakerClient(inner)
	ctx := context.Background()

	// Trip threshold: >=10 requests with >=60% failures.
	for i := 0; i < 12; i++ {
		_ = client.Ping(ctx)
	}

	checkTrue(t, "breaker open after sustained failures", client.IsOpen())

	before := inner.calls
	err := client.Ping(ctx)
	checkError(t, err)
	checkTrue(t, "breaker error recognized", ErrCircuitOpen(err))
	checkIntEqual(t, "inner calls while open", inner.calls, before)
}

func TestBreakerPassesResultsThrough(t *testing.T) {
	inner := &failingClient{}
	client := NewBreakerClient(inner)

	_, err := client.ListUsers(context.Background())
	checkError(t, err)
	checkTrue(t, "inner error surfaces, not a breaker error", !ErrCircuitOpen(err))
	checkTrue(t, "breaker still closed after one failure", !client.IsOpen())
}
