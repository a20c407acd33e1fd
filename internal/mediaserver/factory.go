// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package mediaserver

import (
	"github.com/jellysage/jellysage/internal/config"
)

// NewFromConfig builds the Client stack described by the configuration:
// a retrying HTTP client, optionally wrapped in a circuit breaker.
func NewFromConfig(cfg *config.JellyfinConfig) Client {
	var client Client = NewHTTPClient(cfg.URL, cfg.APIKey, Options{
		Timeout: cfg.Timeout,
		Retry: RetryPolicy{
			Attempts: cfg.RetryAttempts,
			Delay:    cfg.RetryDelay,
		},
		RateLimit: cfg.RateLimit,
	})

	if cfg.CircuitBreaker {
		client = NewBreakerClient(client)
	}
	return client
}
