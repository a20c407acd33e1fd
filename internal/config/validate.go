// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks structural validity of a loaded configuration.
// It does NOT require an API key: a fresh install legitimately has none
// until the operator configures it, and that case must surface as a
// fatal run status rather than a config load failure.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := time.Parse("15:04", c.Engine.RunTime); err != nil {
		return fmt.Errorf("engine.run_time must be HH:MM, got %q", c.Engine.RunTime)
	}

	for name, cat := range c.Categories {
		if !cat.Enabled {
			continue
		}
		if cat.DisplayName == "" {
			return fmt.Errorf("category %s: display_name is required when enabled", name)
		}
		if cat.MediaKind == "" || cat.CollectionType == "" {
			return fmt.Errorf("category %s: media_kind and collection_type are required when enabled", name)
		}
	}

	for remote, local := range c.Paths.Substitutions {
		if remote == "" || local == "" {
			return fmt.Errorf("paths.substitutions entries must have non-empty keys and values")
		}
	}

	return nil
}

// HasCredentials reports whether the config carries enough to talk to the
// media server. Checked at run start; absence is a fatal run condition.
func (c *Config) HasCredentials() bool {
	return c.Jellyfin.URL != "" && c.Jellyfin.APIKey != ""
}
