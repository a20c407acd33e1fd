// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
config.go - Configuration Types and Defaults

Configuration is loaded fresh at the start of every engine run (hot reload):
changes made through the external dashboard apply without a service restart.
The loaded Config is an immutable snapshot; nothing mutates it mid-run.
*/

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
)

// Config is the root configuration for both the engine and the cleaner.
type Config struct {
	Jellyfin   JellyfinConfig            `koanf:"jellyfin"`
	Engine     EngineConfig              `koanf:"engine"`
	Paths      PathsConfig               `koanf:"paths"`
	Categories map[string]CategoryConfig `koanf:"categories"`
	Scoring    ScoringConfig             `koanf:"scoring"`
	Notify     NotifyConfig              `koanf:"notify"`
	Logging    LoggingConfig             `koanf:"logging"`
}

// JellyfinConfig holds media server connection settings.
type JellyfinConfig struct {
	// URL is the Jellyfin/Emby server base URL (e.g. http://localhost:8096).
	URL string `koanf:"url" validate:"required,url"`

	// APIKey authenticates every request via the X-Emby-Token header.
	// An empty key is tolerated at load time (the dashboard may not have
	// been configured yet) and rejected as fatal at run start.
	APIKey string `koanf:"api_key"`

	// Timeout bounds each individual HTTP request.
	Timeout time.Duration `koanf:"timeout"`

	// RetryAttempts and RetryDelay configure the retry policy for
	// transient 429/5xx responses. Delay doubles per attempt.
	RetryAttempts int           `koanf:"retry_attempts" validate:"min=1,max=10"`
	RetryDelay    time.Duration `koanf:"retry_delay"`

	// RateLimit caps outgoing requests per second. 0 disables the limiter.
	RateLimit float64 `koanf:"rate_limit" validate:"min=0"`

	// CircuitBreaker enables the gobreaker wrapper around the API client.
	CircuitBreaker bool `koanf:"circuit_breaker"`
}

// EngineConfig holds run scheduling and sizing knobs.
type EngineConfig struct {
	// ThreadCount is the per-run worker pool size for user processing.
	ThreadCount int `koanf:"thread_count" validate:"min=1,max=32"`

	// RecommendationCount is the top-N cutoff per user per category.
	RecommendationCount int `koanf:"recommendation_count" validate:"min=1,max=500"`

	// HistoryLimit bounds the played-history fetch used for profiling.
	HistoryLimit int `koanf:"history_limit" validate:"min=1"`

	// CandidateLimit bounds the unplayed-candidate fetch per category.
	CandidateLimit int `koanf:"candidate_limit" validate:"min=1"`

	// DaemonMode re-runs the pipeline daily at RunTime instead of exiting.
	DaemonMode bool `koanf:"daemon_mode"`

	// RunTime is the daily wall-clock run time in HH:MM for daemon mode.
	RunTime string `koanf:"run_time"`
}

// PathsConfig holds filesystem layout and path translation settings.
type PathsConfig struct {
	// DataRoot is the managed directory all discovery content lives under.
	// Everything below it is owned by Jellysage and may be regenerated
	// or deleted; only configuration files and logs are preserved.
	DataRoot string `koanf:"data_root" validate:"required"`

	// Substitutions maps remote path prefixes to local ones, applied
	// before the auto-detected network drive map.
	Substitutions map[string]string `koanf:"substitutions"`

	// UseNetworkDrive enables the static substitution pass.
	UseNetworkDrive bool `koanf:"use_network_drive"`
}

// CategoryConfig describes one discovery category (Movies, Shows, Music).
type CategoryConfig struct {
	Enabled bool `koanf:"enabled"`

	// DisplayName is the human-visible library name base; a per-user
	// uniqueness token is appended when libraries are created.
	DisplayName string `koanf:"display_name"`

	// MinScore excludes items scoring below it (jitter included).
	MinScore float64 `koanf:"min_score"`

	// MediaKind is the Jellyfin item type queried: Movie, Series, MusicAlbum.
	MediaKind string `koanf:"media_kind" validate:"omitempty,oneof=Movie Series MusicAlbum"`

	// CollectionType is the Jellyfin virtual folder collection type:
	// movies, tvshows, music.
	CollectionType string `koanf:"collection_type" validate:"omitempty,oneof=movies tvshows music"`
}

// RequiresSymlinks reports whether this category needs genuine symbolic
// links on disk. Music playback needs byte-identical file access; .strm
// pointers are enough for video.
func (c CategoryConfig) RequiresSymlinks() bool {
	return c.CollectionType == "music"
}

// Weights are the per-category scoring coefficients.
type Weights struct {
	Genres      float64 `koanf:"genres"`
	Actors      float64 `koanf:"actors"`
	Directors   float64 `koanf:"directors"`
	Community   float64 `koanf:"community"`
	Collection  float64 `koanf:"collection"`
	SeenPenalty float64 `koanf:"seen_penalty"`
	Diversity   float64 `koanf:"diversity"`
}

// ScoringConfig holds the per-category weight tables.
type ScoringConfig struct {
	Weights map[string]Weights `koanf:"weights"`
}

// WeightsFor returns the weight set for a category, falling back to the
// Movies table when the category has no entry.
func (s ScoringConfig) WeightsFor(category string) Weights {
	if w, ok := s.Weights[category]; ok {
		return w
	}
	if w, ok := s.Weights["Movies"]; ok {
		return w
	}
	return DefaultConfig().Scoring.Weights["Movies"]
}

// NotifyConfig holds optional operator notification settings.
// URLs use shoutrrr service URL syntax; empty means notifications are off.
type NotifyConfig struct {
	URLs []string `koanf:"urls"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DefaultDataRoot picks the managed data root for the current platform:
// ProgramData on Windows, /config inside a container when mounted, a
// local data directory otherwise.
func DefaultDataRoot() string {
	if runtime.GOOS == "windows" {
		pd := os.Getenv("ProgramData")
		if pd == "" {
			pd = `C:\ProgramData`
		}
		return filepath.Join(pd, "Jellysage")
	}
	if isDocker() {
		if _, err := os.Stat("/config"); err == nil {
			return "/config"
		}
	}
	return filepath.Join(".", "data")
}

func isDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return os.Getenv("IS_DOCKER") == "true"
}

// DefaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and environment.
func DefaultConfig() *Config {
	return &Config{
		Jellyfin: JellyfinConfig{
			URL:            "http://localhost:8096",
			APIKey:         "",
			Timeout:        60 * time.Second,
			RetryAttempts:  4,
			RetryDelay:     500 * time.Millisecond,
			RateLimit:      0,
			CircuitBreaker: true,
		},
		Engine: EngineConfig{
			ThreadCount:         2,
			RecommendationCount: 25,
			HistoryLimit:        3000,
			CandidateLimit:      600,
			DaemonMode:          false,
			RunTime:             "04:00",
		},
		Paths: PathsConfig{
			DataRoot:        DefaultDataRoot(),
			Substitutions:   map[string]string{},
			UseNetworkDrive: false,
		},
		Categories: map[string]CategoryConfig{
			"Movies": {
				Enabled:        true,
				DisplayName:    "Discover Movies",
				MinScore:       6.0,
				MediaKind:      "Movie",
				CollectionType: "movies",
			},
			"Shows": {
				Enabled:        true,
				DisplayName:    "Discover Shows",
				MinScore:       6.0,
				MediaKind:      "Series",
				CollectionType: "tvshows",
			},
			"Music": {
				Enabled:        false,
				DisplayName:    "Discover Music",
				MinScore:       5.0,
				MediaKind:      "MusicAlbum",
				CollectionType: "music",
			},
		},
		Scoring: ScoringConfig{
			Weights: map[string]Weights{
				"Movies": {Genres: 1.0, Actors: 1.5, Directors: 2.5, Community: 2.0, Collection: 5.0, SeenPenalty: 10.0, Diversity: 1.2},
				"Shows":  {Genres: 1.5, Actors: 2.0, Directors: 1.0, Community: 1.5, Collection: 3.0, SeenPenalty: 6.0, Diversity: 1.0},
				"Music":  {Genres: 2.0, Actors: 0.0, Directors: 0.0, Community: 1.0, Collection: 2.0, SeenPenalty: 4.0, Diversity: 0.8},
			},
		},
		Notify: NotifyConfig{URLs: nil},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Caller: false,
		},
	}
}

// EnabledCategories returns the names of enabled categories in a stable
// (sorted) order so log output and library processing are deterministic.
func (c *Config) EnabledCategories() []string {
	names := make([]string, 0, len(c.Categories))
	for name, cat := range c.Categories {
		if cat.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// StatusFilePath returns the location of the persisted run status record.
func (c *Config) StatusFilePath() string {
	return filepath.Join(c.Paths.DataRoot, "status.json")
}

// LockFilePath returns the location of the single-instance lock file.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.DataRoot, "jellysage.lock")
}

// ProfileCachePath returns the BadgerDB directory for the advisory
// taste-profile cache.
func (c *Config) ProfileCachePath() string {
	return filepath.Join(c.Paths.DataRoot, "profile-cache")
}
