// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
resolver.go - Source Path Resolution

Media server item paths are server-relative and may not be reachable from
the machine running the engine (remote mounts, mapped network drives).
Resolution happens in two passes: configured static remote-to-local
substitutions first, then an auto-detected drive-letter-to-UNC map on
Windows. Paths nothing matches pass through unchanged — the materializer
will then write a pointer to whatever the server reported.
*/

package materialize

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jellysage/jellysage/internal/logging"
)

// PathResolver translates server-reported source paths to locally
// reachable ones. Safe for concurrent use after RefreshDriveMap.
type PathResolver struct {
	substitutions   map[string]string
	useNetworkDrive bool

	mu       sync.RWMutex
	driveMap map[string]string // "X:" -> `\\server\share`
}

// NewPathResolver creates a resolver with the configured static
// substitutions. Call RefreshDriveMap before a run to pick up mapped
// network drives.
func NewPathResolver(substitutions map[string]string, useNetworkDrive bool) *PathResolver {
	return &PathResolver{
		substitutions:   substitutions,
		useNetworkDrive: useNetworkDrive,
		driveMap:        map[string]string{},
	}
}

// RefreshDriveMap re-probes the OS for drive-letter mappings. Only does
// anything on Windows; elsewhere the map stays empty. A failed probe
// keeps the previous map rather than wiping it.
func (r *PathResolver) RefreshDriveMap() {
	if runtime.GOOS != "windows" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "net", "use").Output()
	if err != nil {
		logging.Debug().Err(err).Msg("Drive mapping probe failed, keeping previous map")
		return
	}

	current := parseNetUseOutput(string(out))
	if len(current) == 0 {
		return
	}

	r.mu.Lock()
	r.driveMap = current
	r.mu.Unlock()
	logging.Debug().Int("mappings", len(current)).Msg("Drive mappings refreshed")
}

// parseNetUseOutput extracts drive-letter to UNC-path pairs from the
// output of `net use`.
func parseNetUseOutput(out string) map[string]string {
	mappings := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)

		var drive, unc string
		for _, f := range fields {
			if len(f) == 2 && f[1] == ':' {
				drive = strings.ToUpper(f)
			}
			if strings.HasPrefix(f, `\\`) {
				unc = f
			}
		}
		if drive != "" && unc != "" {
			mappings[drive] = unc
		}
	}
	return mappings
}

// Resolve translates a source path. Static substitutions win over the
// drive map; unresolvable paths pass through unchanged.
func (r *PathResolver) Resolve(path string) string {
	if r.useNetworkDrive {
		for remote, local := range r.substitutions {
			if strings.HasPrefix(path, remote) {
				return local + path[len(remote):]
			}
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.driveMap) == 0 || len(path) < 2 {
		return path
	}

	prefix := strings.ToUpper(path[:2])
	if unc, ok := r.driveMap[prefix]; ok {
		return unc + path[2:]
	}
	return path
}

// probeTimeout bounds the drive probe; `net use` can hang on dead shares.
const probeTimeout = 2 * time.Second
