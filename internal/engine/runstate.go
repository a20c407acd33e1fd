// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// Phase is the run lifecycle state persisted for the external dashboard.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseFatal   Phase = "fatal"
)

// RunState is the persisted run status record. The external dashboard
// polls it to show progress and surface fatal errors; a successful run
// clears the record, so an existing file always means in-progress or
// failed.
type RunState struct {
	Phase     Phase     `json:"phase"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
}

// StateStore persists RunState as status.json under the data root.
type StateStore struct {
	path string
}

// NewStateStore creates a store writing to path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Save atomically replaces the status record. Write-then-rename keeps
// the dashboard from ever reading a half-written file.
func (s *StateStore) Save(state RunState) error {
	if state.Timestamp.IsZero() {
		state.Timestamp = time.Now().UTC()
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace run state: %w", err)
	}
	return nil
}

// Clear removes the status record. A success leaves no file behind.
func (s *StateStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear run state: %w", err)
	}
	return nil
}

// Read loads the current status record. A missing file reads as idle.
func (s *StateStore) Read() (RunState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return RunState{Phase: PhaseIdle}, nil
	}
	if err != nil {
		return RunState{}, fmt.Errorf("read run state: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return RunState{}, fmt.Errorf("decode run state: %w", err)
	}
	return state, nil
}
