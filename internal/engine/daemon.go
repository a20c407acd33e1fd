// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
daemon.go - Scheduled Daemon Mode

In daemon mode the engine runs once a day at the configured wall-clock
time. The schedule loop is a suture service under a small supervisor
tree: a panic or crash in a run restarts the loop with backoff instead
of killing the process, and supervisor events are bridged into the
structured log.

The run time is re-read from config before each cycle, so rescheduling
through the dashboard takes effect at the next wakeup without a restart.
*/

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/jellysage/jellysage/internal/config"
	"github.com/jellysage/jellysage/internal/logging"
)

// scheduleService runs the engine daily at the configured time.
type scheduleService struct {
	run            func(context.Context) error
	startupRunDone bool
}

var _ suture.Service = (*scheduleService)(nil)

// Serve performs one run immediately, then sleeps until each scheduled
// run time and repeats until the context is cancelled. Fatal run errors
// are logged but do not stop the daemon: tomorrow's run gets a fresh
// config snapshot and a fresh chance. The startup run happens once per
// process, not again after a supervisor restart.
func (s *scheduleService) Serve(ctx context.Context) error {
	if !s.startupRunDone {
		s.startupRunDone = true
		logging.Info().Msg("Daemon started, performing initial run")
		if err := s.run(ctx); err != nil {
			logging.Error().Err(err).Msg("Initial run failed")
		}
	}

	for {
		runAt, err := nextRunTime(time.Now())
		if err != nil {
			return err
		}
		logging.Info().Time("next_run", runAt).Msg("Daemon sleeping until next scheduled run")

		select {
		case <-time.After(time.Until(runAt)):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := s.run(ctx); err != nil {
			logging.Error().Err(err).Msg("Scheduled run failed")
		}
	}
}

// nextRunTime computes the next occurrence of the configured HH:MM,
// reloading config so schedule edits apply without a restart.
func nextRunTime(now time.Time) (time.Time, error) {
	cfg, err := config.Load()
	if err != nil {
		return time.Time{}, fmt.Errorf("load configuration for schedule: %w", err)
	}

	return nextOccurrence(now, cfg.Engine.RunTime)
}

// nextOccurrence returns the next time the daily HH:MM comes around,
// tomorrow when today's slot has already passed.
func nextOccurrence(now time.Time, hhmm string) (time.Time, error) {
	at, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run_time %q: %w", hhmm, err)
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// RunDaemon supervises the schedule loop until ctx is cancelled.
func RunDaemon(ctx context.Context) error {
	hook := (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook()
	sup := suture.New("jellysage", suture.Spec{
		EventHook:        hook,
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
	})
	sup.Add(&scheduleService{run: Run})

	err := sup.Serve(ctx)
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}
