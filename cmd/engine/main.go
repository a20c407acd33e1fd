// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

// The engine binary builds per-user discovery libraries, either once or
// on a daily schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jellysage/jellysage/internal/config"
	"github.com/jellysage/jellysage/internal/engine"
	"github.com/jellysage/jellysage/internal/logging"
)

var version = "dev"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit, overriding daemon_mode")
	daemon := flag.Bool("daemon", false, "run on the daily schedule, overriding daemon_mode")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("jellysage %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.DefaultConfig())
		logging.Error().Err(err).Msg("Configuration invalid")
		os.Exit(1)
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemonMode := cfg.Engine.DaemonMode
	if *once {
		daemonMode = false
	}
	if *daemon {
		daemonMode = true
	}

	if daemonMode {
		logging.Info().Str("version", version).Str("run_time", cfg.Engine.RunTime).Msg("Starting in daemon mode")
		if err := engine.RunDaemon(ctx); err != nil {
			logging.Error().Err(err).Msg("Daemon terminated")
			os.Exit(1)
		}
		return
	}

	logging.Info().Str("version", version).Msg("Starting single run")
	if err := engine.Run(ctx); err != nil {
		os.Exit(1)
	}
}
