// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

// The cleaner binary removes every library, catalog entry, policy grant,
// and on-disk artifact the engine has created. It shares the engine's
// single-instance lock so cleanup never races a running build.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jellysage/jellysage/internal/applock"
	"github.com/jellysage/jellysage/internal/cleaner"
	"github.com/jellysage/jellysage/internal/config"
	"github.com/jellysage/jellysage/internal/logging"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("jellysage-cleaner %s\n", version)
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

	lk, err := applock.New(cfg.LockFilePath())
	if err != nil {
		logging.Error().Err(err).Msg("Cannot create instance lock")
		os.Exit(1)
	}
	held, err := lk.TryAcquire()
	if err != nil || !held {
		logging.Error().Err(err).Str("lock", lk.Path()).Msg("An engine or cleaner run is in progress, refusing to clean")
		os.Exit(1)
	}
	defer func() { _ = lk.Release() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cleaner.New(cfg).Clean(ctx); err != nil {
		logging.Error().Err(err).Msg("Cleanup failed")
		os.Exit(1)
	}
}
