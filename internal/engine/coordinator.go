// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

/*
coordinator.go - Run Orchestration

A run is the unit of work: load a fresh config snapshot, probe the
server, sweep stale libraries, then process every user through a bounded
worker pool (profile, score, materialize, register) and finish with a
single visibility-enforcement pass over all policies.

Failure handling is two-tier. Anything that breaks the whole run before
user processing starts (missing credentials, unreachable server) is
fatal: the run state records it for the dashboard and the process exits
non-zero. Anything per-user or per-category is contained: logged,
skipped, retried implicitly on the next run. A run that completes with
some users skipped is still a successful run.

Config is reloaded at the start of every run, so dashboard edits apply
on the next cycle without a restart. The snapshot is immutable for the
duration of the run.
*/

package engine

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jellysage/jellysage/internal/applock"
	"github.com/jellysage/jellysage/internal/config"
	"github.com/jellysage/jellysage/internal/logging"
	"github.com/jellysage/jellysage/internal/materialize"
	"github.com/jellysage/jellysage/internal/mediaserver"
	"github.com/jellysage/jellysage/internal/notify"
	"github.com/jellysage/jellysage/internal/privacy"
	"github.com/jellysage/jellysage/internal/profile"
	"github.com/jellysage/jellysage/internal/reconcile"
	"github.com/jellysage/jellysage/internal/scoring"
)

// lockGraceDelay is how long a run waits for a competing holder before
// proceeding anyway. Silently skipping a scheduled run would leave users
// with a day-old library for no visible reason.
const lockGraceDelay = 1 * time.Second

// installedMarker flags that at least one run has completed setup.
const installedMarker = ".installed"

// newNotifier is a seam for tests.
var newNotifier = notify.New

// Run executes one full engine cycle. A non-nil error is fatal; it has
// already been persisted to the run state and notified before returning.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.SetLevelString(cfg.Logging.Level)

	runID := uuid.NewString()
	log := logging.With().Str("run_id", runID).Logger()
	store := NewStateStore(cfg.StatusFilePath())

	notifier, err := newNotifier(cfg.Notify.URLs)
	if err != nil {
		log.Warn().Err(err).Msg("Notification setup failed, continuing without")
		notifier = notify.Noop{}
	}

	fatal := func(msg string, cause error) error {
		full := msg
		if cause != nil {
			full = fmt.Sprintf("%s: %v", msg, cause)
		}
		log.Error().Err(cause).Msg(msg)
		if saveErr := store.Save(RunState{Phase: PhaseFatal, Message: full, RunID: runID}); saveErr != nil {
			log.Warn().Err(saveErr).Msg("Cannot persist fatal state")
		}
		notifier.Notify("Jellysage run failed", full)
		if cause != nil {
			return fmt.Errorf("%s: %w", msg, cause)
		}
		return fmt.Errorf("%s", msg)
	}

	release := acquireLock(cfg, log)
	defer release()

	if !cfg.HasCredentials() {
		return fatal("server URL and API key must be configured", nil)
	}

	if err := store.Save(RunState{Phase: PhaseRunning, RunID: runID}); err != nil {
		log.Warn().Err(err).Msg("Cannot persist run state")
	}
	log.Info().Str("server", cfg.Jellyfin.URL).Msg("Run started")
	notifier.Notify("Jellysage", "Run started")

	client := mediaserver.NewFromConfig(&cfg.Jellyfin)

	// Library mapping probe: if we cannot even list libraries, every
	// later step would fail piecemeal. Fail once, loudly.
	if _, err := client.ListVirtualFolders(ctx); err != nil {
		return fatal("library mapping probe failed", err)
	}

	firstRunCleanup(cfg, log)

	resolver := materialize.NewPathResolver(cfg.Paths.Substitutions, cfg.Paths.UseNetworkDrive)
	resolver.RefreshDriveMap()
	symlinksOK := materialize.CanSymlink(cfg.Paths.DataRoot)

	users, err := client.ListUsers(ctx)
	if err != nil {
		return fatal("user enumeration failed", err)
	}

	rec := reconcile.NewReconciler(client)
	deleted := rec.CleanupStale(ctx, expectedLibraryNames(cfg, users), cfg.Paths.DataRoot)
	rec.ScrubPolicies(ctx, deleted)

	cache, err := profile.OpenCache(cfg.ProfileCachePath())
	if err != nil {
		log.Warn().Err(err).Msg("Profile cache unavailable, continuing without")
		cache = nil
	} else {
		defer func() { _ = cache.Close() }()
	}

	w := &worker{
		cfg:        cfg,
		client:     client,
		builder:    profile.NewBuilder(client, cfg.Engine.HistoryLimit),
		cache:      cache,
		scorer:     scoring.NewEngine(rand.NewSource(time.Now().UnixNano())),
		mat:        materialize.New(resolver),
		rec:        rec,
		symlinksOK: symlinksOK,
		log:        log,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Engine.ThreadCount)
	for _, u := range users {
		g.Go(func() error {
			w.processUser(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	if err := privacy.NewEnforcer(client, cfg.Paths.DataRoot).Apply(ctx); err != nil {
		log.Warn().Err(err).Msg("Visibility enforcement incomplete")
	}

	if err := store.Clear(); err != nil {
		log.Warn().Err(err).Msg("Cannot clear run state")
	}
	notifier.Notify("Jellysage", fmt.Sprintf("Run complete: %d users processed", len(users)))
	log.Info().Int("users", len(users)).Msg("Run complete")
	return nil
}

// acquireLock takes the single-instance lock, waiting one grace period
// for a competing holder. When the lock cannot be had the run proceeds
// anyway in forced-foreground mode rather than silently doing nothing.
// The returned func releases whatever was acquired.
func acquireLock(cfg *config.Config, log zerolog.Logger) func() {
	lk, err := applock.New(cfg.LockFilePath())
	if err != nil {
		log.Warn().Err(err).Msg("Cannot create instance lock, proceeding unguarded")
		return func() {}
	}

	ok, err := lk.TryAcquire()
	if err == nil && !ok {
		time.Sleep(lockGraceDelay)
		ok, err = lk.TryAcquire()
	}
	if err != nil || !ok {
		log.Warn().Err(err).Str("lock", lk.Path()).Msg("Instance lock held elsewhere, proceeding in forced foreground mode")
		return func() {}
	}
	return func() { _ = lk.Release() }
}

// firstRunCleanup removes leftover generated content from a previous
// installation the first time this installation runs, then drops the
// installed marker so later runs skip the sweep.
func firstRunCleanup(cfg *config.Config, log zerolog.Logger) {
	marker := filepath.Join(cfg.Paths.DataRoot, installedMarker)
	if _, err := os.Stat(marker); err == nil {
		return
	}

	log.Info().Msg("First run detected, clearing any leftover generated content")
	if err := os.RemoveAll(materialize.LibrariesRoot(cfg.Paths.DataRoot)); err != nil {
		log.Warn().Err(err).Msg("Leftover content cleanup failed")
	}
	if err := os.MkdirAll(cfg.Paths.DataRoot, 0o755); err == nil {
		if err := os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
			log.Warn().Err(err).Msg("Cannot write installed marker")
		}
	}
}

// expectedLibraryNames enumerates every library name the current
// configuration and user list should produce. Anything engine-managed
// outside this set is stale.
func expectedLibraryNames(cfg *config.Config, users []mediaserver.User) map[string]struct{} {
	expected := make(map[string]struct{}, len(users)*len(cfg.Categories))
	for _, u := range users {
		token := reconcile.UserToken(u.ID)
		for _, name := range cfg.EnabledCategories() {
			expected[reconcile.LibraryName(cfg.Categories[name].DisplayName, token)] = struct{}{}
		}
	}
	return expected
}

// worker carries the per-run collaborators shared by the user pool.
type worker struct {
	cfg        *config.Config
	client     mediaserver.Client
	builder    *profile.Builder
	cache      *profile.Cache
	scorer     *scoring.Engine
	mat        *materialize.Materializer
	rec        *reconcile.Reconciler
	symlinksOK bool
	log        zerolog.Logger
}

// processUser runs the full pipeline for one user. Every failure inside
// is contained to that user or category.
func (w *worker) processUser(ctx context.Context, user mediaserver.User) {
	log := w.log.With().Str("user", user.Name).Logger()

	prof, warm := w.builder.Build(ctx, user.ID)
	if w.cache != nil {
		if err := w.cache.Put(user.ID, prof); err != nil {
			log.Debug().Err(err).Msg("Profile cache write failed")
		}
	}

	token := reconcile.UserToken(user.ID)
	for _, name := range w.cfg.EnabledCategories() {
		if ctx.Err() != nil {
			return
		}
		cat := w.cfg.Categories[name]
		if cat.RequiresSymlinks() && !w.symlinksOK {
			log.Info().Str("category", name).Msg("Skipping category: filesystem does not support symlinks")
			continue
		}
		w.processCategory(ctx, log, user, name, cat, prof, warm, token)
	}
}

// processCategory builds and registers one user/category library.
func (w *worker) processCategory(ctx context.Context, log zerolog.Logger, user mediaserver.User, name string, cat config.CategoryConfig, prof *profile.Profile, warm bool, token string) {
	items, err := w.client.QueryUserItems(ctx, user.ID, mediaserver.ItemQuery{
		IncludeItemTypes: cat.MediaKind,
		Recursive:        true,
		Filters:          "IsUnplayed",
		Fields:           mediaserver.CandidateFields,
		Limit:            w.cfg.Engine.CandidateLimit,
	})
	if err != nil {
		log.Warn().Err(err).Str("category", name).Msg("Candidate fetch failed")
		return
	}

	ranked := w.scorer.Rank(items, prof, w.cfg.Scoring.WeightsFor(name), !warm, cat.MinScore, w.cfg.Engine.RecommendationCount)
	if len(ranked) == 0 {
		// Keep whatever the previous run produced rather than
		// registering an empty library.
		log.Info().Str("category", name).Int("candidates", len(items)).Msg("No items cleared the score threshold")
		return
	}

	dir := materialize.CategoryDir(w.cfg.Paths.DataRoot, user.Name, user.ID, cat.DisplayName)
	if err := w.mat.ResetDirectory(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Cannot reset category directory")
		return
	}

	useSymlinks := cat.RequiresSymlinks()
	for i := range ranked {
		item := &ranked[i].Item
		if useSymlinks {
			w.materializeAlbum(dir, item)
		} else {
			w.mat.MaterializeItem(item.Path, filepath.Join(dir, materialize.SanitizeName(item.Name)), false)
		}
	}

	libName := reconcile.LibraryName(cat.DisplayName, token)
	if err := w.rec.Upsert(ctx, libName, cat.CollectionType, dir); err != nil {
		log.Warn().Err(err).Str("library", libName).Msg("Library registration failed")
		return
	}
	log.Info().Str("category", name).Int("items", len(ranked)).Msg("Category materialized")
}

// materializeAlbum lays out one album under <category>/<Artist>/<Album>
// with identification sidecars.
func (w *worker) materializeAlbum(categoryDir string, item *mediaserver.Item) {
	artist := item.AlbumArtist
	if artist == "" && len(item.Artists) > 0 {
		artist = item.Artists[0]
	}
	artistDir := "Unknown Artist"
	if artist != "" {
		artistDir = materialize.SanitizeName(artist)
	}

	albumDir := filepath.Join(categoryDir, artistDir, materialize.SanitizeName(item.Name))
	w.mat.MaterializeItem(item.Path, albumDir, true)
	w.mat.WriteMusicMetadata(albumDir, item.Name, artist)
}
