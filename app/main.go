package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feed2forum/feed2forum/app/api"
	"github.com/feed2forum/feed2forum/app/cfg"
	"github.com/feed2forum/feed2forum/app/database"
	"github.com/feed2forum/feed2forum/app/feed"
	"github.com/feed2forum/feed2forum/app/forum"
	"github.com/feed2forum/feed2forum/app/ledger"
	"github.com/feed2forum/feed2forum/app/publisher"
	"github.com/feed2forum/feed2forum/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	if appCfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	slog.Info("Starting feed2forum", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	feedStore := feed.NewStore(db)
	entryLedger := ledger.New(db)

	if appCfg.FeedsFile != "" {
		if err := registerFeeds(appCfg.FeedsFile, feedStore, entryLedger); err != nil {
			slog.Error("Failed to register feeds", "file", appCfg.FeedsFile, "error", err)
			os.Exit(1)
		}
	}

	httpClient := &http.Client{}
	fetchTimeout := time.Duration(appCfg.FetchTimeout) * time.Second
	fetcher := feed.NewFetcher(httpClient, appCfg.UserAgent, fetchTimeout)
	resolver := feed.NewResolver(httpClient, appCfg.UserAgent, fetchTimeout)
	forumClient := forum.NewHTTPClient(httpClient, appCfg.ForumURL, appCfg.ForumToken, appCfg.UserAgent)
	pub := publisher.New(entryLedger, forumClient, resolver, db)

	slog.Info("Starting scheduler", "workers", appCfg.WorkerCount)
	scheduler := tasks.NewScheduler(feedStore, fetcher, pub, appCfg.WorkerCount)
	if err := scheduler.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	apiHandler := api.NewHandler(feedStore, entryLedger, appCfg.Version)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}

type seedFile struct {
	Feeds []feed.Feed `yaml:"feeds"`
}

// registerFeeds synchronizes the stored feed set with the YAML file:
// listed feeds are upserted, stored feeds missing from the file are
// removed along with their ledgers.
func registerFeeds(path string, feedStore *feed.Store, entryLedger *ledger.Ledger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read feeds file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse feeds file: %w", err)
	}

	// An empty feeds file means the installation is being cleared:
	// drop every feed and its ledger in one sweep.
	if len(seed.Feeds) == 0 {
		urls, err := feedStore.DeleteAllFeeds()
		if err != nil {
			return fmt.Errorf("failed to remove feeds: %w", err)
		}
		for _, url := range urls {
			if err := entryLedger.DeleteFeed(url); err != nil {
				slog.Error("Failed to remove feed ledger", "url", url, "error", err)
			}
		}
		slog.Info("Feeds registered", "registered", 0, "removed", len(urls))
		return nil
	}

	seeded := make(map[string]bool, len(seed.Feeds))
	registeredCount := 0
	for _, f := range seed.Feeds {
		if err := feedStore.SaveFeed(f); err != nil {
			slog.Warn("Skipping feed", "url", f.URL, "error", err)
			continue
		}
		seeded[feed.CanonicalizeURL(f.URL)] = true
		registeredCount++
	}

	existing, err := feedStore.ListFeedURLs()
	if err != nil {
		return fmt.Errorf("failed to list stored feeds: %w", err)
	}

	removedCount := 0
	for _, url := range existing {
		if seeded[url] {
			continue
		}
		if err := feedStore.DeleteFeed(url); err != nil {
			slog.Error("Failed to remove feed", "url", url, "error", err)
			continue
		}
		if err := entryLedger.DeleteFeed(url); err != nil {
			slog.Error("Failed to remove feed ledger", "url", url, "error", err)
		}
		removedCount++
	}

	slog.Info("Feeds registered", "registered", registeredCount, "removed", removedCount)
	return nil
}
