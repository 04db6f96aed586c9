package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papaklement/klement/internal/cache"
	"github.com/papaklement/klement/internal/config"
	"github.com/papaklement/klement/internal/download"
	"github.com/papaklement/klement/internal/repository"
	"github.com/papaklement/klement/internal/spotify"
	"github.com/papaklement/klement/internal/stream"
	"github.com/papaklement/klement/internal/utils"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and pre-warm the audio cache",
}

var cacheLookupCmd = &cobra.Command{
	Use:   "lookup <query-or-url>",
	Short: "Show the cached entry a query resolves to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(ctx context.Context, cfg *config.Config, files *cache.FileCache) error {
			e, err := files.Lookup(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if e == nil {
				fmt.Fprintln(out, "not cached")
				return nil
			}
			fmt.Fprintf(out, "id:       %s\n", e.ID)
			fmt.Fprintf(out, "url:      %s\n", e.SourceURL)
			fmt.Fprintf(out, "title:    %s\n", e.Title)
			fmt.Fprintf(out, "duration: %s\n", utils.PrettyTime(e.DurationSeconds))
			fmt.Fprintf(out, "cached:   %s\n", e.CachedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "path:     %s\n", e.Path)
			fmt.Fprintf(out, "queries:  %d\n", len(e.PossibleQueries))
			for _, q := range e.PossibleQueries {
				fmt.Fprintf(out, "  - %s\n", q)
			}
			return nil
		})
	},
}

var cacheFetchCmd = &cobra.Command{
	Use:   "fetch <query-or-url>",
	Short: "Resolve a query and download it into the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(ctx context.Context, cfg *config.Config, files *cache.FileCache) error {
			if cfg.YtdlpAutoInstall {
				stream.InstallYtdlp(ctx)
			}
			var sp *spotify.Client
			if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
				sp = spotify.NewClientCredentials(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
			}
			res, err := stream.NewResolver(sp).Live(ctx, args[0])
			if err != nil {
				return err
			}
			co := download.NewCoordinator(files, download.YtdlpFetcher{})
			defer co.Close(context.Background())
			if err := co.EnsureCached(ctx, res.URL, args[0], res.Title, res.Duration); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cached %s (%s)\n", res.Title, res.URL)
			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheLookupCmd, cacheFetchCmd)
	rootCmd.AddCommand(cacheCmd)
}

func withCache(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, files *cache.FileCache) error) error {
	cfg, err := config.LoadToolConfig()
	if err != nil {
		return err
	}
	logCloser, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := repository.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, cfg, cache.NewFileCache(cfg.CacheDir, store))
}
