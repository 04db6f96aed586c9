package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papaklement/klement/internal/autocomplete"
	"github.com/papaklement/klement/internal/cache"
	"github.com/papaklement/klement/internal/config"
	"github.com/papaklement/klement/internal/download"
	"github.com/papaklement/klement/internal/handlers"
	"github.com/papaklement/klement/internal/player"
	"github.com/papaklement/klement/internal/repository"
	"github.com/papaklement/klement/internal/spotify"
	"github.com/papaklement/klement/internal/stream"
	"github.com/papaklement/klement/internal/voice"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to Discord and serve the music commands",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
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

	if cfg.YtdlpAutoInstall {
		stream.InstallYtdlp(ctx)
	}

	files := cache.NewFileCache(cfg.CacheDir, store)
	downloads := download.NewCoordinator(files, download.YtdlpFetcher{})
	defer func() {
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := downloads.Close(shutdown); err != nil {
			slog.Warn("background downloads still running", "inFlight", downloads.InFlight().Len())
		}
	}()

	var sp *spotify.Client
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		sp = spotify.NewClientCredentials(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	}

	dg, err := handlers.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	transport := voice.NewDiscordTransport(dg)
	sessions := voice.NewManager(transport, transport)
	presence := player.NewDiscordPresence(dg, cfg.BotStatus)

	svc := player.NewService(player.Deps{
		Voice:     sessions,
		Cache:     files,
		Downloads: downloads,
		Resolver:  stream.NewResolver(sp),
		Scheduler: player.NewScheduler(cfg.IdleDisconnect),
		Presence:  presence,
	})
	commands := handlers.NewCommandHandler(svc, autocomplete.New(files, sp))
	bot := handlers.NewBot(cfg, dg, sessions, presence, commands)

	slog.Info("starting", "dbDriver", cfg.DBDriver, "cacheDir", cfg.CacheDir, "idleDisconnect", cfg.IdleDisconnect, "spotify", sp != nil)
	return bot.Run(ctx)
}
