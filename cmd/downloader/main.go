package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avtodecor/newsbot/internal/config"
	"github.com/avtodecor/newsbot/internal/downloader"
	"github.com/avtodecor/newsbot/internal/media"
	"github.com/avtodecor/newsbot/internal/store"
)

// The downloader runs as a separate process from the bot: TDLib holds an
// exclusive lock on its session directory, and the user session must not
// share the bot's lifecycle. The two coordinate only through the database.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.ValidateDownloader(); err != nil {
		log.Fatal().Err(err).Msg("Invalid downloader configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	mysqlStore, err := store.NewMySQLStore(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer mysqlStore.Close()

	mediaStorage, err := media.NewStorage(cfg.Ingest.MediaRoot)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare media storage")
	}

	session, err := downloader.NewTDLibClient(int32(cfg.Downloader.APIID), cfg.Downloader.APIHash, cfg.Downloader.SessionDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start user session")
	}
	defer session.Close()

	worker := downloader.NewWorker(mysqlStore, session, mediaStorage,
		cfg.Downloader.Limit, cfg.Downloader.ItemDelay)

	if cfg.Downloader.Loop {
		log.Info().Dur("interval", cfg.Downloader.Interval).Msg("Downloader running in loop mode")
		worker.RunLoop(ctx, cfg.Downloader.Interval)
		return
	}

	if _, err := worker.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Download pass failed")
	}
}
