package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avtodecor/newsbot/internal/bot"
	"github.com/avtodecor/newsbot/internal/config"
	"github.com/avtodecor/newsbot/internal/ingest"
	"github.com/avtodecor/newsbot/internal/media"
	"github.com/avtodecor/newsbot/internal/push"
	"github.com/avtodecor/newsbot/internal/server"
	"github.com/avtodecor/newsbot/internal/store"
)

// ShutdownTimeout is the maximum time to wait for graceful shutdown
const ShutdownTimeout = 30 * time.Second

func main() {
	resetChannel := flag.String("reset-channel", "",
		"reset the sync cursor for the given channel and exit; the channel is reprocessed from scratch")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mysqlStore, err := store.NewMySQLStore(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Database connection established")

	if *resetChannel != "" {
		channel := trimChannel(*resetChannel)
		if err := mysqlStore.ResetSync(ctx, channel); err != nil {
			log.Fatal().Err(err).Str("channel", channel).Msg("Failed to reset sync cursor")
		}
		log.Info().Str("channel", channel).Msg("Sync cursor reset, channel will be reprocessed")
		mysqlStore.Close()
		return
	}

	mediaStorage, err := media.NewStorage(cfg.Ingest.MediaRoot)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare media storage")
	}

	telegramClient, err := bot.NewClient(cfg.Bot.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}
	log.Info().Str("bot", telegramClient.Username()).Msg("Telegram client initialized")

	pipeline := ingest.NewPipeline(mysqlStore, telegramClient, mediaStorage, cfg.Ingest.AutoPublish)
	worker := ingest.NewWorker(mysqlStore, pipeline, mysqlStore,
		cfg.Bot.NewsChannel, cfg.Ingest.SettleDelay, cfg.Ingest.ImportForwarded)
	worker.Recover(ctx)

	pushService := push.NewService(mysqlStore, telegramClient)
	botHandler := bot.NewHandler(mysqlStore, telegramClient, worker)

	httpServer := server.NewServer(mysqlStore, telegramClient, pushService)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Resume the update stream where the last run left off.
	offset := int64(0)
	if cfg.Bot.NewsChannel != "" {
		sync, err := mysqlStore.GetOrCreateSync(ctx, trimChannel(cfg.Bot.NewsChannel))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load sync cursor")
		}
		offset = sync.NextOffset()
	}

	go func() {
		log.Info().Int64("offset", offset).Msg("Starting Telegram update polling")
		allowed := []string{"message", "channel_post"}
		telegramClient.Poll(ctx, offset, cfg.Bot.PollTimeout, allowed, func(ctx context.Context, update tgbotapi.Update) {
			switch {
			case update.ChannelPost != nil:
				worker.HandleChannelPost(ctx, update.ChannelPost, int64(update.UpdateID))
			case update.Message != nil:
				botHandler.HandleMessage(ctx, update.Message, int64(update.UpdateID))
			}
		})
	}()

	log.Info().Msg("News bot started successfully")

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	log.Info().Msg("Starting graceful shutdown...")

	// 1. Stop polling and flush buffered albums.
	cancel()
	worker.Drain(shutdownCtx)
	log.Info().Msg("Ingestion drained")

	// 2. Stop HTTP server.
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP server")
	} else {
		log.Info().Msg("HTTP server stopped")
	}

	// 3. Close database connection pool.
	if err := mysqlStore.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	} else {
		log.Info().Msg("Database connection closed")
	}

	log.Info().Msg("Graceful shutdown completed")
}

func trimChannel(channel string) string {
	if len(channel) > 0 && channel[0] == '@' {
		return channel[1:]
	}
	return channel
}
