package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avtodecor/newsbot/internal/media"
	"github.com/avtodecor/newsbot/internal/model"
	"github.com/avtodecor/newsbot/internal/server"
	"github.com/avtodecor/newsbot/internal/store"
)

// Session error classes. The worker decides between retry and give-up by
// these, so the session client must wrap its failures accordingly.
var (
	// ErrFloodWait means Telegram asked us to slow down; the item stays
	// pending and is retried on a later pass.
	ErrFloodWait = errors.New("flood wait")
	// ErrUnauthorized means the user session is dead and needs re-login.
	ErrUnauthorized = errors.New("session unauthorized")
	// ErrNotFound means the referenced message or its video is gone.
	ErrNotFound = errors.New("message not found")
)

// SessionClient downloads channel videos over a user session, which is not
// subject to the Bot API file size limit.
type SessionClient interface {
	// DownloadVideo fetches the video of the given channel message into a
	// local temp file and returns its path.
	DownloadVideo(ctx context.Context, channel string, messageID int64) (string, error)
	Close() error
}

// Worker drains pending large videos: it claims each article, downloads the
// video over the user session and publishes the local file.
type Worker struct {
	store     store.ArticleStore
	session   SessionClient
	media     *media.Storage
	limit     int
	itemDelay time.Duration
}

// NewWorker creates a download worker processing up to limit articles per
// pass, pausing itemDelay between items.
func NewWorker(st store.ArticleStore, session SessionClient, media *media.Storage, limit int, itemDelay time.Duration) *Worker {
	return &Worker{
		store:     st,
		session:   session,
		media:     media,
		limit:     limit,
		itemDelay: itemDelay,
	}
}

// Run performs one pass over the pending queue. It returns the number of
// videos that reached the ready state.
func (w *Worker) Run(ctx context.Context) (int, error) {
	articles, err := w.store.GetPendingVideoArticles(ctx, w.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending videos: %w", err)
	}
	if len(articles) == 0 {
		log.Info().Msg("No pending videos")
		return 0, nil
	}

	log.Info().Int("pending", len(articles)).Msg("Processing pending videos")

	done := 0
	for i, article := range articles {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}

		claimed, err := w.store.ClaimPendingVideo(ctx, article.ID)
		if err != nil {
			log.Error().Err(err).Uint("article", article.ID).Msg("Failed to claim pending video")
			continue
		}
		if !claimed {
			// Another worker got there first.
			log.Debug().Uint("article", article.ID).Msg("Pending video already claimed")
			continue
		}

		if w.process(ctx, article) {
			done++
		}

		// Pace requests to the user session API.
		if i < len(articles)-1 {
			select {
			case <-ctx.Done():
				return done, ctx.Err()
			case <-time.After(w.itemDelay):
			}
		}
	}

	log.Info().Int("ready", done).Int("pending", len(articles)).Msg("Download pass complete")
	return done, nil
}

// RunLoop runs download passes every interval until the context ends.
func (w *Worker) RunLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Download pass failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// process downloads one claimed article's video and resolves its final
// status. Returns true when the video reached ready.
func (w *Worker) process(ctx context.Context, article *model.Article) bool {
	if article.TelegramChannel == "" || article.TelegramMessageID == 0 {
		log.Error().Uint("article", article.ID).Msg("Pending video has no message reference")
		w.setStatus(ctx, article.ID, model.VideoStatusError)
		return false
	}

	log.Info().
		Uint("article", article.ID).
		Str("channel", article.TelegramChannel).
		Int64("messageID", article.TelegramMessageID).
		Msg("Downloading video")

	tmpPath, err := w.session.DownloadVideo(ctx, article.TelegramChannel, article.TelegramMessageID)
	if err != nil {
		switch {
		case errors.Is(err, ErrFloodWait):
			log.Warn().Uint("article", article.ID).Err(err).Msg("Flood wait, re-queueing video")
			w.setStatus(ctx, article.ID, model.VideoStatusPending)
			server.RecordDownload("flood_wait")
		case errors.Is(err, ErrUnauthorized):
			log.Error().Uint("article", article.ID).Err(err).Msg("User session unauthorized")
			w.setStatus(ctx, article.ID, model.VideoStatusError)
			server.RecordDownload("unauthorized")
		default:
			log.Error().Uint("article", article.ID).Err(err).Msg("Video download failed")
			w.setStatus(ctx, article.ID, model.VideoStatusError)
			server.RecordDownload("error")
		}
		return false
	}

	name := fmt.Sprintf("%s_%d.mp4", article.TelegramChannel, article.TelegramMessageID)
	rel, err := w.media.ImportVideo(tmpPath, name)
	if err != nil {
		log.Error().Err(err).Uint("article", article.ID).Msg("Failed to import downloaded video")
		w.setStatus(ctx, article.ID, model.VideoStatusError)
		return false
	}

	if err := w.store.SetVideoReady(ctx, article.ID, rel); err != nil {
		log.Error().Err(err).Uint("article", article.ID).Msg("Failed to mark video ready")
		return false
	}

	log.Info().Uint("article", article.ID).Str("file", rel).Msg("Video ready")
	server.RecordDownload("ready")
	return true
}

func (w *Worker) setStatus(ctx context.Context, id uint, status model.VideoStatus) {
	if err := w.store.SetVideoStatus(ctx, id, status); err != nil {
		log.Error().Err(err).Uint("article", id).Msg("Failed to update video status")
	}
}
