package ingest

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/avtodecor/newsbot/internal/store"
)

// Worker routes channel updates into the ingestion pipeline: it filters on
// the configured channel, gates each post on the sync cursor and buffers
// album members until they settle.
type Worker struct {
	store           store.SyncStore
	pipeline        *Pipeline
	agg             *Aggregator
	channel         string
	importForwarded bool
}

// NewWorker wires a channel ingestion worker to the given pipeline. The
// channel is the monitored identifier, with or without a leading @.
func NewWorker(st store.SyncStore, pipeline *Pipeline, groups store.MediaGroupStore, channel string, settleDelay time.Duration, importForwarded bool) *Worker {
	w := &Worker{
		store:           st,
		pipeline:        pipeline,
		channel:         stripAt(channel),
		importForwarded: importForwarded,
	}
	w.agg = NewAggregator(groups, settleDelay, pipeline.Ingest)
	return w
}

// Recover flushes album members staged before a restart.
func (w *Worker) Recover(ctx context.Context) {
	w.agg.RecoverStale(ctx)
}

// Drain flushes every buffered album. Call on shutdown.
func (w *Worker) Drain(ctx context.Context) {
	w.agg.Flush(ctx)
}

// HandleChannelPost processes one channel_post update.
func (w *Worker) HandleChannelPost(ctx context.Context, msg *tgbotapi.Message, updateID int64) {
	if !w.fromMonitoredChannel(msg) {
		log.Debug().
			Str("chat", w.channelUsernameFromChat(msg)).
			Int64("messageID", int64(msg.MessageID)).
			Msg("Post from another channel, ignoring")
		return
	}

	sync, err := w.store.GetOrCreateSync(ctx, w.channel)
	if err != nil {
		log.Error().Err(err).Str("channel", w.channel).Msg("Failed to load sync cursor")
		return
	}
	if !sync.IsActive {
		log.Debug().Str("channel", w.channel).Msg("Channel sync disabled, ignoring")
		return
	}
	if !sync.ShouldProcess(int64(msg.MessageID), messageDate(msg)) {
		log.Debug().
			Int64("messageID", int64(msg.MessageID)).
			Int64("cursor", sync.LastMessageID).
			Msg("Post at or below sync cursor, skipping")
		return
	}

	if msg.MediaGroupID != "" {
		w.agg.Add(ctx, w.channel, msg, updateID)
		return
	}

	post := postFromMessage(msg, w.channel, updateID)
	if post.ChannelUsername == "" {
		post.ChannelUsername = w.channelUsernameFromChat(msg)
	}
	w.pipeline.Ingest(ctx, post)
}

// HandleForwarded imports a channel post forwarded to the bot in private
// chat. The import bypasses the sync cursor, duplicate titles are the only
// guard.
func (w *Worker) HandleForwarded(ctx context.Context, msg *tgbotapi.Message, _ int64) {
	if !w.importForwarded {
		log.Debug().Msg("Forwarded import disabled, ignoring")
		return
	}

	post := postFromMessage(msg, "", 0)
	post.Manual = true
	if msg.ForwardFromMessageID != 0 {
		post.MessageID = int64(msg.ForwardFromMessageID)
		post.LastMessageID = post.MessageID
	}
	log.Info().
		Str("origin", post.ChannelUsername).
		Int64("messageID", post.MessageID).
		Msg("Importing forwarded post")
	w.pipeline.Ingest(ctx, post)
}

func (w *Worker) fromMonitoredChannel(msg *tgbotapi.Message) bool {
	if msg.Chat == nil {
		return false
	}
	if msg.Chat.UserName != "" && strings.EqualFold(msg.Chat.UserName, w.channel) {
		return true
	}
	// The channel may be configured by numeric chat id.
	return chatIDString(msg.Chat.ID) == w.channel
}

func (w *Worker) channelUsernameFromChat(msg *tgbotapi.Message) string {
	if msg.Chat != nil {
		return msg.Chat.UserName
	}
	return ""
}

func chatIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}
