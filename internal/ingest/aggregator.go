package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/avtodecor/newsbot/internal/model"
	"github.com/avtodecor/newsbot/internal/store"
)

// Aggregator buffers album members until the group settles, then emits the
// whole album as one logical post. Members are staged in the database so a
// restart mid-album does not lose the buffered half.
type Aggregator struct {
	store       store.MediaGroupStore
	settleDelay time.Duration
	emit        func(ctx context.Context, post LogicalPost)

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed map[string]time.Time
}

// NewAggregator creates an album aggregator that calls emit once per
// settled group.
func NewAggregator(st store.MediaGroupStore, settleDelay time.Duration, emit func(ctx context.Context, post LogicalPost)) *Aggregator {
	return &Aggregator{
		store:       st,
		settleDelay: settleDelay,
		emit:        emit,
		timers:      make(map[string]*time.Timer),
		closed:      make(map[string]time.Time),
	}
}

// Add stages one album member and arms (or re-arms) the group's settle
// timer. Members arriving after the group already flushed are dropped.
func (a *Aggregator) Add(ctx context.Context, channelID string, msg *tgbotapi.Message, updateID int64) {
	groupID := msg.MediaGroupID

	a.mu.Lock()
	if _, done := a.closed[groupID]; done {
		a.mu.Unlock()
		log.Warn().
			Str("group", groupID).
			Int64("messageID", int64(msg.MessageID)).
			Msg("Late album member after flush, dropping")
		return
	}
	a.mu.Unlock()

	payload, err := encodeMessage(msg)
	if err != nil {
		log.Error().Err(err).Str("group", groupID).Msg("Failed to encode album member")
		return
	}

	part := &model.MediaGroupPart{
		GroupID:    groupID,
		ChannelID:  channelID,
		MessageID:  int64(msg.MessageID),
		UpdateID:   updateID,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	if err := a.store.AddMediaGroupPart(ctx, part); err != nil {
		log.Error().Err(err).Str("group", groupID).Msg("Failed to stage album member")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if timer, ok := a.timers[groupID]; ok {
		timer.Reset(a.settleDelay)
		return
	}
	a.timers[groupID] = time.AfterFunc(a.settleDelay, func() {
		a.flush(context.Background(), groupID)
	})
}

// RecoverStale flushes groups whose staging rows predate the settle window,
// typically leftovers from before a restart.
func (a *Aggregator) RecoverStale(ctx context.Context) {
	groups, err := a.store.ListStaleMediaGroups(ctx, time.Now().Add(-a.settleDelay))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list stale album groups")
		return
	}
	for _, groupID := range groups {
		log.Info().Str("group", groupID).Msg("Recovering staged album")
		a.flush(ctx, groupID)
	}
}

// Flush drains every pending group immediately. Used on shutdown.
func (a *Aggregator) Flush(ctx context.Context) {
	a.mu.Lock()
	pending := make([]string, 0, len(a.timers))
	for groupID, timer := range a.timers {
		timer.Stop()
		pending = append(pending, groupID)
	}
	a.mu.Unlock()

	for _, groupID := range pending {
		a.flush(ctx, groupID)
	}
}

func (a *Aggregator) flush(ctx context.Context, groupID string) {
	a.mu.Lock()
	delete(a.timers, groupID)
	a.closed[groupID] = time.Now()
	a.pruneClosed()
	a.mu.Unlock()

	parts, err := a.store.GetMediaGroupParts(ctx, groupID)
	if err != nil {
		log.Error().Err(err).Str("group", groupID).Msg("Failed to load staged album")
		return
	}
	if len(parts) == 0 {
		return
	}

	msgs := make([]*tgbotapi.Message, 0, len(parts))
	updateIDs := make([]int64, 0, len(parts))
	for _, part := range parts {
		var msg tgbotapi.Message
		if err := json.Unmarshal(part.Payload, &msg); err != nil {
			log.Error().Err(err).Str("group", groupID).Int64("messageID", part.MessageID).
				Msg("Failed to decode staged album member, skipping")
			continue
		}
		msgs = append(msgs, &msg)
		updateIDs = append(updateIDs, part.UpdateID)
	}
	if len(msgs) == 0 {
		return
	}

	log.Info().Str("group", groupID).Int("members", len(msgs)).Msg("Album settled")
	post := flattenGroup(msgs, updateIDs, parts[0].ChannelID)
	a.emit(ctx, post)

	if err := a.store.DeleteMediaGroupParts(ctx, groupID); err != nil {
		log.Error().Err(err).Str("group", groupID).Msg("Failed to clear staged album")
	}
}

func encodeMessage(msg *tgbotapi.Message) ([]byte, error) {
	return json.Marshal(msg)
}

// pruneClosed caps the late-arrival tombstone set. Callers hold a.mu.
func (a *Aggregator) pruneClosed() {
	if len(a.closed) < 1000 {
		return
	}
	cutoff := time.Now().Add(-time.Hour)
	for groupID, at := range a.closed {
		if at.Before(cutoff) {
			delete(a.closed, groupID)
		}
	}
}
