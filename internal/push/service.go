package push

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/avtodecor/newsbot/internal/store"
)

// TelegramClient defines the interface for sending Telegram messages
type TelegramClient interface {
	SendHTML(chatID int64, text string) error
}

// Service broadcasts lead notifications to subscribed chats
type Service struct {
	store    store.SubscriberStore
	telegram TelegramClient
	limiter  *rate.Limiter // Telegram rate limit: max 30 msg/sec globally
}

// NewService creates a new push service
func NewService(store store.SubscriberStore, telegram TelegramClient) *Service {
	return &Service{
		store:    store,
		telegram: telegram,
		// Telegram rate limit: 30 messages per second globally
		limiter: rate.NewLimiter(rate.Limit(30), 1),
	}
}

// Broadcast sends one lead notification to every subscriber. Per-chat
// failures are logged and skipped so one dead chat never blocks the rest.
// Returns the number of chats that received the message.
func (s *Service) Broadcast(ctx context.Context, lead *Lead) (int, error) {
	chats, err := s.store.ListSubscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list subscribers: %w", err)
	}

	log.Info().Int("subscribers", len(chats)).Msg("Broadcasting lead notification")

	message := FormatLeadMessage(lead)
	sent := 0
	for _, chatID := range chats {
		if err := s.limiter.Wait(ctx); err != nil {
			return sent, fmt.Errorf("rate limiter error: %w", err)
		}
		if err := s.telegram.SendHTML(chatID, message); err != nil {
			log.Error().
				Err(err).
				Int64("chatID", chatID).
				Msg("Failed to notify subscriber")
			continue
		}
		sent++
	}

	log.Info().Int("sent", sent).Int("subscribers", len(chats)).Msg("Lead broadcast complete")
	return sent, nil
}
