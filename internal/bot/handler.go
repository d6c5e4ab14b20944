package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/avtodecor/newsbot/internal/store"
)

// Sender sends messages to Telegram chats
type Sender interface {
	SendMessage(chatID int64, text string) error
	SendHTML(chatID int64, text string) error
}

// ForwardImporter ingests forwarded channel posts outside the sync cursor
type ForwardImporter interface {
	HandleForwarded(ctx context.Context, msg *tgbotapi.Message, updateID int64)
}

// Handler handles direct messages to the bot: subscriber commands and,
// when enabled, manual import of forwarded channel posts.
type Handler struct {
	store    store.SubscriberStore
	telegram Sender
	importer ForwardImporter // nil when forwarded import is disabled
}

// NewHandler creates a new command handler
func NewHandler(store store.SubscriberStore, telegram Sender, importer ForwardImporter) *Handler {
	return &Handler{
		store:    store,
		telegram: telegram,
		importer: importer,
	}
}

// HandleMessage processes one incoming direct message
func (h *Handler) HandleMessage(ctx context.Context, msg *tgbotapi.Message, updateID int64) {
	if msg == nil {
		return
	}

	// Forwarded channel posts are the manual import flow, not a command.
	if msg.ForwardFromChat != nil && msg.ForwardFromChat.IsChannel() {
		if h.importer != nil {
			h.importer.HandleForwarded(ctx, msg, updateID)
		}
		return
	}

	chatID := msg.Chat.ID

	if !msg.IsCommand() {
		h.handlePlainMessage(ctx, chatID)
		return
	}

	command := msg.Command()
	log.Info().
		Int64("chatID", chatID).
		Str("command", command).
		Msg("Received command")

	switch command {
	case "start":
		h.handleStart(ctx, chatID, msg.Chat.Type)
	case "stop":
		h.handleStop(ctx, chatID)
	case "help":
		h.handleHelp(ctx, chatID)
	case "chat_id":
		h.handleChatID(chatID)
	case "status":
		h.handleStatus(ctx, chatID)
	default:
		h.send(chatID, "Неизвестная команда. Используйте /help для списка команд.")
	}
}

func (h *Handler) handleStart(ctx context.Context, chatID int64, chatType string) {
	added, err := h.store.AddSubscriber(ctx, chatID, chatType)
	if err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to add subscriber")
		h.send(chatID, "Произошла ошибка, попробуйте позже.")
		return
	}

	count, err := h.store.CountSubscribers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count subscribers")
	}

	if added {
		log.Info().Int64("chatID", chatID).Int64("total", count).Msg("New subscriber")
		h.sendHTML(chatID, fmt.Sprintf(
			"✅ Вы успешно подписаны на уведомления о заявках!\n\n"+
				"Теперь все заявки с сайта Avto-Декор будут приходить в этот чат.\n\n"+
				"Ваш chat_id: <code>%d</code>\nВсего подписчиков: %d",
			chatID, count))
	} else {
		h.sendHTML(chatID, fmt.Sprintf(
			"Вы уже подписаны на уведомления о заявках.\n\n"+
				"Ваш chat_id: <code>%d</code>\nВсего подписчиков: %d",
			chatID, count))
	}
}

func (h *Handler) handleStop(ctx context.Context, chatID int64) {
	removed, err := h.store.RemoveSubscriber(ctx, chatID)
	if err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to remove subscriber")
		h.send(chatID, "Произошла ошибка, попробуйте позже.")
		return
	}

	if removed {
		log.Info().Int64("chatID", chatID).Msg("Subscriber removed")
		h.send(chatID,
			"❌ Вы отписаны от уведомлений о заявках.\n\n"+
				"Чтобы снова получать уведомления, отправьте /start")
	} else {
		h.send(chatID, "Вы не были подписаны на уведомления.")
	}
}

func (h *Handler) handleHelp(ctx context.Context, chatID int64) {
	subscribed, err := h.store.IsSubscribed(ctx, chatID)
	if err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to check subscription")
	}

	status := "❌ не подписаны"
	if subscribed {
		status = "✅ подписаны"
	}

	h.send(chatID, fmt.Sprintf(
		"🤖 Бот Avto-Декор\n\n"+
			"Ваш статус: %s\n\n"+
			"📋 Команды:\n"+
			"/start - Подписаться на уведомления о заявках\n"+
			"/stop - Отписаться от уведомлений\n"+
			"/help - Показать эту справку\n"+
			"/chat_id - Показать ваш chat_id\n"+
			"/status - Показать статус подписки",
		status))
}

func (h *Handler) handleChatID(chatID int64) {
	h.sendHTML(chatID, fmt.Sprintf(
		"Ваш chat_id: <code>%d</code>\n\n"+
			"Этот ID используется для отправки вам уведомлений.", chatID))
}

func (h *Handler) handleStatus(ctx context.Context, chatID int64) {
	subscribed, err := h.store.IsSubscribed(ctx, chatID)
	if err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to check subscription")
		h.send(chatID, "Произошла ошибка, попробуйте позже.")
		return
	}

	count, err := h.store.CountSubscribers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count subscribers")
	}

	statusText := "❌ Вы не подписаны\n\nОтправьте /start для подписки"
	if subscribed {
		statusText = "✅ Вы подписаны на уведомления о заявках"
	}

	h.sendHTML(chatID, fmt.Sprintf(
		"%s\n\nВсего подписчиков: %d\nВаш chat_id: <code>%d</code>",
		statusText, count, chatID))
}

func (h *Handler) handlePlainMessage(ctx context.Context, chatID int64) {
	subscribed, err := h.store.IsSubscribed(ctx, chatID)
	if err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to check subscription")
		return
	}

	if subscribed {
		h.send(chatID,
			"Сообщение получено. Вы подписаны на уведомления о заявках.\n\n"+
				"Используйте /help для списка команд.")
	} else {
		h.send(chatID,
			"Сообщение получено.\n\n"+
				"Чтобы получать уведомления о заявках, отправьте /start")
	}
}

func (h *Handler) send(chatID int64, text string) {
	if err := h.telegram.SendMessage(chatID, text); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send message")
	}
}

func (h *Handler) sendHTML(chatID int64, text string) {
	if err := h.telegram.SendHTML(chatID, text); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send html message")
	}
}
