package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// requestBackoff is the fixed delay before retrying a failed getUpdates call
const requestBackoff = 5 * time.Second

// ErrFileNotFound is returned when Telegram cannot resolve a file reference
var ErrFileNotFound = errors.New("telegram file not found")

// Client wraps the Telegram Bot API: long-poll batches, sending, and
// file resolution/download.
type Client struct {
	api  *tgbotapi.BotAPI
	http *http.Client
}

// NewClient creates a new Telegram client with the given bot token
func NewClient(token string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	return &Client{
		api:  api,
		http: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Username returns the authenticated bot's username
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// Poll runs the long-poll loop until ctx is cancelled. It requests batches
// of updates starting at offset, passes every update to handle, and advances
// the offset past each update returned regardless of how it was handled.
// Request timeouts retry immediately; other request failures back off.
func (c *Client) Poll(ctx context.Context, offset int64, timeout time.Duration, allowed []string, handle func(context.Context, tgbotapi.Update)) {
	cfg := tgbotapi.NewUpdate(int(offset))
	cfg.Timeout = int(timeout.Seconds())
	cfg.AllowedUpdates = allowed

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Polling stopped")
			return
		default:
		}

		updates, err := c.api.GetUpdates(cfg)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Long-poll timeout, empty batch.
				continue
			}
			log.Error().Err(err).Msg("Failed to get updates")
			select {
			case <-ctx.Done():
				return
			case <-time.After(requestBackoff):
			}
			continue
		}

		for _, update := range updates {
			// Offset moves past skipped updates too, so the API never
			// redelivers them.
			cfg.Offset = update.UpdateID + 1
			handle(ctx, update)
		}
	}
}

// SendMessage sends a plain text message to a chat
func (c *Client) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := c.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendHTML sends a message with HTML formatting to a chat
func (c *Client) SendHTML(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := c.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send html message: %w", err)
	}
	return nil
}

// FileURL resolves a file_id to its temporary content URL via getFile
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	file, err := c.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}
	if file.FilePath == "" {
		return "", ErrFileNotFound
	}
	return file.Link(c.api.Token), nil
}

// DownloadFile fetches a file's content through the Bot API and returns the
// raw bytes plus a filename derived from the remote path. Only usable for
// files within the Bot API download limit.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	fileURL, err := c.FileURL(ctx, fileID)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed with status: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file body: %w", err)
	}

	return data, path.Base(fileURL), nil
}

// FileStream is an open remote file body for pass-through streaming
type FileStream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// OpenFileStream resolves a file_id and opens its content for streaming
// without buffering the whole file. The caller owns Body.
func (c *Client) OpenFileStream(ctx context.Context, fileID string) (*FileStream, error) {
	fileURL, err := c.FileURL(ctx, fileID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open file stream: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("file stream failed with status: %s", resp.Status)
	}

	return &FileStream{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}
