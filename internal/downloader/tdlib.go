package downloader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tdlib "github.com/zelenin/go-tdlib/client"
)

// serverMessageIDShift converts a channel post number to a TDLib message
// id. TDLib stores server message ids shifted left by 20 bits.
const serverMessageIDShift = 20

const downloadPollInterval = 500 * time.Millisecond

// TDLibClient is a SessionClient backed by a TDLib user session. The
// session must be authorized once interactively; afterwards the database
// directory carries the credentials.
type TDLibClient struct {
	client *tdlib.Client
}

// NewTDLibClient starts a TDLib client against an existing session in
// sessionDir. On first run it walks the interactive phone-number login.
func NewTDLibClient(apiID int32, apiHash, sessionDir string) (*TDLibClient, error) {
	authorizer := tdlib.ClientAuthorizer(&tdlib.SetTdlibParametersRequest{
		UseMessageDatabase:  true,
		UseFileDatabase:     true,
		UseChatInfoDatabase: true,
		SystemLanguageCode:  "ru",
		DeviceModel:         "newsbot-downloader",
		ApplicationVersion:  "1.0",
		ApiId:               apiID,
		ApiHash:             apiHash,
		DatabaseDirectory:   filepath.Join(sessionDir, "database"),
		FilesDirectory:      filepath.Join(sessionDir, "files"),
	})
	go tdlib.CliInteractor(authorizer)

	client, err := tdlib.NewClient(authorizer)
	if err != nil {
		return nil, fmt.Errorf("failed to start tdlib client: %w", err)
	}

	me, err := client.GetMe()
	if err != nil {
		return nil, fmt.Errorf("failed to verify session: %w", err)
	}
	log.Info().Int64("userID", me.Id).Msg("User session authorized")

	return &TDLibClient{client: client}, nil
}

// DownloadVideo resolves the channel message and downloads its video to
// TDLib's files directory, returning the local path.
func (c *TDLibClient) DownloadVideo(ctx context.Context, channel string, messageID int64) (string, error) {
	chat, err := c.client.SearchPublicChat(&tdlib.SearchPublicChatRequest{
		Username: channel,
	})
	if err != nil {
		return "", classifyError(fmt.Errorf("failed to resolve channel %s: %w", channel, err))
	}

	msg, err := c.client.GetMessage(&tdlib.GetMessageRequest{
		ChatId:    chat.Id,
		MessageId: messageID << serverMessageIDShift,
	})
	if err != nil {
		return "", classifyError(fmt.Errorf("failed to fetch message %d: %w", messageID, err))
	}

	fileID, err := videoFileID(msg)
	if err != nil {
		return "", err
	}

	// Kick off the download and poll until TDLib reports completion.
	if _, err := c.client.DownloadFile(&tdlib.DownloadFileRequest{
		FileId:      fileID,
		Priority:    1,
		Synchronous: false,
	}); err != nil {
		return "", classifyError(fmt.Errorf("failed to start download: %w", err))
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(downloadPollInterval):
		}

		file, err := c.client.GetFile(&tdlib.GetFileRequest{FileId: fileID})
		if err != nil {
			return "", classifyError(fmt.Errorf("failed to query download state: %w", err))
		}
		if file.Local != nil && file.Local.IsDownloadingCompleted {
			return file.Local.Path, nil
		}
	}
}

// Close shuts the TDLib client down.
func (c *TDLibClient) Close() error {
	_, err := c.client.Close()
	return err
}

// videoFileID locates the downloadable video inside a message.
func videoFileID(msg *tdlib.Message) (int32, error) {
	switch content := msg.Content.(type) {
	case *tdlib.MessageVideo:
		return content.Video.Video.Id, nil
	case *tdlib.MessageVideoNote:
		return content.VideoNote.Video.Id, nil
	case *tdlib.MessageDocument:
		return content.Document.Document.Id, nil
	default:
		return 0, fmt.Errorf("%w: message has no video content", ErrNotFound)
	}
}

// classifyError maps TDLib error strings onto the worker's error classes.
func classifyError(err error) error {
	msg := strings.ToUpper(err.Error())
	switch {
	case strings.Contains(msg, "FLOOD_WAIT") || strings.Contains(msg, "TOO MANY REQUESTS"):
		return fmt.Errorf("%w: %s", ErrFloodWait, err)
	case strings.Contains(msg, "UNAUTHORIZED") || strings.Contains(msg, "AUTH_KEY"):
		return fmt.Errorf("%w: %s", ErrUnauthorized, err)
	case strings.Contains(msg, "NOT FOUND") || strings.Contains(msg, "MESSAGE_ID_INVALID") ||
		strings.Contains(msg, "USERNAME_NOT_OCCUPIED"):
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	default:
		return err
	}
}
