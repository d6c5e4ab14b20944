// Package ingest turns Telegram channel posts into catalog articles:
// a media-group aggregator reassembles albums into logical posts and the
// pipeline derives titles, suppresses duplicates and attaches media.
package ingest

import (
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Photo is one photo of a logical post, already reduced to the
// highest-resolution variant Telegram offered.
type Photo struct {
	FileID   string
	FileSize int
	Width    int
	Height   int
}

// Video is one video (or video note) of a logical post. MessageID is kept
// per video: a deferred download needs the exact message carrying it.
type Video struct {
	FileID      string
	FileSize    int
	MessageID   int64
	Caption     string
	IsVideoNote bool
}

// LogicalPost is one channel post after media-group flattening: the
// canonical text plus every photo and video across all group members.
type LogicalPost struct {
	// ChannelID is the sync cursor key: the configured channel identifier.
	ChannelID string
	// ChannelUsername is the @-less channel username, stored with deferred
	// videos so the session downloader can resolve the message.
	ChannelUsername string

	// MessageID identifies the first message of the post; LastMessageID is
	// the highest member id, used to advance the cursor past the whole group.
	MessageID     int64
	LastMessageID int64
	UpdateID      int64
	PostedAt      *time.Time

	Text   string
	Photos []Photo
	Videos []Video

	// Manual marks posts from the forwarded-message import flow, which
	// bypasses the sync cursor. Title dedup is the only guard there.
	Manual bool
}

// IsEmpty reports whether the post carries neither text nor media
func (p *LogicalPost) IsEmpty() bool {
	return p.Text == "" && len(p.Photos) == 0 && len(p.Videos) == 0
}

// messageText returns the text of a message, falling back to its caption
func messageText(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

// bestPhoto selects the highest-resolution variant of a photo message
func bestPhoto(sizes []tgbotapi.PhotoSize) (Photo, bool) {
	if len(sizes) == 0 {
		return Photo{}, false
	}
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.FileSize > best.FileSize {
			best = s
		}
	}
	return Photo{
		FileID:   best.FileID,
		FileSize: best.FileSize,
		Width:    best.Width,
		Height:   best.Height,
	}, true
}

// messageMedia extracts the photo and video content of one raw message
func messageMedia(msg *tgbotapi.Message) (photos []Photo, videos []Video) {
	if photo, ok := bestPhoto(msg.Photo); ok {
		photos = append(photos, photo)
	}
	if msg.Video != nil {
		videos = append(videos, Video{
			FileID:    msg.Video.FileID,
			FileSize:  msg.Video.FileSize,
			MessageID: int64(msg.MessageID),
			Caption:   msg.Caption,
		})
	}
	if msg.VideoNote != nil {
		videos = append(videos, Video{
			FileID:      msg.VideoNote.FileID,
			FileSize:    msg.VideoNote.FileSize,
			MessageID:   int64(msg.MessageID),
			Caption:     msg.Caption,
			IsVideoNote: true,
		})
	}
	return photos, videos
}

// postFromMessage builds a logical post from a single (non-grouped) message
func postFromMessage(msg *tgbotapi.Message, channelID string, updateID int64) LogicalPost {
	post := LogicalPost{
		ChannelID:       channelID,
		ChannelUsername: channelUsername(msg),
		MessageID:       int64(msg.MessageID),
		LastMessageID:   int64(msg.MessageID),
		UpdateID:        updateID,
		PostedAt:        messageDate(msg),
		Text:            messageText(msg),
	}
	post.Photos, post.Videos = messageMedia(msg)
	return post
}

// flattenGroup combines the buffered members of a media group into one
// logical post: the first non-empty text wins, every photo and video is
// included once, in arrival order.
func flattenGroup(msgs []*tgbotapi.Message, updateIDs []int64, channelID string) LogicalPost {
	post := LogicalPost{ChannelID: channelID}

	for i, msg := range msgs {
		if i == 0 {
			post.ChannelUsername = channelUsername(msg)
			post.MessageID = int64(msg.MessageID)
			post.PostedAt = messageDate(msg)
		}
		if int64(msg.MessageID) > post.LastMessageID {
			post.LastMessageID = int64(msg.MessageID)
		}
		if i < len(updateIDs) && updateIDs[i] > post.UpdateID {
			post.UpdateID = updateIDs[i]
		}
		if post.Text == "" {
			post.Text = messageText(msg)
		}
		photos, videos := messageMedia(msg)
		post.Photos = append(post.Photos, photos...)
		post.Videos = append(post.Videos, videos...)
	}
	return post
}

func channelUsername(msg *tgbotapi.Message) string {
	if msg.ForwardFromChat != nil && msg.ForwardFromChat.UserName != "" {
		return msg.ForwardFromChat.UserName
	}
	if msg.Chat != nil && msg.Chat.UserName != "" {
		return msg.Chat.UserName
	}
	return ""
}

func messageDate(msg *tgbotapi.Message) *time.Time {
	if msg.Date == 0 {
		return nil
	}
	t := time.Unix(int64(msg.Date), 0)
	return &t
}

// stripAt removes a leading @ from a channel identifier
func stripAt(channel string) string {
	return strings.TrimPrefix(channel, "@")
}
