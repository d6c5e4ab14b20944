package model

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// VideoStatus tracks the lifecycle of an article's video attachment
type VideoStatus string

const (
	// VideoStatusNone means the article carries no video at all
	VideoStatusNone VideoStatus = ""
	// VideoStatusReady means the video is servable (local file or file_id)
	VideoStatusReady VideoStatus = "ready"
	// VideoStatusPending means the video is queued for the session downloader
	VideoStatusPending VideoStatus = "pending"
	// VideoStatusDownloading means a downloader instance has claimed the video
	VideoStatusDownloading VideoStatus = "downloading"
	// VideoStatusError means the download failed permanently
	VideoStatusError VideoStatus = "error"
)

// Article represents a news article created from a Telegram channel post
type Article struct {
	ID        uint   `gorm:"primaryKey"`
	Title     string `gorm:"size:255;uniqueIndex;not null"`
	Slug      string `gorm:"size:255;uniqueIndex"`
	Content   string `gorm:"type:text"`
	ImagePath string `gorm:"size:500"`

	// Video source. At most one of VideoFile / VideoFileID / the pending
	// Telegram reference is authoritative at a time, see VideoSource().
	VideoFile   string      `gorm:"size:500"`
	VideoFileID string      `gorm:"size:500;column:video_file_id"`
	VideoStatus VideoStatus `gorm:"size:20;index"`

	// Origin of a deferred (pending) video, read by the session downloader.
	TelegramChannel   string `gorm:"size:255"`
	TelegramMessageID int64  `gorm:"default:0"`

	Published bool `gorm:"default:false;index"`
	Views     uint `gorm:"default:0"`

	Images []ArticleImage `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for Article
func (Article) TableName() string {
	return "articles"
}

// VideoSourceKind discriminates the tagged VideoSource variant
type VideoSourceKind int

const (
	VideoSourceNone VideoSourceKind = iota
	// VideoSourceLocalFile is a video stored under the media root
	VideoSourceLocalFile
	// VideoSourceTelegramRef is a bot-downloadable file_id served by the proxy
	VideoSourceTelegramRef
	// VideoSourcePendingRef is a channel+message reference awaiting download
	VideoSourcePendingRef
)

// VideoSource is the resolved video reference of an article
type VideoSource struct {
	Kind      VideoSourceKind
	Path      string // local file, relative to the media root
	FileID    string // Telegram file_id
	Channel   string // pending reference
	MessageID int64  // pending reference
}

// VideoSource resolves which of the overlapping video fields is authoritative.
// A local file always wins over a stored file_id.
func (a *Article) VideoSource() VideoSource {
	switch {
	case a.VideoFile != "":
		return VideoSource{Kind: VideoSourceLocalFile, Path: a.VideoFile}
	case a.VideoFileID != "":
		return VideoSource{Kind: VideoSourceTelegramRef, FileID: a.VideoFileID}
	case a.VideoStatus == VideoStatusPending || a.VideoStatus == VideoStatusDownloading:
		return VideoSource{
			Kind:      VideoSourcePendingRef,
			Channel:   a.TelegramChannel,
			MessageID: a.TelegramMessageID,
		}
	default:
		return VideoSource{Kind: VideoSourceNone}
	}
}

// HasVideo reports whether the article carries any video source
func (a *Article) HasVideo() bool {
	return a.VideoSource().Kind != VideoSourceNone
}

// PlainText strips HTML from the content for list previews, truncated to
// maxLength runes with an ellipsis.
func (a *Article) PlainText(maxLength int) string {
	text := a.Content
	if strings.Contains(text, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			text = doc.Text()
		}
	}
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if maxLength > 0 && len(runes) > maxLength {
		return string(runes[:maxLength]) + "..."
	}
	return text
}
