package store

import (
	"context"
	"time"

	"github.com/avtodecor/newsbot/internal/model"
)

// ArticleStore persists articles and their gallery images
type ArticleStore interface {
	CreateArticle(ctx context.Context, article *model.Article) error
	SaveArticle(ctx context.Context, article *model.Article) error
	ArticleExistsByTitle(ctx context.Context, title string) (bool, error)
	GetPublishedArticle(ctx context.Context, id uint) (*model.Article, error)
	ListPublishedArticles(ctx context.Context, limit int) ([]*model.Article, error)
	AddArticleImage(ctx context.Context, image *model.ArticleImage) error
	CountArticles(ctx context.Context) (int64, error)

	// Video lifecycle, shared between the ingestion worker (sets pending)
	// and the downloader worker (pending -> downloading -> ready/error).
	GetPendingVideoArticles(ctx context.Context, limit int) ([]*model.Article, error)
	ClaimPendingVideo(ctx context.Context, id uint) (bool, error)
	SetVideoStatus(ctx context.Context, id uint, status model.VideoStatus) error
	SetVideoReady(ctx context.Context, id uint, localPath string) error
}

// SyncStore persists per-channel synchronization cursors
type SyncStore interface {
	GetOrCreateSync(ctx context.Context, channelID string) (*model.TelegramSync, error)
	SaveSync(ctx context.Context, sync *model.TelegramSync) error
	ResetSync(ctx context.Context, channelID string) error
}

// SubscriberStore persists lead-notification subscribers
type SubscriberStore interface {
	AddSubscriber(ctx context.Context, chatID int64, chatType string) (bool, error)
	RemoveSubscriber(ctx context.Context, chatID int64) (bool, error)
	IsSubscribed(ctx context.Context, chatID int64) (bool, error)
	ListSubscribers(ctx context.Context) ([]int64, error)
	CountSubscribers(ctx context.Context) (int64, error)
}

// MediaGroupStore stages raw media-group members until the settle window
// elapses. Staged rows survive a worker restart mid-group.
type MediaGroupStore interface {
	AddMediaGroupPart(ctx context.Context, part *model.MediaGroupPart) error
	GetMediaGroupParts(ctx context.Context, groupID string) ([]*model.MediaGroupPart, error)
	DeleteMediaGroupParts(ctx context.Context, groupID string) error
	ListStaleMediaGroups(ctx context.Context, olderThan time.Time) ([]string, error)
}

// Store defines the interface for data persistence operations
type Store interface {
	ArticleStore
	SyncStore
	SubscriberStore
	MediaGroupStore

	Ping(ctx context.Context) error
	Close() error
}
