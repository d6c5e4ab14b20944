package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avtodecor/newsbot/internal/config"
	"github.com/avtodecor/newsbot/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLStore implements Store interface using MySQL database
type MySQLStore struct {
	db *gorm.DB
}

// NewMySQLStore creates a new MySQL store instance
func NewMySQLStore(cfg *config.DBConfig) (*MySQLStore, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MaxConns / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Auto migrate tables
	if err := db.AutoMigrate(
		&model.Article{},
		&model.ArticleImage{},
		&model.TelegramSync{},
		&model.Subscriber{},
		&model.MediaGroupPart{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &MySQLStore{db: db}, nil
}

// CreateArticle inserts a new article, fixing up the slug when it collides
// with an existing one.
func (s *MySQLStore) CreateArticle(ctx context.Context, article *model.Article) error {
	if article.Slug == "" {
		article.Slug = fmt.Sprintf("article-%d", time.Now().Unix())
	}

	base := article.Slug
	var collision int64
	if err := s.db.WithContext(ctx).
		Model(&model.Article{}).
		Where("slug = ?", base).
		Count(&collision).Error; err != nil {
		return fmt.Errorf("failed to check slug: %w", err)
	}
	if collision > 0 {
		// The final suffix is the row id, unknown until insert, so park
		// the row on a throwaway unique slug first.
		article.Slug = fmt.Sprintf("%s-%d", base, time.Now().UnixNano())
	}

	if err := s.db.WithContext(ctx).Create(article).Error; err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}

	if collision > 0 {
		article.Slug = fmt.Sprintf("%s-%d", base, article.ID)
		if err := s.db.WithContext(ctx).
			Model(article).
			Update("slug", article.Slug).Error; err != nil {
			return fmt.Errorf("failed to deduplicate slug: %w", err)
		}
	}
	return nil
}

// SaveArticle persists all fields of an existing article
func (s *MySQLStore) SaveArticle(ctx context.Context, article *model.Article) error {
	if err := s.db.WithContext(ctx).Save(article).Error; err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}
	return nil
}

// ArticleExistsByTitle checks duplicate suppression by exact title match
func (s *MySQLStore) ArticleExistsByTitle(ctx context.Context, title string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Article{}).
		Where("title = ?", title).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check article title: %w", err)
	}
	return count > 0, nil
}

// GetPublishedArticle fetches a published article by id, nil when absent
func (s *MySQLStore) GetPublishedArticle(ctx context.Context, id uint) (*model.Article, error) {
	var article model.Article
	result := s.db.WithContext(ctx).
		Where("id = ? AND published = ?", id, true).
		First(&article)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get article: %w", result.Error)
	}
	return &article, nil
}

// ListPublishedArticles returns the newest published articles
func (s *MySQLStore) ListPublishedArticles(ctx context.Context, limit int) ([]*model.Article, error) {
	var articles []*model.Article
	if err := s.db.WithContext(ctx).
		Where("published = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

// AddArticleImage appends a gallery image to an article
func (s *MySQLStore) AddArticleImage(ctx context.Context, image *model.ArticleImage) error {
	if err := s.db.WithContext(ctx).Create(image).Error; err != nil {
		return fmt.Errorf("failed to add article image: %w", err)
	}
	return nil
}

// CountArticles returns the total count of articles
func (s *MySQLStore) CountArticles(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Article{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

// GetPendingVideoArticles lists articles waiting for the session downloader,
// oldest first, only those carrying a usable Telegram origin reference.
func (s *MySQLStore) GetPendingVideoArticles(ctx context.Context, limit int) ([]*model.Article, error) {
	var articles []*model.Article
	result := s.db.WithContext(ctx).
		Where("video_status = ? AND telegram_channel <> '' AND telegram_message_id > 0",
			model.VideoStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&articles)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get pending videos: %w", result.Error)
	}
	return articles, nil
}

// ClaimPendingVideo transitions pending -> downloading only if the row is
// still pending, so two downloader instances never claim the same article.
func (s *MySQLStore) ClaimPendingVideo(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Article{}).
		Where("id = ? AND video_status = ?", id, model.VideoStatusPending).
		Update("video_status", model.VideoStatusDownloading)
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim pending video: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// SetVideoStatus updates the video status of an article
func (s *MySQLStore) SetVideoStatus(ctx context.Context, id uint, status model.VideoStatus) error {
	result := s.db.WithContext(ctx).
		Model(&model.Article{}).
		Where("id = ?", id).
		Update("video_status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to set video status: %w", result.Error)
	}
	return nil
}

// SetVideoReady attaches the downloaded local file and completes the
// video lifecycle for an article.
func (s *MySQLStore) SetVideoReady(ctx context.Context, id uint, localPath string) error {
	result := s.db.WithContext(ctx).
		Model(&model.Article{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"video_file":   localPath,
			"video_status": model.VideoStatusReady,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set video ready: %w", result.Error)
	}
	return nil
}

// GetOrCreateSync fetches the sync cursor for a channel, creating an empty
// active cursor on first sight.
func (s *MySQLStore) GetOrCreateSync(ctx context.Context, channelID string) (*model.TelegramSync, error) {
	var sync model.TelegramSync
	result := s.db.WithContext(ctx).
		Where(model.TelegramSync{ChannelID: channelID}).
		Attrs(model.TelegramSync{IsActive: true}).
		FirstOrCreate(&sync)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get or create sync: %w", result.Error)
	}
	return &sync, nil
}

// SaveSync persists a mutated sync cursor
func (s *MySQLStore) SaveSync(ctx context.Context, sync *model.TelegramSync) error {
	if err := s.db.WithContext(ctx).Save(sync).Error; err != nil {
		return fmt.Errorf("failed to save sync: %w", err)
	}
	return nil
}

// ResetSync zeroes a channel cursor so the channel is reprocessed
func (s *MySQLStore) ResetSync(ctx context.Context, channelID string) error {
	result := s.db.WithContext(ctx).
		Model(&model.TelegramSync{}).
		Where("channel_id = ?", channelID).
		Updates(map[string]interface{}{
			"last_message_id": 0,
			"last_post_date":  nil,
			"last_update_id":  0,
			"posts_processed": 0,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reset sync: %w", result.Error)
	}
	return nil
}

// AddSubscriber registers a chat for lead notifications.
// Returns true when the chat was not subscribed before.
func (s *MySQLStore) AddSubscriber(ctx context.Context, chatID int64, chatType string) (bool, error) {
	var existing model.Subscriber
	result := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&existing)
	if result.Error == nil {
		return false, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to check subscriber: %w", result.Error)
	}

	sub := model.Subscriber{ChatID: chatID, ChatType: chatType}
	if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return false, fmt.Errorf("failed to add subscriber: %w", err)
	}
	return true, nil
}

// RemoveSubscriber unsubscribes a chat. Returns true when it was subscribed.
func (s *MySQLStore) RemoveSubscriber(ctx context.Context, chatID int64) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&model.Subscriber{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to remove subscriber: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// IsSubscribed checks whether a chat receives lead notifications
func (s *MySQLStore) IsSubscribed(ctx context.Context, chatID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Subscriber{}).
		Where("chat_id = ?", chatID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}
	return count > 0, nil
}

// ListSubscribers returns all subscribed chat ids
func (s *MySQLStore) ListSubscribers(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).
		Model(&model.Subscriber{}).
		Order("chat_id ASC").
		Pluck("chat_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return ids, nil
}

// CountSubscribers returns the number of subscribed chats
func (s *MySQLStore) CountSubscribers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Subscriber{}).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return count, nil
}

// AddMediaGroupPart stages one raw member of a media group
func (s *MySQLStore) AddMediaGroupPart(ctx context.Context, part *model.MediaGroupPart) error {
	if err := s.db.WithContext(ctx).Create(part).Error; err != nil {
		return fmt.Errorf("failed to stage media group part: %w", err)
	}
	return nil
}

// GetMediaGroupParts returns the staged members of a group in arrival order
func (s *MySQLStore) GetMediaGroupParts(ctx context.Context, groupID string) ([]*model.MediaGroupPart, error) {
	var parts []*model.MediaGroupPart
	result := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("id ASC").
		Find(&parts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get media group parts: %w", result.Error)
	}
	return parts, nil
}

// DeleteMediaGroupParts drops the staged members of a flattened group
func (s *MySQLStore) DeleteMediaGroupParts(ctx context.Context, groupID string) error {
	result := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Delete(&model.MediaGroupPart{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete media group parts: %w", result.Error)
	}
	return nil
}

// ListStaleMediaGroups returns group ids whose newest staged part is older
// than the given time. Used on startup to flatten groups interrupted by a
// restart.
func (s *MySQLStore) ListStaleMediaGroups(ctx context.Context, olderThan time.Time) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&model.MediaGroupPart{}).
		Select("group_id").
		Group("group_id").
		Having("MAX(received_at) < ?", olderThan).
		Pluck("group_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale media groups: %w", err)
	}
	return ids, nil
}

// Ping checks database connectivity
func (s *MySQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying db: %w", err)
	}
	return sqlDB.Close()
}

// DB returns the underlying gorm.DB instance (for testing purposes)
func (s *MySQLStore) DB() *gorm.DB {
	return s.db
}
