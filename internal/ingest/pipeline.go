package ingest

import (
	"context"
	"fmt"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"

	"github.com/avtodecor/newsbot/internal/media"
	"github.com/avtodecor/newsbot/internal/model"
	"github.com/avtodecor/newsbot/internal/server"
	"github.com/avtodecor/newsbot/internal/store"
)

// MaxBotFileSize is the Bot API download ceiling. Videos at or above it
// cannot be fetched with the bot token and are deferred to the session
// downloader.
const MaxBotFileSize = 20 * 1024 * 1024

// MediaFetcher resolves a Telegram file_id to raw content via the Bot API
type MediaFetcher interface {
	DownloadFile(ctx context.Context, fileID string) (data []byte, filename string, err error)
}

// PipelineStore is the persistence surface the pipeline writes through
type PipelineStore interface {
	store.ArticleStore
	store.SyncStore
}

// Pipeline turns logical posts into catalog articles
type Pipeline struct {
	store       PipelineStore
	fetcher     MediaFetcher
	media       *media.Storage
	autoPublish bool
}

// NewPipeline creates an ingestion pipeline
func NewPipeline(store PipelineStore, fetcher MediaFetcher, media *media.Storage, autoPublish bool) *Pipeline {
	return &Pipeline{
		store:       store,
		fetcher:     fetcher,
		media:       media,
		autoPublish: autoPublish,
	}
}

// Ingest processes one logical post. Per-post failures are logged, never
// propagated: the sync cursor is advanced after the processing attempt
// completes either way, so the post is not retried.
func (p *Pipeline) Ingest(ctx context.Context, post LogicalPost) {
	if err := p.process(ctx, &post); err != nil {
		log.Error().
			Err(err).
			Str("channel", post.ChannelID).
			Int64("messageID", post.MessageID).
			Msg("Failed to process post")
		server.RecordIngest("error")
	}
	p.advance(ctx, &post)
}

func (p *Pipeline) process(ctx context.Context, post *LogicalPost) error {
	if post.IsEmpty() {
		log.Warn().Int64("messageID", post.MessageID).Msg("Post has no text and no media, skipping")
		server.RecordIngest("empty")
		return nil
	}

	title, content := DeriveTitleContent(post)

	exists, err := p.store.ArticleExistsByTitle(ctx, title)
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		log.Info().
			Int64("messageID", post.MessageID).
			Str("title", truncateRunes(title, 40)).
			Msg("Article already exists, skipping")
		server.RecordIngest("duplicate")
		return nil
	}

	log.Info().
		Int64("messageID", post.MessageID).
		Str("title", truncateRunes(title, 50)).
		Int("photos", len(post.Photos)).
		Int("videos", len(post.Videos)).
		Msg("New channel post")

	article := &model.Article{
		Title:     title,
		Slug:      slug.Make(title),
		Content:   content,
		Published: p.autoPublish,
	}

	// Video-first rule: the first video belongs to the primary article,
	// every further one spawns a sibling article.
	if len(post.Videos) > 0 {
		p.placeVideo(article, post, &post.Videos[0])
	}

	if err := p.store.CreateArticle(ctx, article); err != nil {
		return fmt.Errorf("create article: %w", err)
	}
	log.Info().Str("slug", article.Slug).Msg("Article created")
	server.RecordIngest("created")
	if count, err := p.store.CountArticles(ctx); err == nil {
		server.UpdateArticleCount(count)
	}

	for i := 1; i < len(post.Videos); i++ {
		if err := p.createSibling(ctx, title, post, i); err != nil {
			log.Error().Err(err).Int("video", i+1).Msg("Failed to create sibling article")
		}
	}

	p.attachPhotos(ctx, article, post.Photos)
	return nil
}

// placeVideo applies the size gate: small videos are stored by file_id and
// served through the streaming proxy, large ones are deferred to the
// session downloader as pending.
func (p *Pipeline) placeVideo(article *model.Article, post *LogicalPost, video *Video) {
	if video.FileSize >= MaxBotFileSize {
		article.VideoStatus = model.VideoStatusPending
		article.TelegramChannel = stripAt(post.ChannelUsername)
		article.TelegramMessageID = video.MessageID
		log.Info().
			Int64("messageID", video.MessageID).
			Int("sizeMB", video.FileSize/(1024*1024)).
			Msg("Video deferred to session downloader")
	} else {
		article.VideoFileID = video.FileID
		article.VideoStatus = model.VideoStatusReady
	}
}

func (p *Pipeline) createSibling(ctx context.Context, baseTitle string, post *LogicalPost, index int) error {
	video := &post.Videos[index]
	title := siblingTitle(baseTitle, index)

	exists, err := p.store.ArticleExistsByTitle(ctx, title)
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		log.Info().Str("title", title).Msg("Sibling article already exists, skipping")
		return nil
	}

	article := &model.Article{
		Title:     title,
		Slug:      slug.Make(title),
		Content:   siblingContent(video.Caption, index),
		Published: p.autoPublish,
	}
	p.placeVideo(article, post, video)

	if err := p.store.CreateArticle(ctx, article); err != nil {
		return fmt.Errorf("create sibling article: %w", err)
	}
	log.Info().Str("slug", article.Slug).Msg("Sibling article created")
	return nil
}

// attachPhotos downloads each photo and attaches the first as the primary
// image, the rest as ordered gallery entries. Individual photo failures
// are logged and skipped.
func (p *Pipeline) attachPhotos(ctx context.Context, article *model.Article, photos []Photo) {
	saved := 0
	for i, photo := range photos {
		data, _, err := p.fetcher.DownloadFile(ctx, photo.FileID)
		if err != nil {
			log.Error().Err(err).Int("photo", i+1).Msg("Failed to download photo")
			continue
		}

		if i == 0 {
			rel, err := p.media.SavePrimaryImage(article.Slug, data)
			if err != nil {
				log.Error().Err(err).Msg("Failed to save primary image")
				continue
			}
			article.ImagePath = rel
			if err := p.store.SaveArticle(ctx, article); err != nil {
				log.Error().Err(err).Msg("Failed to attach primary image")
				continue
			}
		} else {
			rel, err := p.media.SaveGalleryImage(article.Slug, i, data)
			if err != nil {
				log.Error().Err(err).Int("photo", i+1).Msg("Failed to save gallery image")
				continue
			}
			image := &model.ArticleImage{
				ArticleID: article.ID,
				ImagePath: rel,
				Order:     i,
			}
			if err := p.store.AddArticleImage(ctx, image); err != nil {
				log.Error().Err(err).Int("photo", i+1).Msg("Failed to attach gallery image")
				continue
			}
		}
		saved++
	}

	if len(photos) > 0 {
		log.Info().Int("saved", saved).Int("total", len(photos)).Msg("Photos attached")
	}
}

// advance raises the channel's sync cursor past this post. Manual imports
// carry no cursor.
func (p *Pipeline) advance(ctx context.Context, post *LogicalPost) {
	if post.Manual {
		return
	}

	sync, err := p.store.GetOrCreateSync(ctx, post.ChannelID)
	if err != nil {
		log.Error().Err(err).Str("channel", post.ChannelID).Msg("Failed to load sync cursor")
		return
	}

	sync.Advance(post.LastMessageID, post.PostedAt, post.UpdateID)
	if err := p.store.SaveSync(ctx, sync); err != nil {
		log.Error().Err(err).Str("channel", post.ChannelID).Msg("Failed to save sync cursor")
	}
}
