package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avtodecor/newsbot/internal/media"
	"github.com/avtodecor/newsbot/internal/model"
)

// fakeStore is an in-memory PipelineStore for pipeline tests.
type fakeStore struct {
	mu       sync.Mutex
	articles []*model.Article
	images   []*model.ArticleImage
	syncs    map[string]*model.TelegramSync
	nextID   uint

	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{syncs: make(map[string]*model.TelegramSync), nextID: 1}
}

func (f *fakeStore) CreateArticle(_ context.Context, article *model.Article) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	article.ID = f.nextID
	f.nextID++
	copied := *article
	f.articles = append(f.articles, &copied)
	return nil
}

func (f *fakeStore) SaveArticle(_ context.Context, article *model.Article) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.articles {
		if a.ID == article.ID {
			copied := *article
			f.articles[i] = &copied
			return nil
		}
	}
	return nil
}

func (f *fakeStore) ArticleExistsByTitle(_ context.Context, title string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.articles {
		if a.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetPublishedArticle(_ context.Context, id uint) (*model.Article, error) {
	return nil, nil
}

func (f *fakeStore) ListPublishedArticles(_ context.Context, limit int) ([]*model.Article, error) {
	return nil, nil
}

func (f *fakeStore) AddArticleImage(_ context.Context, image *model.ArticleImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *image
	f.images = append(f.images, &copied)
	return nil
}

func (f *fakeStore) CountArticles(_ context.Context) (int64, error) {
	return int64(len(f.articles)), nil
}

func (f *fakeStore) GetPendingVideoArticles(_ context.Context, limit int) ([]*model.Article, error) {
	return nil, nil
}

func (f *fakeStore) ClaimPendingVideo(_ context.Context, id uint) (bool, error) {
	return false, nil
}

func (f *fakeStore) SetVideoStatus(_ context.Context, id uint, status model.VideoStatus) error {
	return nil
}

func (f *fakeStore) SetVideoReady(_ context.Context, id uint, localPath string) error {
	return nil
}

func (f *fakeStore) GetOrCreateSync(_ context.Context, channelID string) (*model.TelegramSync, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.syncs[channelID]; ok {
		copied := *s
		return &copied, nil
	}
	s := &model.TelegramSync{ChannelID: channelID, IsActive: true}
	f.syncs[channelID] = s
	copied := *s
	return &copied, nil
}

func (f *fakeStore) SaveSync(_ context.Context, sync *model.TelegramSync) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *sync
	f.syncs[sync.ChannelID] = &copied
	return nil
}

func (f *fakeStore) ResetSync(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.syncs[channelID]; ok {
		s.Reset()
	}
	return nil
}

func (f *fakeStore) article(title string) *model.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.articles {
		if a.Title == title {
			return a
		}
	}
	return nil
}

// fakeFetcher serves canned bytes per file_id.
type fakeFetcher struct {
	files map[string][]byte
	fail  map[string]bool
}

func (f *fakeFetcher) DownloadFile(_ context.Context, fileID string) ([]byte, string, error) {
	if f.fail[fileID] {
		return nil, "", context.DeadlineExceeded
	}
	if data, ok := f.files[fileID]; ok {
		return data, fileID + ".jpg", nil
	}
	return []byte("image"), fileID + ".jpg", nil
}

func newTestPipeline(t *testing.T, st *fakeStore, fetcher *fakeFetcher) *Pipeline {
	t.Helper()
	ms, err := media.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("media storage: %v", err)
	}
	if fetcher == nil {
		fetcher = &fakeFetcher{}
	}
	return NewPipeline(st, fetcher, ms, true)
}

func TestIngestTextPost(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, nil)

	posted := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p.Ingest(context.Background(), LogicalPost{
		ChannelID:     "avtodecor",
		MessageID:     100,
		LastMessageID: 100,
		UpdateID:      7,
		PostedAt:      &posted,
		Text:          "Оклейка капота\nЗащитная плёнка, один день работы",
	})

	a := st.article("Оклейка капота")
	if a == nil {
		t.Fatal("article not created")
	}
	if a.Content != "Защитная плёнка, один день работы" {
		t.Errorf("content = %q", a.Content)
	}
	if !a.Published {
		t.Error("auto-publish should mark the article published")
	}
	if a.Slug == "" {
		t.Error("slug should be derived from the title")
	}

	s := st.syncs["avtodecor"]
	if s == nil || s.LastMessageID != 100 || s.LastUpdateID != 7 {
		t.Errorf("cursor not advanced: %+v", s)
	}
	if s.PostsProcessed != 1 {
		t.Errorf("PostsProcessed = %d, want 1", s.PostsProcessed)
	}
}

func TestIngestAlbumAttachesPhotos(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, nil)

	p.Ingest(context.Background(), LogicalPost{
		ChannelID:     "avtodecor",
		MessageID:     200,
		LastMessageID: 201,
		Text:          "Title",
		Photos:        []Photo{{FileID: "ph1"}, {FileID: "ph2"}},
	})

	a := st.article("Title")
	if a == nil {
		t.Fatal("article not created")
	}
	if a.ImagePath == "" || !strings.HasPrefix(a.ImagePath, "articles/") {
		t.Errorf("primary image path = %q", a.ImagePath)
	}
	if len(st.images) != 1 {
		t.Fatalf("gallery images = %d, want 1", len(st.images))
	}
	if st.images[0].Order != 1 {
		t.Errorf("gallery order = %d, want 1", st.images[0].Order)
	}

	if s := st.syncs["avtodecor"]; s.LastMessageID != 201 {
		t.Errorf("cursor should advance past the whole group, got %d", s.LastMessageID)
	}
}

func TestIngestSmallVideoStoresFileID(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, nil)

	p.Ingest(context.Background(), LogicalPost{
		ChannelID:     "avtodecor",
		MessageID:     300,
		LastMessageID: 300,
		Text:          "Видеообзор",
		Videos:        []Video{{FileID: "vid1", FileSize: 5 * 1024 * 1024, MessageID: 300}},
	})

	a := st.article("Видеообзор")
	if a == nil {
		t.Fatal("article not created")
	}
	if a.VideoFileID != "vid1" {
		t.Errorf("VideoFileID = %q, want vid1", a.VideoFileID)
	}
	if a.VideoStatus != model.VideoStatusReady {
		t.Errorf("VideoStatus = %q, want ready", a.VideoStatus)
	}
	if a.TelegramMessageID != 0 {
		t.Error("small video should not carry a downloader reference")
	}
}

func TestIngestLargeVideoDefersToDownloader(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, nil)

	p.Ingest(context.Background(), LogicalPost{
		ChannelID:       "avtodecor",
		ChannelUsername: "avtodecor",
		MessageID:       400,
		LastMessageID:   400,
		Text:            "Большое видео",
		Videos:          []Video{{FileID: "big", FileSize: 25 * 1024 * 1024, MessageID: 400}},
	})

	a := st.article("Большое видео")
	if a == nil {
		t.Fatal("article not created")
	}
	if a.VideoStatus != model.VideoStatusPending {
		t.Errorf("VideoStatus = %q, want pending", a.VideoStatus)
	}
	if a.VideoFileID != "" {
		t.Error("deferred video must not store a bot file_id")
	}
	if a.TelegramChannel != "avtodecor" || a.TelegramMessageID != 400 {
		t.Errorf("downloader reference = (%q, %d)", a.TelegramChannel, a.TelegramMessageID)
	}
}

func TestIngestSizeGateBoundary(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, nil)

	p.Ingest(context.Background(), LogicalPost{
		ChannelID:       "avtodecor",
		ChannelUsername: "avtodecor",
		MessageID:       410,
		LastMessageID:   410,
		Text:            "Ровно двадцать",
		Videos:          []Video{{FileID: "edge", FileSize: MaxBotFileSize, MessageID: 410}},
	})

	a := st.article("Ровно двадцать")
	if a == nil {
		t.Fatal("article not created")
	}
	if a.VideoStatus != model.VideoStatusPending {
		t.Errorf("a video at the limit must be deferred, got status %q", a.VideoStatus)
	}
}

func TestIngestMultipleVideosSpawnSiblings(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, nil)

	p.Ingest(context.Background(), LogicalPost{
		ChannelID:     "avtodecor",
		MessageID:     500,
		LastMessageID: 502,
		Text:          "Серия",
		Videos: []Video{
			{FileID: "v1", FileSize: 1024, MessageID: 500},
			{FileID: "v2", FileSize: 1024, MessageID: 501, Caption: "вторая часть"},
			{FileID: "v3", FileSize: 30 * 1024 * 1024, MessageID: 502},
		},
	})

	if st.article("Серия") == nil {
		t.Fatal("primary article not created")
	}
	second := st.article("Серия (видео 2)")
	if second == nil {
		t.Fatal("sibling for second video not created")
	}
	if second.Content != "вторая часть" {
		t.Errorf("sibling content = %q, want caption", second.Content)
	}
	if second.VideoFileID != "v2" {
		t.Errorf("sibling VideoFileID = %q", second.VideoFileID)
	}
	third := st.article("Серия (видео 3)")
	if third == nil {
		t.Fatal("sibling for third video not created")
	}
	if third.VideoStatus != model.VideoStatusPending {
		t.Errorf("large sibling video should be pending, got %q", third.VideoStatus)
	}
}

func TestIngestDuplicateTitleStillAdvancesCursor(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, nil)

	post := LogicalPost{
		ChannelID:     "avtodecor",
		MessageID:     600,
		LastMessageID: 600,
		Text:          "Повтор",
	}
	p.Ingest(context.Background(), post)

	post.MessageID = 601
	post.LastMessageID = 601
	p.Ingest(context.Background(), post)

	count := 0
	for _, a := range st.articles {
		if a.Title == "Повтор" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("duplicate title created %d articles, want 1", count)
	}
	if s := st.syncs["avtodecor"]; s.LastMessageID != 601 {
		t.Errorf("cursor = %d, want 601 after a skipped duplicate", s.LastMessageID)
	}
}

func TestIngestEmptyPostAdvancesCursor(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, nil)

	p.Ingest(context.Background(), LogicalPost{
		ChannelID:     "avtodecor",
		MessageID:     700,
		LastMessageID: 700,
	})

	if len(st.articles) != 0 {
		t.Errorf("empty post created %d articles", len(st.articles))
	}
	if s := st.syncs["avtodecor"]; s == nil || s.LastMessageID != 700 {
		t.Error("cursor must advance past an empty post")
	}
}

func TestIngestManualImportSkipsCursor(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, nil)

	p.Ingest(context.Background(), LogicalPost{
		ChannelUsername: "other_channel",
		MessageID:       42,
		LastMessageID:   42,
		Text:            "Импорт",
		Manual:          true,
	})

	if st.article("Импорт") == nil {
		t.Fatal("manual import should still create an article")
	}
	if len(st.syncs) != 0 {
		t.Error("manual import must not touch sync cursors")
	}
}

func TestIngestPhotoDownloadFailureIsTolerated(t *testing.T) {
	st := newFakeStore()
	fetcher := &fakeFetcher{fail: map[string]bool{"bad": true}}
	p := newTestPipeline(t, st, fetcher)

	p.Ingest(context.Background(), LogicalPost{
		ChannelID:     "avtodecor",
		MessageID:     800,
		LastMessageID: 800,
		Text:          "Частичный альбом",
		Photos:        []Photo{{FileID: "bad"}, {FileID: "ok"}},
	})

	a := st.article("Частичный альбом")
	if a == nil {
		t.Fatal("article not created")
	}
	if a.ImagePath != "" {
		t.Error("failed primary photo must not set ImagePath")
	}
	if len(st.images) != 1 {
		t.Errorf("gallery images = %d, want 1", len(st.images))
	}
	if s := st.syncs["avtodecor"]; s.LastMessageID != 800 {
		t.Error("cursor must advance despite photo failures")
	}
}
