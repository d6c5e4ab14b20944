package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/avtodecor/newsbot/internal/config"
	"github.com/avtodecor/newsbot/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestStore connects to a real MySQL database, skipping when none is
// reachable.
func setupTestStore(t *testing.T) (*MySQLStore, func()) {
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("TEST_DB_USER")
	if user == "" {
		user = "root"
	}
	password := os.Getenv("TEST_DB_PASSWORD")
	if password == "" {
		password = "root"
	}
	database := os.Getenv("TEST_DB_NAME")
	if database == "" {
		database = "avtodecor_test"
	}

	cfg := &config.DBConfig{
		Host:     host,
		Port:     3306,
		User:     user,
		Password: password,
		Database: database,
		MaxConns: 5,
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("Skipping test: cannot connect to MySQL: %v", err)
	}

	db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database))
	sqlDB, _ := db.DB()
	sqlDB.Close()

	store, err := NewMySQLStore(cfg)
	if err != nil {
		t.Skipf("Skipping test: cannot create store: %v", err)
	}

	cleanup := func() {
		store.db.Exec("DELETE FROM article_images")
		store.db.Exec("DELETE FROM articles")
		store.db.Exec("DELETE FROM telegram_sync")
		store.db.Exec("DELETE FROM subscribers")
		store.db.Exec("DELETE FROM media_group_parts")
		store.Close()
	}

	return store, cleanup
}

func TestCreateArticle_SlugCollision(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	first := &model.Article{Title: "Новость", Slug: "novost", Content: "a"}
	if err := store.CreateArticle(ctx, first); err != nil {
		t.Fatalf("CreateArticle() error = %v", err)
	}

	second := &model.Article{Title: "Новость 2", Slug: "novost", Content: "b"}
	if err := store.CreateArticle(ctx, second); err != nil {
		t.Fatalf("CreateArticle() second error = %v", err)
	}

	if second.Slug == first.Slug {
		t.Errorf("slug collision not resolved: both %q", second.Slug)
	}
}

func TestArticleExistsByTitle(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	article := &model.Article{Title: "Уникальный заголовок", Slug: "unikalnyj"}
	if err := store.CreateArticle(ctx, article); err != nil {
		t.Fatalf("CreateArticle() error = %v", err)
	}

	exists, err := store.ArticleExistsByTitle(ctx, "Уникальный заголовок")
	if err != nil {
		t.Fatalf("ArticleExistsByTitle() error = %v", err)
	}
	if !exists {
		t.Error("ArticleExistsByTitle() = false, want true")
	}

	exists, err = store.ArticleExistsByTitle(ctx, "Другой заголовок")
	if err != nil {
		t.Fatalf("ArticleExistsByTitle() error = %v", err)
	}
	if exists {
		t.Error("ArticleExistsByTitle() = true for absent title")
	}
}

func TestClaimPendingVideo_OnlyOnce(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	article := &model.Article{
		Title:             "Видео",
		Slug:              "video",
		VideoStatus:       model.VideoStatusPending,
		TelegramChannel:   "avto_decor_news",
		TelegramMessageID: 10,
	}
	if err := store.CreateArticle(ctx, article); err != nil {
		t.Fatalf("CreateArticle() error = %v", err)
	}

	claimed, err := store.ClaimPendingVideo(ctx, article.ID)
	if err != nil {
		t.Fatalf("ClaimPendingVideo() error = %v", err)
	}
	if !claimed {
		t.Fatal("first claim failed")
	}

	claimed, err = store.ClaimPendingVideo(ctx, article.ID)
	if err != nil {
		t.Fatalf("ClaimPendingVideo() second error = %v", err)
	}
	if claimed {
		t.Error("second claim succeeded, want conditional update to fail")
	}
}

func TestGetOrCreateSync_Idempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	first, err := store.GetOrCreateSync(ctx, "@avto_decor_news")
	if err != nil {
		t.Fatalf("GetOrCreateSync() error = %v", err)
	}
	if !first.IsActive {
		t.Error("new sync cursor should be active")
	}

	first.Advance(5, nil, 100)
	if err := store.SaveSync(ctx, first); err != nil {
		t.Fatalf("SaveSync() error = %v", err)
	}

	second, err := store.GetOrCreateSync(ctx, "@avto_decor_news")
	if err != nil {
		t.Fatalf("GetOrCreateSync() second error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("GetOrCreateSync created a duplicate row: %d vs %d", second.ID, first.ID)
	}
	if second.LastMessageID != 5 || second.LastUpdateID != 100 {
		t.Errorf("cursor not persisted: %+v", second)
	}
}

func TestResetSync(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	sync, err := store.GetOrCreateSync(ctx, "@chan")
	if err != nil {
		t.Fatalf("GetOrCreateSync() error = %v", err)
	}
	now := time.Now()
	sync.Advance(7, &now, 3)
	if err := store.SaveSync(ctx, sync); err != nil {
		t.Fatalf("SaveSync() error = %v", err)
	}

	if err := store.ResetSync(ctx, "@chan"); err != nil {
		t.Fatalf("ResetSync() error = %v", err)
	}

	sync, err = store.GetOrCreateSync(ctx, "@chan")
	if err != nil {
		t.Fatalf("GetOrCreateSync() error = %v", err)
	}
	if sync.LastMessageID != 0 || sync.LastUpdateID != 0 || sync.PostsProcessed != 0 || sync.LastPostDate != nil {
		t.Errorf("ResetSync left fields set: %+v", sync)
	}
}

func TestSubscribers(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	added, err := store.AddSubscriber(ctx, 100, "private")
	if err != nil {
		t.Fatalf("AddSubscriber() error = %v", err)
	}
	if !added {
		t.Error("AddSubscriber() = false for new chat")
	}

	added, err = store.AddSubscriber(ctx, 100, "private")
	if err != nil {
		t.Fatalf("AddSubscriber() second error = %v", err)
	}
	if added {
		t.Error("AddSubscriber() = true for existing chat")
	}

	subscribed, err := store.IsSubscribed(ctx, 100)
	if err != nil {
		t.Fatalf("IsSubscribed() error = %v", err)
	}
	if !subscribed {
		t.Error("IsSubscribed() = false, want true")
	}

	removed, err := store.RemoveSubscriber(ctx, 100)
	if err != nil {
		t.Fatalf("RemoveSubscriber() error = %v", err)
	}
	if !removed {
		t.Error("RemoveSubscriber() = false, want true")
	}

	removed, err = store.RemoveSubscriber(ctx, 100)
	if err != nil {
		t.Fatalf("RemoveSubscriber() second error = %v", err)
	}
	if removed {
		t.Error("RemoveSubscriber() = true for absent chat")
	}
}

func TestMediaGroupStaging(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	old := time.Now().Add(-time.Minute)
	for i := int64(1); i <= 2; i++ {
		part := &model.MediaGroupPart{
			GroupID:    "g1",
			ChannelID:  "@chan",
			MessageID:  i,
			Payload:    []byte(`{}`),
			ReceivedAt: old,
		}
		if err := store.AddMediaGroupPart(ctx, part); err != nil {
			t.Fatalf("AddMediaGroupPart() error = %v", err)
		}
	}

	parts, err := store.GetMediaGroupParts(ctx, "g1")
	if err != nil {
		t.Fatalf("GetMediaGroupParts() error = %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if parts[0].MessageID != 1 || parts[1].MessageID != 2 {
		t.Error("parts not in arrival order")
	}

	stale, err := store.ListStaleMediaGroups(ctx, time.Now())
	if err != nil {
		t.Fatalf("ListStaleMediaGroups() error = %v", err)
	}
	if len(stale) != 1 || stale[0] != "g1" {
		t.Errorf("ListStaleMediaGroups() = %v, want [g1]", stale)
	}

	if err := store.DeleteMediaGroupParts(ctx, "g1"); err != nil {
		t.Fatalf("DeleteMediaGroupParts() error = %v", err)
	}
	parts, err = store.GetMediaGroupParts(ctx, "g1")
	if err != nil {
		t.Fatalf("GetMediaGroupParts() error = %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("got %d parts after delete, want 0", len(parts))
	}
}

func TestListPublishedArticles(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seed := []*model.Article{
		{Title: "Первая", Slug: "pervaya", Published: true},
		{Title: "Вторая", Slug: "vtoraya", Published: true},
		{Title: "Черновик", Slug: "chernovik", Published: false},
	}
	for _, a := range seed {
		if err := store.CreateArticle(ctx, a); err != nil {
			t.Fatalf("CreateArticle() error = %v", err)
		}
	}

	articles, err := store.ListPublishedArticles(ctx, 10)
	if err != nil {
		t.Fatalf("ListPublishedArticles() error = %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2 published", len(articles))
	}
	for _, a := range articles {
		if a.Title == "Черновик" {
			t.Error("unpublished article listed")
		}
	}

	articles, err = store.ListPublishedArticles(ctx, 1)
	if err != nil {
		t.Fatalf("ListPublishedArticles() error = %v", err)
	}
	if len(articles) != 1 {
		t.Errorf("got %d articles with limit 1, want 1", len(articles))
	}
}
