package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/avtodecor/newsbot/internal/bot"
	"github.com/avtodecor/newsbot/internal/model"
	"github.com/avtodecor/newsbot/internal/push"
	"github.com/avtodecor/newsbot/internal/store"
)

// streamChunkSize is the copy buffer used when proxying video bodies
const streamChunkSize = 64 * 1024

// Prometheus metrics
var (
	articlesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "newsbot_articles_total",
		Help: "Total number of articles in database",
	})

	postsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbot_posts_ingested_total",
		Help: "Total number of processed channel posts",
	}, []string{"outcome"})

	videoDownloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbot_video_downloads_total",
		Help: "Total number of large video download attempts",
	}, []string{"status"})

	proxyRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbot_video_proxy_requests_total",
		Help: "Total number of video proxy requests",
	}, []string{"code"})

	leadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "newsbot_leads_total",
		Help: "Total number of leads received",
	})
)

func init() {
	prometheus.MustRegister(articlesTotal)
	prometheus.MustRegister(postsIngested)
	prometheus.MustRegister(videoDownloads)
	prometheus.MustRegister(proxyRequests)
	prometheus.MustRegister(leadsTotal)
}

// VideoStreamer opens a pass-through stream for a Telegram-hosted file
type VideoStreamer interface {
	OpenFileStream(ctx context.Context, fileID string) (*bot.FileStream, error)
}

// LeadBroadcaster fans a lead out to the notification subscribers
type LeadBroadcaster interface {
	Broadcast(ctx context.Context, lead *push.Lead) (int, error)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
}

// Server exposes health, metrics, the video streaming proxy and the lead
// intake endpoint.
type Server struct {
	store     store.Store
	streamer  VideoStreamer
	push      LeadBroadcaster
	router    *http.ServeMux
	server    *http.Server
	startTime time.Time
}

// NewServer creates the HTTP server. streamer and push may be nil when the
// bot is not configured; the related endpoints then answer 500.
func NewServer(store store.Store, streamer VideoStreamer, push LeadBroadcaster) *Server {
	s := &Server{
		store:     store,
		streamer:  streamer,
		push:      push,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.HandleFunc("/articles", s.handleArticles)
	s.router.HandleFunc("/videos/", s.handleVideo)
	s.router.HandleFunc("/leads", s.handleLead)
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the specified port
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 10 * time.Second,
		// Streaming responses can outlive short write deadlines, so only
		// reads are bounded.
		IdleTimeout: 60 * time.Second,
	}

	log.Info().Int("port", port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Info().Msg("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbStatus := "healthy"
	if err := s.store.Ping(ctx); err != nil {
		dbStatus = fmt.Sprintf("unhealthy: %v", err)
	}

	status := "healthy"
	if dbStatus != "healthy" {
		status = "unhealthy"
	}

	response := HealthResponse{
		Status:   status,
		Database: dbStatus,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode health response")
	}
}

// articleListLimit bounds the /articles response size
const articleListLimit = 50

// previewLength is the preview size in runes for article listings
const previewLength = 200

// ArticleSummary is one /articles list entry. Preview is the article
// content with HTML stripped.
type ArticleSummary struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Preview   string    `json:"preview"`
	ImagePath string    `json:"image_path,omitempty"`
	VideoURL  string    `json:"video_url,omitempty"`
	VideoFile string    `json:"video_file,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// handleArticles lists the newest published articles for the site.
func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.answer(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	articles, err := s.store.ListPublishedArticles(r.Context(), articleListLimit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list articles")
		s.answer(w, http.StatusInternalServerError, "internal error")
		return
	}

	summaries := make([]ArticleSummary, 0, len(articles))
	for _, a := range articles {
		summary := ArticleSummary{
			ID:        a.ID,
			Title:     a.Title,
			Slug:      a.Slug,
			Preview:   a.PlainText(previewLength),
			ImagePath: a.ImagePath,
			CreatedAt: a.CreatedAt,
		}
		switch src := a.VideoSource(); src.Kind {
		case model.VideoSourceTelegramRef:
			summary.VideoURL = fmt.Sprintf("/videos/%d", a.ID)
		case model.VideoSourceLocalFile:
			summary.VideoFile = src.Path
		}
		summaries = append(summaries, summary)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		log.Error().Err(err).Msg("Failed to encode article list")
	}
}

// handleVideo streams a published article's Telegram-hosted video through
// the server, so the file_id never leaks to the site visitor.
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.videoError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/videos/")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		s.videoError(w, http.StatusNotFound, "not found")
		return
	}

	article, err := s.store.GetPublishedArticle(r.Context(), uint(id))
	if err != nil {
		log.Error().Err(err).Uint64("article", id).Msg("Failed to load article")
		s.videoError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if article == nil || article.VideoFileID == "" {
		s.videoError(w, http.StatusNotFound, "not found")
		return
	}

	if s.streamer == nil {
		log.Error().Msg("Video proxy requested without a configured bot")
		s.videoError(w, http.StatusInternalServerError, "bot not configured")
		return
	}

	stream, err := s.streamer.OpenFileStream(r.Context(), article.VideoFileID)
	if err != nil {
		if errors.Is(err, bot.ErrFileNotFound) {
			s.videoError(w, http.StatusNotFound, "not found")
			return
		}
		log.Error().Err(err).Uint64("article", id).Msg("Failed to open upstream video")
		s.videoError(w, http.StatusBadGateway, "upstream error")
		return
	}
	defer stream.Body.Close()

	contentType := stream.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	if stream.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(stream.ContentLength, 10))
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	proxyRequests.WithLabelValues("200").Inc()

	if r.Method == http.MethodHead {
		return
	}

	buf := make([]byte, streamChunkSize)
	if _, err := io.CopyBuffer(w, stream.Body, buf); err != nil {
		// Headers are already out; the client likely went away.
		log.Debug().Err(err).Uint64("article", id).Msg("Video stream interrupted")
	}
}

// handleLead accepts a contact-form submission and broadcasts it to the
// notification subscribers.
func (s *Server) handleLead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.answer(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var lead push.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		s.answer(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if lead.Phone == "" && lead.Name == "" {
		s.answer(w, http.StatusBadRequest, "empty lead")
		return
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}

	if s.push == nil {
		s.answer(w, http.StatusInternalServerError, "bot not configured")
		return
	}

	sent, err := s.push.Broadcast(r.Context(), &lead)
	if err != nil {
		log.Error().Err(err).Msg("Lead broadcast failed")
		s.answer(w, http.StatusInternalServerError, "broadcast failed")
		return
	}
	leadsTotal.Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"notified": sent})
}

func (s *Server) answer(w http.ResponseWriter, code int, msg string) {
	http.Error(w, msg, code)
}

func (s *Server) videoError(w http.ResponseWriter, code int, msg string) {
	proxyRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	http.Error(w, msg, code)
}

// UpdateArticleCount updates the articles_total metric
func UpdateArticleCount(count int64) {
	articlesTotal.Set(float64(count))
}

// RecordIngest records the outcome of one processed post
func RecordIngest(outcome string) {
	postsIngested.WithLabelValues(outcome).Inc()
}

// RecordDownload records one large-video download attempt
func RecordDownload(status string) {
	videoDownloads.WithLabelValues(status).Inc()
}
