package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Bot        BotConfig
	DB         DBConfig
	Ingest     IngestConfig
	Downloader DownloaderConfig
	Server     ServerConfig
}

// BotConfig holds Telegram bot configuration
type BotConfig struct {
	Token       string        `envconfig:"BOT_TOKEN" required:"true"`
	NewsChannel string        `envconfig:"NEWS_CHANNEL"`
	PollTimeout time.Duration `envconfig:"POLL_TIMEOUT" default:"30s"`
}

// DBConfig holds database configuration
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	Database string `envconfig:"DB_NAME" default:"avtodecor"`
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"10"`
}

// IngestConfig holds channel ingestion configuration
type IngestConfig struct {
	AutoPublish bool          `envconfig:"AUTO_PUBLISH" default:"false"`
	SettleDelay time.Duration `envconfig:"MEDIA_GROUP_SETTLE" default:"2s"`
	MediaRoot   string        `envconfig:"MEDIA_ROOT" default:"media"`
	// ImportForwarded lets forwarded channel posts sent to the bot be
	// ingested as articles, bypassing the sync cursor.
	ImportForwarded bool `envconfig:"IMPORT_FORWARDED" default:"false"`
}

// DownloaderConfig holds the tdlib session downloader configuration.
// APIID and APIHash come from my.telegram.org and are distinct from the
// bot token: the session client reads full channel history.
type DownloaderConfig struct {
	APIID      int           `envconfig:"TD_API_ID" default:"0"`
	APIHash    string        `envconfig:"TD_API_HASH"`
	SessionDir string        `envconfig:"TD_SESSION_DIR" default:"tdlib-session"`
	Limit      int           `envconfig:"DOWNLOADER_LIMIT" default:"10"`
	Loop       bool          `envconfig:"DOWNLOADER_LOOP" default:"false"`
	Interval   time.Duration `envconfig:"DOWNLOADER_INTERVAL" default:"60s"`
	ItemDelay  time.Duration `envconfig:"DOWNLOADER_ITEM_DELAY" default:"2s"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int `envconfig:"SERVER_PORT" default:"8080"`
}

// DSN returns the MySQL data source name
func (c *DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Load loads configuration from the environment, reading a .env file first
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	if err := envconfig.Process("", &cfg.Bot); err != nil {
		return nil, fmt.Errorf("failed to load bot config: %w", err)
	}

	if err := envconfig.Process("", &cfg.DB); err != nil {
		return nil, fmt.Errorf("failed to load db config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Ingest); err != nil {
		return nil, fmt.Errorf("failed to load ingest config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Downloader); err != nil {
		return nil, fmt.Errorf("failed to load downloader config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Server); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.DB.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Bot.PollTimeout <= 0 {
		return fmt.Errorf("POLL_TIMEOUT must be positive")
	}
	if c.Ingest.SettleDelay <= 0 {
		return fmt.Errorf("MEDIA_GROUP_SETTLE must be positive")
	}
	if c.Downloader.Limit <= 0 {
		return fmt.Errorf("DOWNLOADER_LIMIT must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	return nil
}

// ValidateDownloader checks the fields only the downloader process needs.
func (c *Config) ValidateDownloader() error {
	if c.Downloader.APIID == 0 {
		return fmt.Errorf("TD_API_ID is required")
	}
	if c.Downloader.APIHash == "" {
		return fmt.Errorf("TD_API_HASH is required")
	}
	return nil
}
