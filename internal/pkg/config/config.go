package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Pipelines PipelinesConfig `yaml:"pipelines"`
	API       APIConfig       `yaml:"api"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type FeedsConfig struct {
	Odds  OddsFeedConfig  `yaml:"odds"`
	Stats StatsFeedConfig `yaml:"stats"`
}

type OddsFeedConfig struct {
	BaseURL      string            `yaml:"base_url"`
	Sport        string            `yaml:"sport"`         // e.g. "sr:sport:1" (football)
	MarketFilter string            `yaml:"market_filter"` // comma-separated upstream market ids
	PageSize     int               `yaml:"page_size"`
	Timeout      time.Duration     `yaml:"timeout"`
	UserAgent    string            `yaml:"user_agent"`
	Headers      map[string]string `yaml:"headers"`
	// MaxInflight bounds concurrent page fetches per driver (default 5).
	MaxInflight int `yaml:"max_inflight"`
	// PagesPerChunk is how many pages are fetched concurrently between
	// pacing delays (default 3).
	PagesPerChunk int `yaml:"pages_per_chunk"`
	// EventState selects the live or upcoming stream. Set per pipeline at
	// wiring time, not read from the config file.
	EventState string `yaml:"-"`
}

type StatsFeedConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxInflight       int           `yaml:"max_inflight"`
}

type PipelinesConfig struct {
	LiveOdds           OddsPipelineConfig   `yaml:"live_odds"`
	UpcomingOdds       OddsPipelineConfig   `yaml:"upcoming_odds"`
	LiveEnrichment     EnrichPipelineConfig `yaml:"live_enrichment"`
	UpcomingEnrichment EnrichPipelineConfig `yaml:"upcoming_enrichment"`
}

type OddsPipelineConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	// MaxMarginPercent rejects markets whose bookmaker margin exceeds the
	// cap even when the raw numbers show profit. 0 disables the cap.
	MaxMarginPercent float64       `yaml:"max_margin_percent"`
	TTL              time.Duration `yaml:"ttl"`
}

type EnrichPipelineConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	TTL      time.Duration `yaml:"ttl"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type TelegramConfig struct {
	BotToken        string        `yaml:"bot_token"`
	ChatID          int64         `yaml:"chat_id"`
	AlertCooldown   time.Duration `yaml:"alert_cooldown"`
	MinSendInterval time.Duration `yaml:"min_send_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}
