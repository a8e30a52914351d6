package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"horse.fit/digest/internal/feeds"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DIGEST_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DIGEST_DB_MAX_CONNS" default:"8"`

	FeedsFile string `envconfig:"FEEDS_FILE" default:"feeds.json"`

	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIToken   string `envconfig:"OPENAI_API_TOKEN" required:"true"`

	TargetLanguage  string `envconfig:"TARGET_LANGUAGE" default:"en"`
	DisplayLanguage string `envconfig:"DISPLAY_LANGUAGE" default:"en"`
	EmbedFieldKind  string `envconfig:"EMBED_FIELD_KIND" default:"description"`

	ClusterMinPoints   int     `envconfig:"CLUSTER_MIN_POINTS" default:"2"`
	ClusterThresholdLo float64 `envconfig:"CLUSTER_THRESHOLD_LO" default:"0.30"`
	ClusterThresholdHi float64 `envconfig:"CLUSTER_THRESHOLD_HI" default:"0.80"`
	ClusterSamples     int     `envconfig:"CLUSTER_SAMPLES" default:"40"`

	CycleInterval time.Duration `envconfig:"CYCLE_INTERVAL" default:"30m"`

	ServeAddr string `envconfig:"SERVE_ADDR" default:":8080"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DIGEST_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DIGEST_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DIGEST_DB_MIN_CONNS (%d) cannot exceed DIGEST_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.FeedsFile) == "" {
		return fmt.Errorf("FEEDS_FILE is required")
	}
	if strings.TrimSpace(c.OpenAIToken) == "" {
		return fmt.Errorf("OPENAI_API_TOKEN is required")
	}
	if len(c.TargetLanguage) != 2 {
		return fmt.Errorf("TARGET_LANGUAGE must be a two-letter language code, got %q", c.TargetLanguage)
	}
	if len(c.DisplayLanguage) != 2 {
		return fmt.Errorf("DISPLAY_LANGUAGE must be a two-letter language code, got %q", c.DisplayLanguage)
	}
	if _, err := feeds.ParseFieldKind(c.EmbedFieldKind); err != nil {
		return fmt.Errorf("EMBED_FIELD_KIND: %w", err)
	}
	if c.ClusterMinPoints < 1 {
		return fmt.Errorf("CLUSTER_MIN_POINTS must be >= 1")
	}
	if c.ClusterThresholdLo <= 0 {
		return fmt.Errorf("CLUSTER_THRESHOLD_LO must be > 0")
	}
	if c.ClusterThresholdHi < c.ClusterThresholdLo {
		return fmt.Errorf("CLUSTER_THRESHOLD_HI (%g) cannot be below CLUSTER_THRESHOLD_LO (%g)", c.ClusterThresholdHi, c.ClusterThresholdLo)
	}
	if c.ClusterSamples < 1 {
		return fmt.Errorf("CLUSTER_SAMPLES must be >= 1")
	}
	if c.CycleInterval < time.Minute {
		return fmt.Errorf("CYCLE_INTERVAL must be at least one minute, got %s", c.CycleInterval)
	}
	return nil
}

// EmbedKind returns the configured field kind used for embeddings. Validate
// has already checked the value, so a failed parse here is a programming error.
func (c *Config) EmbedKind() feeds.FieldKind {
	kind, err := feeds.ParseFieldKind(c.EmbedFieldKind)
	if err != nil {
		panic(fmt.Sprintf("invalid embed field kind %q past validation: %v", c.EmbedFieldKind, err))
	}
	return kind
}
