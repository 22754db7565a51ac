package config

import (
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"replygate-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	WebhookURL     string `envconfig:"WEBHOOK_URL"`
	WebhookSecret  string `envconfig:"WEBHOOK_SECRET"`
	ChatWebhookURL string `envconfig:"CHAT_WEBHOOK_URL"`

	GenerationTimeout     time.Duration `envconfig:"GENERATION_TIMEOUT" default:"30s"`
	DispatchConcurrency   int           `envconfig:"DISPATCH_CONCURRENCY" default:"4"`
	DispatchTimeout       time.Duration `envconfig:"DISPATCH_TIMEOUT" default:"10s"`
	DeliveryRetryInterval time.Duration `envconfig:"DELIVERY_RETRY_INTERVAL" default:"15s"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"2000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	// Defaults used until an ai_settings row is written.
	AIModel              string  `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	AITemperature        float64 `envconfig:"AI_TEMPERATURE" default:"0.7"`
	AIMaxTokens          int     `envconfig:"AI_MAX_TOKENS" default:"1000"`
	AIAutoSendThreshold  float64 `envconfig:"AI_AUTO_SEND_THRESHOLD" default:"0.9"`
	AIRequireReviewBelow float64 `envconfig:"AI_REQUIRE_REVIEW_BELOW" default:"0.6"`
	AIBrandVoice         string  `envconfig:"AI_BRAND_VOICE"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("REPLYGATE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.DefaultAISettings().Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI defaults: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// DefaultAISettings returns the settings applied when none are stored.
func (c *Config) DefaultAISettings() domain.AISettings {
	return domain.AISettings{
		Model:              c.AIModel,
		Temperature:        c.AITemperature,
		MaxTokens:          c.AIMaxTokens,
		AutoSendThreshold:  c.AIAutoSendThreshold,
		RequireReviewBelow: c.AIRequireReviewBelow,
		BrandVoice:         c.AIBrandVoice,
	}
}
