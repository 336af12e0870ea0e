package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Amsterdam"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	OpenAI struct {
		APIKey         string        `envconfig:"OPENAI_API_KEY"`
		BaseURL        string        `envconfig:"OPENAI_BASE_URL"`
		ChatModel      string        `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-4.1-mini"`
		EmbeddingModel string        `envconfig:"OPENAI_EMBEDDING_MODEL" default:"text-embedding-3-small"`
		Timeout        time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Clients struct {
		AccountsURL  string        `envconfig:"ACCOUNTS_SERVICE_URL"`
		MediaURL     string        `envconfig:"MEDIA_SERVICE_URL"`
		AnalyticsURL string        `envconfig:"ANALYTICS_SERVICE_URL"`
		LinkedInURL  string        `envconfig:"LINKEDIN_API_URL" default:"https://api.linkedin.com"`
		TwitterURL   string        `envconfig:"TWITTER_API_URL" default:"https://api.twitter.com"`
		Timeout      time.Duration `envconfig:"CLIENT_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Analysis struct {
		PollInterval time.Duration `envconfig:"ANALYSIS_POLL_INTERVAL" default:"5m"`
		NoiseFloor   float64       `envconfig:"ANALYSIS_NOISE_FLOOR" default:"0.1"`
		EmbeddingDim int           `envconfig:"EMBEDDING_DIM" default:"1536"`
		ContextLimit int           `envconfig:"RAG_CONTEXT_LIMIT" default:"5"`
	} `envconfig:""`

	AI struct {
		ExampleMaxChars int    `envconfig:"AI_EXAMPLE_MAX_CHARS" default:"500"`
		DefaultPlatform string `envconfig:"AI_DEFAULT_PLATFORM" default:"LINKEDIN"`
	} `envconfig:""`

	Queues struct {
		Completed string `envconfig:"AI_COMPLETED_QUEUE" default:"ai_generation_completed"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
