// Package config manages application configuration from defaults, an
// optional config.yaml, and FUTURESELF_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration. Values can be set via
// environment variables prefixed with FUTURESELF_ (e.g. FUTURESELF_GEMINI_API_KEY)
// or through config.yaml.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Queue    QueueConfig    `mapstructure:"queue"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,min=1s"`
}

// DatabaseConfig controls the SQLite connection.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// GeminiConfig controls the generation service client.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	ModelName         string  `mapstructure:"model_name"          validate:"required"`
	FastModelName     string  `mapstructure:"fast_model_name"     validate:"required"`
	EmbeddingModel    string  `mapstructure:"embedding_model"     validate:"required"`
	Temperature       float32 `mapstructure:"temperature"         validate:"min=0,max=2"`
	MaxRetries        int     `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"min=1,max=120"`
}

// ChatConfig controls the chat guard.
type ChatConfig struct {
	TurnLimit      int `mapstructure:"turn_limit"      validate:"required,min=1"`
	HistoryWindow  int `mapstructure:"history_window"  validate:"required,min=1"`
	RetrievalLimit int `mapstructure:"retrieval_limit" validate:"required,min=1"`
}

// MemoryConfig controls the vector memory store.
type MemoryConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"    validate:"required,min=100"`
	ChunkOverlap int `mapstructure:"chunk_overlap" validate:"min=0"`
	EmbeddingDim int `mapstructure:"embedding_dim" validate:"required,min=1"`
}

// QueueConfig controls the durable job queue and its retry policy.
type QueueConfig struct {
	Workers      int           `mapstructure:"workers"       validate:"required,min=1"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required,min=100ms"`
	MaxAttempts  int           `mapstructure:"max_attempts"  validate:"required,min=1"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"  validate:"required,min=1s"`
	LeaseTimeout time.Duration `mapstructure:"lease_timeout" validate:"required,min=1m"`
}

// Load loads and validates configuration from:
// 1. Default values
// 2. config.yaml file
// 3. FUTURESELF_* environment variables
func Load() (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("FUTURESELF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow missing config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Memory.ChunkOverlap >= cfg.Memory.ChunkSize {
		return nil, fmt.Errorf("config validation failed: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			cfg.Memory.ChunkOverlap, cfg.Memory.ChunkSize)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.shutdown_timeout", 15*time.Second)

	viper.SetDefault("database.path", "futureself.db")

	viper.SetDefault("gemini.model_name", "gemini-2.5-pro")
	viper.SetDefault("gemini.fast_model_name", "gemini-2.5-flash")
	viper.SetDefault("gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("gemini.temperature", 0.7)
	viper.SetDefault("gemini.max_retries", 2)
	viper.SetDefault("gemini.retry_delay_seconds", 5)

	viper.SetDefault("chat.turn_limit", 5)
	viper.SetDefault("chat.history_window", 10)
	viper.SetDefault("chat.retrieval_limit", 5)

	viper.SetDefault("memory.chunk_size", 1000)
	viper.SetDefault("memory.chunk_overlap", 200)
	viper.SetDefault("memory.embedding_dim", 1024)

	viper.SetDefault("queue.workers", 2)
	viper.SetDefault("queue.poll_interval", time.Second)
	viper.SetDefault("queue.max_attempts", 3)
	viper.SetDefault("queue.backoff_base", 5*time.Second)
	viper.SetDefault("queue.lease_timeout", 5*time.Minute)
}
