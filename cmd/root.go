package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "recruitbot"
	envPrefix = "RECRUITBOT"
)

type Config struct {
	LLM          *LLMConfig       `mapstructure:"llm" validate:"required"`
	Embedding    *EmbeddingConfig `mapstructure:"embedding" validate:"required"`
	Retrieval    *RetrievalConfig `mapstructure:"retrieval" validate:"required"`
	DocStore     *DocStoreConfig  `mapstructure:"docstore" validate:"required"`
	Jobs         *JobsConfig      `mapstructure:"jobs"`
	Session      *SessionConfig   `mapstructure:"session" validate:"required"`
	Chat         *ChatConfig      `mapstructure:"chat" validate:"required"`
	MaxLogLength int              `mapstructure:"max-log-length" validate:"gte=0"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider" validate:"oneof=ollama openai gemini"`
	Model       string        `mapstructure:"model" validate:"required"`
	BaseURL     string        `mapstructure:"base-url"`
	Temperature float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `mapstructure:"timeout"`
	APIKey      string        `mapstructure:"api-key"`
	APIKeyFile  string        `mapstructure:"api-key-file"`
	MaxRetries  int           `mapstructure:"max-retries" validate:"gte=0"`
}

type EmbeddingConfig struct {
	BaseURL  string        `mapstructure:"base-url" validate:"required"`
	Model    string        `mapstructure:"model" validate:"required"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache-ttl"`
}

type RetrievalConfig struct {
	Backend  string          `mapstructure:"backend" validate:"oneof=qdrant pgvector"`
	TopK     int             `mapstructure:"top-k" validate:"gt=0"`
	MinScore float64         `mapstructure:"min-score" validate:"gte=0,lte=1"`
	Qdrant   *QdrantConfig   `mapstructure:"qdrant"`
	Pgvector *PgvectorConfig `mapstructure:"pgvector"`
}

type QdrantConfig struct {
	URL        string        `mapstructure:"url"`
	Collection string        `mapstructure:"collection"`
	APIKey     string        `mapstructure:"api-key"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	HNSWEf     int           `mapstructure:"hnsw-ef" validate:"gte=0"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type PgvectorConfig struct {
	DSN     string `mapstructure:"dsn"`
	DSNFile string `mapstructure:"dsn-file"`
	Table   string `mapstructure:"table"`
}

type DocStoreConfig struct {
	Backend  string `mapstructure:"backend" validate:"oneof=memory redis"`
	RedisURL string `mapstructure:"redis-url"`
	Prefix   string `mapstructure:"prefix"`
}

type JobsConfig struct {
	DSN     string `mapstructure:"dsn"`
	DSNFile string `mapstructure:"dsn-file"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepSchedule string        `mapstructure:"sweep-schedule"`
}

type ChatConfig struct {
	MaxReflectTurns int  `mapstructure:"max-reflect-turns" validate:"gte=0"`
	SteerChitchat   bool `mapstructure:"steer-chitchat"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "recruitbot is a recruitment assistant: chat, CV tools and an MCP server",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is recruitbot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("log-file", "", "additionally write logs to a rotated file")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))

	setDefaults()
}

// setDefaults registers every key so that environment overrides reach Unmarshal.
func setDefaults() {
	viper.SetDefault("llm.provider", "ollama")
	viper.SetDefault("llm.model", "qwen3:8b")
	viper.SetDefault("llm.base-url", "")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.timeout", "120s")
	viper.SetDefault("llm.api-key", "")
	viper.SetDefault("llm.api-key-file", "")
	viper.SetDefault("llm.max-retries", 3)

	viper.SetDefault("embedding.base-url", "http://localhost:11434")
	viper.SetDefault("embedding.model", "nomic-embed-text")
	viper.SetDefault("embedding.timeout", "30s")
	viper.SetDefault("embedding.cache-ttl", "1h")

	viper.SetDefault("retrieval.backend", "qdrant")
	viper.SetDefault("retrieval.top-k", 7)
	viper.SetDefault("retrieval.min-score", 0)
	viper.SetDefault("retrieval.qdrant.url", "http://localhost:6333")
	viper.SetDefault("retrieval.qdrant.collection", "entities")
	viper.SetDefault("retrieval.qdrant.api-key", "")
	viper.SetDefault("retrieval.qdrant.api-key-file", "")
	viper.SetDefault("retrieval.qdrant.hnsw-ef", 128)
	viper.SetDefault("retrieval.qdrant.timeout", "30s")
	viper.SetDefault("retrieval.pgvector.dsn", "")
	viper.SetDefault("retrieval.pgvector.dsn-file", "")
	viper.SetDefault("retrieval.pgvector.table", "entity_embeddings")

	viper.SetDefault("docstore.backend", "memory")
	viper.SetDefault("docstore.redis-url", "redis://localhost:6379/0")
	viper.SetDefault("docstore.prefix", "recruitbot:docs:")

	viper.SetDefault("jobs.dsn", "")
	viper.SetDefault("jobs.dsn-file", "")

	viper.SetDefault("session.ttl", "1h")
	viper.SetDefault("session.sweep-schedule", "@every 10m")

	viper.SetDefault("chat.max-reflect-turns", 100)
	viper.SetDefault("chat.steer-chitchat", false)
	viper.SetDefault("max-log-length", 500)
}

func initConfig() {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	bindEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
		viper.SetConfigType("yaml")
	}

	// Without a config file the defaults and environment are enough. An
	// explicit --config that can't be read is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

// bindEnv maps keys such as retrieval.top-k to RECRUITBOT_RETRIEVAL_TOP_K.
func bindEnv() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if config == nil {
		return nil, errors.New("empty config")
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}
