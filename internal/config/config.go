package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Story    StoryConfig    `yaml:"story"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Qdrant QdrantConfig `yaml:"qdrant"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type QdrantConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	VectorSize int    `yaml:"vector_size"`
}

type AIConfig struct {
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
}

type OpenRouterConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
}

// StoryConfig holds the engine's operational policy. Narrative balance
// constants live in the engine's policy block, not here.
type StoryConfig struct {
	SessionTTL         time.Duration `yaml:"session_ttl"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
	LockTimeout        time.Duration `yaml:"lock_timeout"`
	GenerationAttempts int           `yaml:"generation_attempts"`
	GenerationBackoff  time.Duration `yaml:"generation_backoff"`
	MemoryRecallLimit  int           `yaml:"memory_recall_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment
// overrides for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if apiKey := os.Getenv("OPENROUTER_API_KEY"); apiKey != "" {
		cfg.AI.OpenRouter.APIKey = apiKey
	}
	if apiKey := os.Getenv("QDRANT_API_KEY"); apiKey != "" {
		cfg.Database.Qdrant.APIKey = apiKey
	}
	if pw := os.Getenv("MYSQL_PASSWORD"); pw != "" {
		cfg.Database.MySQL.Password = pw
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Database.Redis.Password = pw
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.AI.OpenRouter.BaseURL == "" {
		c.AI.OpenRouter.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.AI.OpenRouter.Timeout == 0 {
		c.AI.OpenRouter.Timeout = 120 * time.Second
	}
	if c.Story.SessionTTL == 0 {
		c.Story.SessionTTL = 24 * time.Hour
	}
	if c.Story.CleanupInterval == 0 {
		c.Story.CleanupInterval = time.Hour
	}
	if c.Story.LockTimeout == 0 {
		c.Story.LockTimeout = 5 * time.Minute
	}
	if c.Story.GenerationAttempts == 0 {
		c.Story.GenerationAttempts = 3
	}
	if c.Story.GenerationBackoff == 0 {
		c.Story.GenerationBackoff = time.Second
	}
	if c.Story.MemoryRecallLimit == 0 {
		c.Story.MemoryRecallLimit = 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
