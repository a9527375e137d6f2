package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Milvus    MilvusConfig    `mapstructure:"milvus"`
	Redis     RedisConfig     `mapstructure:"redis"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type MilvusConfig struct {
	Address    string `mapstructure:"address"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
	Dimension  int    `mapstructure:"dimension"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTLMin   int    `mapstructure:"ttl_minutes"`
}

type LLMConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	TimeoutSec     int    `mapstructure:"timeout_seconds"`
	MaxTokens      int    `mapstructure:"max_tokens"`
}

type SearchConfig struct {
	SerpAPIKey string `mapstructure:"serpapi_key"`
	MaxResults int    `mapstructure:"max_results"`
}

type PipelineConfig struct {
	RetrievalK        int `mapstructure:"retrieval_k"`
	MaxRewrites       int `mapstructure:"max_rewrites"`
	RequestTimeoutSec int `mapstructure:"request_timeout_seconds"`
}

type CacheConfig struct {
	TTLHours         int `mapstructure:"ttl_hours"`
	SweepIntervalMin int `mapstructure:"sweep_interval_minutes"`
	MaxEntries       int `mapstructure:"max_entries"`
}

type IngestionConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("SUPPORT_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("sqlite.path", "./data/support_agent.db")

	viper.SetDefault("milvus.address", "localhost:19530")
	viper.SetDefault("milvus.collection", "kb_chunks")
	viper.SetDefault("milvus.dimension", 1536)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl_minutes", 60)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.timeout_seconds", 30)
	viper.SetDefault("llm.max_tokens", 1024)

	viper.SetDefault("search.max_results", 5)

	viper.SetDefault("pipeline.retrieval_k", 4)
	viper.SetDefault("pipeline.max_rewrites", 1)
	viper.SetDefault("pipeline.request_timeout_seconds", 60)

	viper.SetDefault("cache.ttl_hours", 24)
	viper.SetDefault("cache.sweep_interval_minutes", 30)
	viper.SetDefault("cache.max_entries", 10000)

	viper.SetDefault("ingestion.chunk_size", 1000)
	viper.SetDefault("ingestion.chunk_overlap", 1)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}
