package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	Milvus  MilvusConfig
	LLM     LLMConfig
	RAG     RAGConfig
	Chat    ChatConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
}

type LLMConfig struct {
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
}

type RAGConfig struct {
	Backend          string
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	MaxContextChars  int
	EmbedCacheTTLSec int
}

type ChatConfig struct {
	Broadcast          string
	MaxBodyBytes       int
	CompressThreshold  int
	PresenceTimeoutSec int
	SweepIntervalSec   int
	HistoryLimit       int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/chatcore")

	viper.SetEnvPrefix("CHATCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/chatcore.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "chat_chunks")

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.4)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 20)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 1536)

	viper.SetDefault("rag.backend", "memory")
	viper.SetDefault("rag.chunkSize", 1000)
	viper.SetDefault("rag.chunkOverlap", 100)
	viper.SetDefault("rag.topK", 5)
	viper.SetDefault("rag.maxContextChars", 6000)
	viper.SetDefault("rag.embedCacheTTLSec", 86400)

	viper.SetDefault("chat.broadcast", "local")
	viper.SetDefault("chat.maxBodyBytes", 16384)
	viper.SetDefault("chat.compressThreshold", 2048)
	viper.SetDefault("chat.presenceTimeoutSec", 90)
	viper.SetDefault("chat.sweepIntervalSec", 30)
	viper.SetDefault("chat.historyLimit", 100)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
