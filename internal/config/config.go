// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，main 中 Load 成功后写入。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Decoder   DecoderConfig   `mapstructure:"decoder"`
	Tika      TikaConfig      `mapstructure:"tika"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Seed      SeedConfig      `mapstructure:"seed"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadMB     int64         `mapstructure:"max_upload_mb"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// ChunkingConfig 控制文本切块的目标长度与重叠长度（按字符计）。
type ChunkingConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// RetrievalConfig 控制检索阶段的参数。
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

// DecoderConfig 选择 PDF 解析实现：tika 或 local。
type DecoderConfig struct {
	Provider string `mapstructure:"provider"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Provider          string  `mapstructure:"provider"`
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	Model             string  `mapstructure:"model"`
	Dimensions        int     `mapstructure:"dimensions"`
	Workers           int     `mapstructure:"workers"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	MaxRetries        uint    `mapstructure:"max_retries"`
}

// CacheConfig 控制向量缓存；redis.enabled 为 true 时落到 Redis，否则使用进程内存。
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// DatabaseConfig 存储分块存储所用数据库的配置。
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	BucketName      string        `mapstructure:"bucket_name"`
	URLExpiry       time.Duration `mapstructure:"url_expiry"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Timeout       time.Duration   `mapstructure:"timeout"`
	OpenAIBaseURL string          `mapstructure:"openai_base_url"`
	GroqBaseURL   string          `mapstructure:"groq_base_url"`
	Prompt        LLMPromptConfig `mapstructure:"prompt"`
}

// LLMPromptConfig 配置系统提示与上下文包裹格式（可选）。
type LLMPromptConfig struct {
	Rules    string `mapstructure:"rules"`
	RefStart string `mapstructure:"ref_start"`
	RefEnd   string `mapstructure:"ref_end"`
}

// SeedConfig 描述启动时自动导入的 PDF 目录。
type SeedConfig struct {
	Dir     string `mapstructure:"dir"`
	Pattern string `mapstructure:"pattern"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.max_upload_mb", 50)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("chunking.chunk_size", 1000)
	v.SetDefault("chunking.chunk_overlap", 200)
	v.SetDefault("retrieval.top_k", 5)

	v.SetDefault("decoder.provider", "tika")
	v.SetDefault("tika.server_url", "http://localhost:9998")
	v.SetDefault("tika.timeout", 60*time.Second)

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.workers", 4)
	v.SetDefault("embedding.requests_per_second", 10.0)
	v.SetDefault("embedding.max_retries", 3)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:pdfchat?mode=memory&cache=shared")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "pdfchat")
	v.SetDefault("minio.url_expiry", time.Hour)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "pdfchat-document-events")

	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.groq_base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.prompt.rules", "")
	v.SetDefault("llm.prompt.ref_start", "<<REF>>")
	v.SetDefault("llm.prompt.ref_end", "<<END>>")

	v.SetDefault("seed.dir", "")
	v.SetDefault("seed.pattern", "**/*.pdf")
}

// Load 读取指定路径的 YAML 配置（文件不存在时只使用默认值与环境变量），
// 校验后写入全局 Conf。环境变量前缀为 PDFCHAT_，例如 PDFCHAT_SERVER_PORT。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PDFCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("检查配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	Conf = cfg
	return cfg, nil
}

// Validate 检查相互约束的配置项。
func (c Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size 必须大于 0, 当前为 %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap 必须位于 [0, chunk_size) 区间, 当前为 %d", c.Chunking.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k 必须大于 0, 当前为 %d", c.Retrieval.TopK)
	}
	switch c.Decoder.Provider {
	case "tika", "local":
	default:
		return fmt.Errorf("不支持的 decoder.provider: %q", c.Decoder.Provider)
	}
	switch c.Embedding.Provider {
	case "openai", "hash":
	default:
		return fmt.Errorf("不支持的 embedding.provider: %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions 必须大于 0")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("不支持的 database.driver: %q", c.Database.Driver)
	}
	return nil
}
