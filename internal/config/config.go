// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Artifacts     ArtifactsConfig     `mapstructure:"artifacts"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储校验 LMS 签发的服务令牌所需的配置。
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	Workers     int    `mapstructure:"workers"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
// IndexPrefix 与课程 ID 拼接成每门课程独立的索引名。
type ElasticsearchConfig struct {
	Addresses   string `mapstructure:"addresses"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	IndexPrefix string `mapstructure:"index_prefix"`
}

// VectorStoreConfig 选择向量库实现。
type VectorStoreConfig struct {
	Driver   string `mapstructure:"driver"` // "elasticsearch" 或 "chromem"
	Path     string `mapstructure:"path"`   // chromem 持久化目录
	Compress bool   `mapstructure:"compress"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"` // "openai" 或 "gemini"
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Dimensions        int           `mapstructure:"dimensions"`
	BatchSize         int           `mapstructure:"batch_size"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Provider   string              `mapstructure:"provider"` // "openai" 或 "gemini"
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// IngestConfig 控制文档解析与切块。
type IngestConfig struct {
	Extractor    string `mapstructure:"extractor"` // "pdf" 或 "tika"
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	MaxFileBytes int64  `mapstructure:"max_file_bytes"`
}

// RetrievalConfig 控制查询阶段的候选池与预算。
type RetrievalConfig struct {
	PoolSize    int `mapstructure:"pool_size"`
	MinK        int `mapstructure:"min_k"`
	TokenBudget int `mapstructure:"token_budget"`
}

// ArtifactsConfig 控制知识图谱与实体索引文件的存放位置。
type ArtifactsConfig struct {
	Driver string `mapstructure:"driver"` // "minio" 或 "local"
	Dir    string `mapstructure:"dir"`
}

// RateLimitConfig 限制每个用户的问答频率，0 表示不限制。
type RateLimitConfig struct {
	QueriesPerMinute int `mapstructure:"queries_per_minute"`
}

// TelemetryConfig 配置 OTLP 链路追踪导出，Endpoint 为空时不导出。
type TelemetryConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
// 环境变量（含 .env 文件）会覆盖同名配置项，例如 LLM_API_KEY 覆盖 llm.api_key。
func Init(configPath string) {
	_ = godotenv.Load()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

func setDefaults() {
	viper.SetDefault("server.port", "8081")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("kafka.group_id", "lms-assistant-ingest")
	viper.SetDefault("kafka.workers", 2)
	viper.SetDefault("kafka.max_attempts", 3)
	viper.SetDefault("tika.timeout", "60s")
	viper.SetDefault("elasticsearch.index_prefix", "course_materials")
	viper.SetDefault("vector_store.driver", "elasticsearch")
	viper.SetDefault("vector_store.path", "./data/vectors")
	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.batch_size", 16)
	viper.SetDefault("embedding.timeout", "30s")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.timeout", "120s")
	viper.SetDefault("llm.generation.temperature", 0.1)
	viper.SetDefault("ingest.extractor", "pdf")
	viper.SetDefault("ingest.chunk_size", 1200)
	viper.SetDefault("ingest.chunk_overlap", 200)
	viper.SetDefault("ingest.max_file_bytes", 200<<20)
	viper.SetDefault("retrieval.pool_size", 24)
	viper.SetDefault("retrieval.min_k", 4)
	viper.SetDefault("retrieval.token_budget", 1500)
	viper.SetDefault("artifacts.driver", "minio")
	viper.SetDefault("artifacts.dir", "./data/kg")
	viper.SetDefault("rate_limit.queries_per_minute", 30)
	viper.SetDefault("telemetry.service_name", "lms-assistant")
	viper.SetDefault("telemetry.sample_ratio", 1.0)
}
