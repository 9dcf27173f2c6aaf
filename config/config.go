package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "config/config.yaml"
	configPathEnv     = "ECO_CONFIG"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Model    ModelConfig    `yaml:"model"`
	Chat     ChatConfig     `yaml:"chat"`
	RAG      RAGConfig      `yaml:"rag"`
	AWS      AWSConfig      `yaml:"aws"`
	Milvus   MilvusConfig   `yaml:"milvus"`
	Storage  StorageConfig  `yaml:"storage"`
	OSS      OSSConfig      `yaml:"oss"`
	Redis    RedisConfig    `yaml:"redis"`
	MQ       MQConfig       `yaml:"mq"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	MCP      MCPConfig      `yaml:"mcp"`
}

type ServerConfig struct {
	Port        string   `yaml:"port"`
	Mode        string   `yaml:"mode"`
	LogLevel    string   `yaml:"log_level"`
	CORSOrigins []string `yaml:"cors_origins"`

	// 平台允许的单次请求最长处理时间
	MaxRequestDuration time.Duration `yaml:"max_request_duration"`
}

type DatabaseConfig struct {
	// postgres | mysql | sqlite
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	SecretKey string `yaml:"secret_key"`
}

type ModelConfig struct {
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	ChatModel           string `yaml:"chat_model"`
	SummaryModel        string `yaml:"summary_model"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	ImageModel          string `yaml:"image_model"`
	SearchModel         string `yaml:"search_model"`
}

type ChatConfig struct {
	MaxContextTokens        int `yaml:"max_context_tokens"`
	SummarizeAfterToolCalls int `yaml:"summarize_after_tool_calls"`
	KeepRecentMessages      int `yaml:"keep_recent_messages"`
	MaxPartChars            int `yaml:"max_part_chars"`
	MaxSteps                int `yaml:"max_steps"`
	HistoryLimit            int `yaml:"history_limit"`
}

type RAGConfig struct {
	// s3vectors | milvus
	Backend            string `yaml:"backend"`
	DefaultTopK        int    `yaml:"default_top_k"`
	MaxTopK            int    `yaml:"max_top_k"`
	MaxCallsPerSession int    `yaml:"max_calls_per_session"`
	Compress           bool   `yaml:"compress"`
	FullContextTokens  int    `yaml:"full_context_tokens"`
}

type AWSConfig struct {
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	VectorBucket string `yaml:"vector_bucket"`
	VectorIndex  string `yaml:"vector_index"`
	SourceBucket string `yaml:"source_bucket"`
}

type MilvusConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

type StorageConfig struct {
	// s3 | oss
	Provider   string        `yaml:"provider"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

type OSSConfig struct {
	Region          string `yaml:"region"`
	BucketName      string `yaml:"bucket_name"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MQConfig struct {
	// rocketmq | rabbitmq | none
	Driver      string `yaml:"driver"`
	NameServer  string `yaml:"name_server"`
	RabbitURL   string `yaml:"rabbit_url"`
	UsageTopic  string `yaml:"usage_topic"`
	ConsumerNum int    `yaml:"consumer_num"`
}

type SandboxConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	Language string        `yaml:"language"`
}

type MCPConfig struct {
	Servers []MCPServer `yaml:"servers"`
}

type MCPServer struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Cfg 全局配置
var Cfg *Config

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}

	path := os.Getenv(configPathEnv)
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := Load(path)
	if err != nil {
		slog.Warn("Failed to load config file, using defaults", "path", path, "err", err)
		cfg = Default()
	}
	Cfg = cfg
}

// Load 读取 yaml 配置，支持 ${ENV} 形式的环境变量展开
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:               "8080",
			Mode:               "release",
			LogLevel:           "info",
			CORSOrigins:        []string{"http://localhost:3000"},
			MaxRequestDuration: 300 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Model: ModelConfig{
			BaseURL:             "https://api.openai.com/v1",
			ChatModel:           "gpt-4.1-mini",
			SummaryModel:        "gpt-4.1-nano",
			EmbeddingModel:      "text-embedding-3-small",
			EmbeddingDimensions: 1024,
			ImageModel:          "gpt-image-1",
			SearchModel:         "gpt-4o-mini-search-preview",
		},
		Chat: ChatConfig{
			MaxContextTokens:        60000,
			SummarizeAfterToolCalls: 5,
			KeepRecentMessages:      6,
			MaxPartChars:            20000,
			MaxSteps:                8,
			HistoryLimit:            200,
		},
		RAG: RAGConfig{
			Backend:            "s3vectors",
			DefaultTopK:        5,
			MaxTopK:            20,
			MaxCallsPerSession: 4,
			Compress:           true,
			FullContextTokens:  12000,
		},
		AWS: AWSConfig{
			Region:       "us-west-2",
			VectorBucket: "olympia-rag-vectors",
			VectorIndex:  "olympia-pages-idx",
			SourceBucket: "olympia-plans-raw",
		},
		Milvus: MilvusConfig{
			Collection: "olympia_pages",
		},
		Storage: StorageConfig{
			Provider:   "s3",
			PresignTTL: 15 * time.Minute,
		},
		MQ: MQConfig{
			Driver:      "none",
			UsageTopic:  "topic_usage",
			ConsumerNum: 4,
		},
		Sandbox: SandboxConfig{
			BaseURL:  "https://app.daytona.io/api",
			Timeout:  60 * time.Second,
			Language: "python",
		},
	}
	cfg.applyEnv()
	return cfg
}

// applyEnv 密钥类配置允许直接使用通用环境变量
func (c *Config) applyEnv() {
	if c.Model.APIKey == "" {
		c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.JWT.SecretKey == "" {
		c.JWT.SecretKey = os.Getenv("JWT_SECRET")
	}
	if c.Sandbox.APIKey == "" {
		c.Sandbox.APIKey = os.Getenv("DAYTONA_API_KEY")
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && c.Database.DSN == "" {
		c.Database.DSN = v
	}
}
