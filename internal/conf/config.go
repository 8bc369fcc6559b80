package conf

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/chunker"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/database"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/milvus"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/minio"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/redis"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/workerpool"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，APP_DATABASE_HOST 覆盖 database.host
const EnvPrefix = "APP"

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    database.Config   `mapstructure:"database"`
	Redis       redis.Config      `mapstructure:"redis"`
	MinIO       minio.Config      `mapstructure:"minio"`
	Milvus      milvus.Config     `mapstructure:"milvus"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore"`
	Log         logger.Config     `mapstructure:"log"`
	Auth        AuthConfig        `mapstructure:"auth"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Chunking    ChunkingConfig    `mapstructure:"chunking"`
	KB          KBConfig          `mapstructure:"kb"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type VectorStoreConfig struct {
	Backend    string `mapstructure:"backend"` // milvus, chromem
	Collection string `mapstructure:"collection"`
	// chromem 持久化目录，为空时仅在内存中
	PersistPath string `mapstructure:"persist_path"`
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTIssuer      string        `mapstructure:"jwt_issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	APITokenName   string        `mapstructure:"api_token_name"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // deepseek, openai
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxRetries  uint64        `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"` // modelscope, openai
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Dimension  int           `mapstructure:"dimension"`
	BatchSize  int           `mapstructure:"batch_size"`
	MaxRetries uint64        `mapstructure:"max_retries"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// ChunkingConfig 分块参数，默认 800 / 120 / auto
type ChunkingConfig struct {
	ChunkSize     int    `mapstructure:"chunk_size"`
	ChunkOverlap  int    `mapstructure:"chunk_overlap"`
	Method        string `mapstructure:"method"`
	TokenEncoding string `mapstructure:"token_encoding"` // 为空时不统计 token
}

// ToChunker 转换为分块器配置并校验
func (c ChunkingConfig) ToChunker() (chunker.Config, error) {
	method, err := chunker.ParseMethod(c.Method)
	if err != nil {
		return chunker.Config{}, err
	}
	cfg := chunker.Config{ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap, Method: method}
	if err := cfg.Validate(); err != nil {
		return chunker.Config{}, err
	}
	return cfg, nil
}

type KBConfig struct {
	Storage       string `mapstructure:"storage"` // local, minio
	DataDir       string `mapstructure:"data_dir"`
	MaxUploadSize int64  `mapstructure:"max_upload_size"`
}

type IngestConfig struct {
	Rebuild bool              `mapstructure:"rebuild"`
	Pool    workerpool.Config `mapstructure:"pool"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int64         `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			Mode:            "release",
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: *database.DefaultConfig(),
		Redis:    *redis.DefaultConfig(),
		MinIO:    minio.Config{Endpoint: "localhost:9000", Bucket: "knowledge-base", Prefix: "kb/"},
		Milvus:   *milvus.DefaultConfig(),
		VectorStore: VectorStoreConfig{
			Backend:    "milvus",
			Collection: "RAGChunk",
		},
		Log: *logger.DefaultConfig(),
		Auth: AuthConfig{
			JWTIssuer:      "chatbot-rag",
			AccessTokenTTL: 24 * time.Hour,
			APITokenName:   "agent-chat-ui",
		},
		LLM: LLMConfig{
			Provider:    "deepseek",
			BaseURL:     "https://api.deepseek.com",
			Model:       "deepseek-chat",
			Temperature: 0.2,
			MaxRetries:  3,
			Timeout:     2 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Provider:   "modelscope",
			BaseURL:    "https://api-inference.modelscope.cn/v1",
			Dimension:  1024,
			BatchSize:  64,
			MaxRetries: 3,
			CacheTTL:   7 * 24 * time.Hour,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    chunker.DefaultChunkSize,
			ChunkOverlap: chunker.DefaultChunkOverlap,
			Method:       string(chunker.DefaultMethod),
		},
		KB: KBConfig{
			Storage:       "local",
			DataDir:       "data",
			MaxUploadSize: 20 << 20,
		},
		Ingest: IngestConfig{
			Rebuild: true,
			Pool:    *workerpool.DefaultConfig(),
		},
		RateLimit: RateLimitConfig{
			Requests: 60,
			Window:   time.Minute,
		},
	}
}

// Validate 校验跨模块的配置
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if _, err := c.Chunking.ToChunker(); err != nil {
		return err
	}
	switch c.VectorStore.Backend {
	case "milvus", "chromem":
	default:
		return fmt.Errorf("vectorstore: unknown backend %q", c.VectorStore.Backend)
	}
	if c.VectorStore.Collection == "" {
		return errors.New("vectorstore: collection is required")
	}
	switch c.KB.Storage {
	case "local", "minio":
	default:
		return fmt.Errorf("kb: unknown storage %q", c.KB.Storage)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth: jwt_secret is required")
	}
	return nil
}

// LoadConfig 读取配置：先加载 .env，再读 YAML，最后用 APP_ 环境变量覆盖。
// path 为空时只使用默认值与环境变量。
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults 把默认值注册到 viper，AutomaticEnv 只对已知键生效
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.DBName)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.log_level", d.Database.LogLevel)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	v.SetDefault("minio.endpoint", d.MinIO.Endpoint)
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.bucket", d.MinIO.Bucket)
	v.SetDefault("minio.use_ssl", d.MinIO.UseSSL)
	v.SetDefault("minio.prefix", d.MinIO.Prefix)

	v.SetDefault("milvus.address", d.Milvus.Address)
	v.SetDefault("milvus.username", "")
	v.SetDefault("milvus.password", "")
	v.SetDefault("milvus.api_key", "")

	v.SetDefault("vectorstore.backend", d.VectorStore.Backend)
	v.SetDefault("vectorstore.collection", d.VectorStore.Collection)
	v.SetDefault("vectorstore.persist_path", d.VectorStore.PersistPath)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.file.filename", d.Log.File.Filename)
	v.SetDefault("log.file.max_size", d.Log.File.MaxSize)
	v.SetDefault("log.file.max_age", d.Log.File.MaxAge)
	v.SetDefault("log.file.max_backups", d.Log.File.MaxBackups)
	v.SetDefault("log.file.compress", d.Log.File.Compress)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", d.Auth.JWTIssuer)
	v.SetDefault("auth.access_token_ttl", d.Auth.AccessTokenTTL)
	v.SetDefault("auth.api_token_name", d.Auth.APITokenName)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)
	v.SetDefault("llm.timeout", d.LLM.Timeout)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.max_retries", d.Embedding.MaxRetries)
	v.SetDefault("embedding.cache_ttl", d.Embedding.CacheTTL)

	v.SetDefault("chunking.chunk_size", d.Chunking.ChunkSize)
	v.SetDefault("chunking.chunk_overlap", d.Chunking.ChunkOverlap)
	v.SetDefault("chunking.method", d.Chunking.Method)
	v.SetDefault("chunking.token_encoding", d.Chunking.TokenEncoding)

	v.SetDefault("kb.storage", d.KB.Storage)
	v.SetDefault("kb.data_dir", d.KB.DataDir)
	v.SetDefault("kb.max_upload_size", d.KB.MaxUploadSize)

	v.SetDefault("ingest.rebuild", d.Ingest.Rebuild)
	v.SetDefault("ingest.pool.workers", d.Ingest.Pool.Workers)

	v.SetDefault("ratelimit.enabled", d.RateLimit.Enabled)
	v.SetDefault("ratelimit.requests", d.RateLimit.Requests)
	v.SetDefault("ratelimit.window", d.RateLimit.Window)
}
