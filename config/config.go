package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/news-classifier/internal/cache"
	"github.com/fyerfyer/news-classifier/internal/database"
	"github.com/fyerfyer/news-classifier/internal/pipeline"
	"github.com/fyerfyer/news-classifier/pkg/storage"
	"github.com/fyerfyer/news-classifier/pkg/taskqueue"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Model    ModelConfig    `mapstructure:"model"`
	Artifact ArtifactConfig `mapstructure:"artifact"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`          // 服务器主机
	Port         int           `mapstructure:"port"`          // 服务器端口
	Mode         string        `mapstructure:"mode"`          // gin运行模式：debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // 读超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 写超时
}

// ModelConfig 流水线配置，仅在引导训练时生效，之后以制品中的配置为准
type ModelConfig struct {
	Language    string  `mapstructure:"language"`     // 规范化语言
	NFeatures   int     `mapstructure:"n_features"`   // 特征哈希维度
	Alpha       float64 `mapstructure:"alpha"`        // 平滑系数
	BatchSize   int     `mapstructure:"batch_size"`   // 词元化批大小
	Workers     int     `mapstructure:"workers"`      // 词元化并行数
	LexiconPath string  `mapstructure:"lexicon_path"` // 自定义词元词典(YAML)
}

// ArtifactConfig 模型制品配置
type ArtifactConfig struct {
	Prefix string `mapstructure:"prefix"` // 存储键前缀
	Keep   int    `mapstructure:"keep"`   // 保留的历史版本数
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type"`     // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`     // 本地存储路径
	Bucket    string `mapstructure:"bucket"`   // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"` // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`   // 是否启用缓存
	Type     string `mapstructure:"type"`     // 缓存类型：memory 或 redis
	Address  string `mapstructure:"address"`  // Redis地址
	Password string `mapstructure:"password"` // Redis密码
	DB       int    `mapstructure:"db"`       // Redis数据库
	TTL      int    `mapstructure:"ttl"`      // 缓存TTL（秒）
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`         // 是否启用任务队列
	RedisAddr     string `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string `mapstructure:"redis_password"` // Redis密码
	RedisDB       int    `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int    `mapstructure:"concurrency"`    // 任务处理并发数
	RetryLimit    int    `mapstructure:"retry_limit"`    // 任务最大重试次数
	RetryDelay    int    `mapstructure:"retry_delay"`    // 重试延迟(秒)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // 数据库类型: sqlite
	DSN  string `mapstructure:"dsn"`  // 数据源名称
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`        // 日志级别
	Format     string `mapstructure:"format"`       // 输出格式：json 或 text
	File       string `mapstructure:"file"`         // 日志文件，为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单个日志文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`  // 保留的旧日志文件数
	MaxAgeDays int    `mapstructure:"max_age_days"` // 旧日志文件保留天数
}

// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	var config Config

	// 设置默认配置路径
	if configPath == "" {
		configPath = "config.yaml" // 默认在当前目录寻找config.yaml
	}

	// 初始化viper
	v := viper.New()
	setDefaults(v)

	// 设置配置文件路径和类型
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if _, statErr := os.Stat(configPath); errors.Is(statErr, os.ErrNotExist) {
		// 找不到配置文件时写出一份默认配置
		log.Printf("Warning: Config file not found at %s, using defaults", configPath)
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err == nil {
			if err := v.WriteConfigAs(configPath); err != nil {
				log.Printf("Warning: Could not write default config to %s: %v", configPath, err)
			}
		}
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	// 支持环境变量覆盖，例如 SERVER_PORT、QUEUE_REDIS_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 解析配置到结构体
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	processEnvironmentVariables(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// processEnvironmentVariables 替换形如 ${VAR} 的配置值
func processEnvironmentVariables(cfg *Config) {
	for _, field := range []*string{
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Storage.Endpoint,
		&cfg.Cache.Address,
		&cfg.Cache.Password,
		&cfg.Queue.RedisAddr,
		&cfg.Queue.RedisPassword,
		&cfg.Database.DSN,
	} {
		*field = expandEnv(*field)
	}
}

// expandEnv 整个值为 ${VAR} 时用环境变量替换，环境变量为空时保持原值
func expandEnv(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
		return envVal
	}
	return value
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch storage.Type(c.Storage.Type) {
	case storage.TypeLocal, storage.TypeMinio:
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Artifact.Keep < 0 {
		return fmt.Errorf("artifact.keep must not be negative, got %d", c.Artifact.Keep)
	}
	return c.PipelineConfig().Validate()
}

// PipelineConfig 转换为流水线配置
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Language:  c.Model.Language,
		NFeatures: c.Model.NFeatures,
		Alpha:     c.Model.Alpha,
		BatchSize: c.Model.BatchSize,
		Workers:   c.Model.Workers,
	}
}

// StorageConfig 转换为对象存储配置
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Type:  storage.Type(c.Storage.Type),
		Local: storage.LocalConfig{Path: c.Storage.Path},
		Minio: storage.MinioConfig{
			Endpoint:  c.Storage.Endpoint,
			AccessKey: c.Storage.AccessKey,
			SecretKey: c.Storage.SecretKey,
			UseSSL:    c.Storage.UseSSL,
			Bucket:    c.Storage.Bucket,
		},
	}
}

// CacheConfig 转换为缓存配置
func (c *Config) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Type = c.Cache.Type
	cfg.RedisAddr = c.Cache.Address
	cfg.RedisPassword = c.Cache.Password
	cfg.RedisDB = c.Cache.DB
	if c.Cache.TTL > 0 {
		cfg.DefaultTTL = time.Duration(c.Cache.TTL) * time.Second
	}
	return cfg
}

// QueueConfig 转换为任务队列配置
func (c *Config) QueueConfig() *taskqueue.Config {
	cfg := taskqueue.DefaultConfig()
	cfg.RedisAddr = c.Queue.RedisAddr
	cfg.RedisPassword = c.Queue.RedisPassword
	cfg.RedisDB = c.Queue.RedisDB
	if c.Queue.Concurrency > 0 {
		cfg.Concurrency = c.Queue.Concurrency
	}
	if c.Queue.RetryLimit >= 0 {
		cfg.RetryLimit = c.Queue.RetryLimit
	}
	if c.Queue.RetryDelay > 0 {
		cfg.RetryDelay = time.Duration(c.Queue.RetryDelay) * time.Second
	}
	return cfg
}

// DatabaseConfig 转换为数据库配置
func (c *Config) DatabaseConfig() *database.Config {
	cfg := database.DefaultConfig()
	if c.Database.Type != "" {
		cfg.Type = c.Database.Type
	}
	if c.Database.DSN != "" {
		cfg.DSN = c.Database.DSN
	}
	return cfg
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	// 流水线默认配置
	v.SetDefault("model.language", "es")
	v.SetDefault("model.n_features", 5000)
	v.SetDefault("model.alpha", 1.0)
	v.SetDefault("model.batch_size", 500)
	v.SetDefault("model.workers", 4)
	v.SetDefault("model.lexicon_path", "")

	// 制品默认配置
	v.SetDefault("artifact.prefix", "model")
	v.SetDefault("artifact.keep", 5)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/artifacts")
	v.SetDefault("storage.bucket", "news-classifier")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 3600) // 1小时

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 1)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", 60) // 60秒

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/classifier.db")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}
