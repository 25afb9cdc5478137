package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/finetunelab/guardrails/guardrails"
	"github.com/finetunelab/guardrails/persistence"
)

// Config 完整配置结构
type Config struct {
	// Pipeline 检查管线配置
	Pipeline guardrails.Config `yaml:"pipeline" env:"PIPELINE"`

	// Audit 审计落盘目标配置
	Audit AuditConfig `yaml:"audit" env:"AUDIT"`

	// Redis 审计流配置
	Redis persistence.RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 审计数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// AuditConfig 审计落盘目标开关
type AuditConfig struct {
	// MemoryEnabled 是否启用内存环形缓冲落盘
	MemoryEnabled bool `yaml:"memory_enabled" env:"MEMORY_ENABLED"`
	// MemoryCapacity 内存落盘容量
	MemoryCapacity int `yaml:"memory_capacity" env:"MEMORY_CAPACITY"`
	// RedisEnabled 是否启用 Redis Stream 落盘
	RedisEnabled bool `yaml:"redis_enabled" env:"REDIS_ENABLED"`
	// DatabaseEnabled 是否启用关系型数据库落盘
	DatabaseEnabled bool `yaml:"database_enabled" env:"DATABASE_ENABLED"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Driver 驱动类型: sqlite, mysql, postgres
	Driver string `yaml:"driver" env:"DRIVER"`
	// Host 主机
	Host string `yaml:"host" env:"HOST"`
	// Port 端口
	Port int `yaml:"port" env:"PORT"`
	// User 用户名
	User string `yaml:"user" env:"USER"`
	// Password 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// Name 数据库名(sqlite 时为文件路径)
	Name string `yaml:"name" env:"NAME"`
	// SSLMode SSL 模式(postgres)
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// MaxOpenConns 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// ConnMaxLifetime 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller 是否记录调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// Enabled 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLPEndpoint OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// ServiceName 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// SampleRate 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig 返回完整默认配置
func DefaultConfig() *Config {
	return &Config{
		Pipeline:  guardrails.DefaultConfig(),
		Audit:     DefaultAuditConfig(),
		Redis:     persistence.DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultAuditConfig 返回默认审计落盘配置
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		MemoryEnabled:  true,
		MemoryCapacity: 1024,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "guardrails.db",
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:     false,
		ServiceName: "guardrails",
		SampleRate:  1.0,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if t := c.Pipeline.Injection.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, "injection confidence_threshold must be in [0,1]")
	}
	if t := c.Pipeline.Moderation.ScoreThreshold; t < 0 || t > 1 {
		errs = append(errs, "moderation score_threshold must be in [0,1]")
	}
	switch c.Pipeline.Moderation.Provider {
	case "", "openai", "pattern", "llm", "auto":
	default:
		errs = append(errs, fmt.Sprintf("unknown moderation provider %q", c.Pipeline.Moderation.Provider))
	}
	if c.Pipeline.Blocking.BlockOnViolation && c.Pipeline.Blocking.BlockMessage == "" {
		errs = append(errs, "blocking.block_message must be set when block_on_violation is enabled")
	}
	if c.Pipeline.Logging.PreviewLimit < 0 {
		errs = append(errs, "logging.preview_limit must not be negative")
	}
	if c.Audit.MemoryEnabled && c.Audit.MemoryCapacity <= 0 {
		errs = append(errs, "audit.memory_capacity must be positive")
	}
	if c.Audit.DatabaseEnabled {
		switch c.Database.Driver {
		case "sqlite", "mysql", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
		}
	}
	if c.Audit.RedisEnabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr must be set when the redis audit sink is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// BuildLogger 按日志配置构建 zap 记录器
func (l *LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("config: parse log level: %w", err)
	}

	encoding := l.Format
	if encoding == "" {
		encoding = "json"
	}
	outputs := l.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          encoding,
		EncoderConfig:     zap.NewProductionEncoderConfig(),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !l.EnableCaller,
		DisableStacktrace: true,
	}
	return zapCfg.Build()
}
