package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/finetunelab/guardrails/guardrails"
)

// RedisConfig Redis 审计落盘配置
type RedisConfig struct {
	// Addr Redis 地址 host:port
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`
	// Password 访问密码,可为空
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	// DB 数据库编号
	DB int `yaml:"db" json:"db" env:"DB"`
	// Stream 审计流键名
	Stream string `yaml:"stream" json:"stream" env:"STREAM"`
	// MaxLen 流的近似保留长度,0 表示不裁剪
	MaxLen int64 `yaml:"max_len" json:"max_len" env:"MAX_LEN"`
}

// DefaultRedisConfig 返回默认配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Stream: "guardrails:audit",
		MaxLen: 10000,
	}
}

var _ guardrails.AuditSink = (*RedisAuditStore)(nil)

// RedisAuditStore 基于 Redis Stream 的审计落盘
type RedisAuditStore struct {
	client *redis.Client
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisAuditStore 创建 Redis 审计落盘并校验连通性
func NewRedisAuditStore(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisAuditStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("persistence: redis ping: %w", err)
	}
	return NewRedisAuditStoreWithClient(client, cfg, logger), nil
}

// NewRedisAuditStoreWithClient 复用既有客户端创建落盘,测试与连接池共享用
func NewRedisAuditStoreWithClient(client *redis.Client, cfg RedisConfig, logger *zap.Logger) *RedisAuditStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultRedisConfig().Stream
	}
	return &RedisAuditStore{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "redis_audit_store")),
	}
}

// Name 返回落盘目标名称
func (s *RedisAuditStore) Name() string { return "redis" }

// Write 将审计记录以 JSON 追加到流尾,按 MaxLen 近似裁剪
func (s *RedisAuditStore) Write(ctx context.Context, entry *guardrails.AuditLogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("persistence: marshal audit entry: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.cfg.Stream,
		Values: map[string]any{
			"entry_id": entry.ID,
			"entry":    string(payload),
		},
	}
	if s.cfg.MaxLen > 0 {
		args.MaxLen = s.cfg.MaxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("persistence: xadd audit entry: %w", err)
	}
	return nil
}

// ReadRecent 从新到旧读取最近 count 条审计记录
func (s *RedisAuditStore) ReadRecent(ctx context.Context, count int64) ([]*guardrails.AuditLogEntry, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.cfg.Stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("persistence: xrevrange: %w", err)
	}

	entries := make([]*guardrails.AuditLogEntry, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["entry"].(string)
		if !ok {
			s.logger.Warn("audit stream message missing entry field", zap.String("stream_id", msg.ID))
			continue
		}
		var entry guardrails.AuditLogEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			s.logger.Warn("audit stream message undecodable",
				zap.String("stream_id", msg.ID), zap.Error(err))
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// Len 返回流当前长度
func (s *RedisAuditStore) Len(ctx context.Context) (int64, error) {
	return s.client.XLen(ctx, s.cfg.Stream).Result()
}

// Close 关闭底层客户端
func (s *RedisAuditStore) Close() error {
	return s.client.Close()
}
