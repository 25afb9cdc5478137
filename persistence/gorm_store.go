package persistence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/finetunelab/guardrails/guardrails"
)

var _ guardrails.AuditSink = (*GormAuditStore)(nil)

// GormAuditStore 基于 GORM 的关系型审计落盘
// 支持 sqlite / mysql / postgres,由调用方注入已初始化的 *gorm.DB
type GormAuditStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormAuditStore 创建落盘并自动迁移审计表
func NewGormAuditStore(db *gorm.DB, logger *zap.Logger) (*GormAuditStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&guardrails.AuditLogEntry{}); err != nil {
		return nil, fmt.Errorf("persistence: migrate audit table: %w", err)
	}
	return &GormAuditStore{
		db:     db,
		logger: logger.With(zap.String("component", "gorm_audit_store")),
	}, nil
}

// Name 返回落盘目标名称
func (s *GormAuditStore) Name() string { return "database" }

// Write 插入一条审计记录
func (s *GormAuditStore) Write(ctx context.Context, entry *guardrails.AuditLogEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("persistence: insert audit entry: %w", err)
	}
	return nil
}

// ListRecent 从新到旧返回最近 limit 条记录
func (s *GormAuditStore) ListRecent(ctx context.Context, limit int) ([]*guardrails.AuditLogEntry, error) {
	var entries []*guardrails.AuditLogEntry
	err := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("persistence: list audit entries: %w", err)
	}
	return entries, nil
}

// ListBlocked 从新到旧返回最近 limit 条被阻断的记录
func (s *GormAuditStore) ListBlocked(ctx context.Context, limit int) ([]*guardrails.AuditLogEntry, error) {
	var entries []*guardrails.AuditLogEntry
	err := s.db.WithContext(ctx).
		Where("blocked = ?", true).
		Order("timestamp DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("persistence: list blocked entries: %w", err)
	}
	return entries, nil
}

// CountByUser 统计指定用户的审计记录数
func (s *GormAuditStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&guardrails.AuditLogEntry{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("persistence: count audit entries: %w", err)
	}
	return count, nil
}

// PurgeOlderThan 删除给定时刻之前的记录,返回删除条数
func (s *GormAuditStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&guardrails.AuditLogEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("persistence: purge audit entries: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info("purged audit entries",
			zap.Int64("count", result.RowsAffected),
			zap.Time("cutoff", cutoff))
	}
	return result.RowsAffected, nil
}
