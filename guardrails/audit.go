package guardrails

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry 单次检查的审计记录
type AuditLogEntry struct {
	ID             string        `json:"id" gorm:"primaryKey;size:36"`
	Timestamp      time.Time     `json:"timestamp" gorm:"index"`
	CheckType      CheckType     `json:"check_type" gorm:"size:16;index"`
	UserID         string        `json:"user_id,omitempty" gorm:"size:128;index"`
	SessionID      string        `json:"session_id,omitempty" gorm:"size:128"`
	Passed         bool          `json:"passed"`
	Blocked        bool          `json:"blocked" gorm:"index"`
	Violations     []Violation   `json:"violations,omitempty" gorm:"serializer:json"`
	ContentPreview string        `json:"content_preview,omitempty" gorm:"size:512"`
	ContentLength  int           `json:"content_length"`
	Duration       time.Duration `json:"duration"`
}

// NewAuditLogEntry 由检查结果构造审计记录并分配 ID
// preview 由调用方先行脱敏/截断,contentLength 是原始内容长度
func NewAuditLogEntry(result *CheckResult, opts CheckOptions, preview string, contentLength int) *AuditLogEntry {
	return &AuditLogEntry{
		ID:             uuid.New().String(),
		Timestamp:      result.Timestamp,
		CheckType:      result.CheckType,
		UserID:         opts.UserID,
		SessionID:      opts.SessionID,
		Passed:         result.Passed,
		Blocked:        result.Blocked,
		Violations:     result.Violations,
		ContentPreview: preview,
		ContentLength:  contentLength,
		Duration:       result.Duration,
	}
}

// AuditSink 审计记录落盘接口
// Write 失败只记日志,不影响检查结果
type AuditSink interface {
	// Write 持久化一条审计记录
	Write(ctx context.Context, entry *AuditLogEntry) error
	// Name 返回落盘目标名称
	Name() string
}

// AuditQuery 内存审计查询条件,零值字段不参与过滤
type AuditQuery struct {
	UserID      string
	CheckType   CheckType
	OnlyBlocked bool
	Limit       int
}

// MemorySink 环形缓冲内存审计落盘,测试与单机部署用
type MemorySink struct {
	mu       sync.RWMutex
	entries  []*AuditLogEntry
	capacity int
	next     int
	full     bool
}

// NewMemorySink 创建固定容量的内存审计落盘
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemorySink{
		entries:  make([]*AuditLogEntry, capacity),
		capacity: capacity,
	}
}

// Name 返回落盘目标名称
func (s *MemorySink) Name() string { return "memory" }

// Write 写入一条审计记录,容量满时覆盖最旧记录
func (s *MemorySink) Write(_ context.Context, entry *AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[s.next] = entry
	s.next = (s.next + 1) % s.capacity
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Count 返回当前保留的记录数
func (s *MemorySink) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.full {
		return s.capacity
	}
	return s.next
}

// Query 按条件过滤记录,从新到旧返回
func (s *MemorySink) Query(q AuditQuery) []*AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.next
	if s.full {
		count = s.capacity
	}

	var out []*AuditLogEntry
	for i := 0; i < count; i++ {
		// 从最新写入位置向前回溯
		idx := (s.next - 1 - i + s.capacity) % s.capacity
		entry := s.entries[idx]
		if entry == nil {
			continue
		}
		if q.UserID != "" && entry.UserID != q.UserID {
			continue
		}
		if q.CheckType != "" && entry.CheckType != q.CheckType {
			continue
		}
		if q.OnlyBlocked && !entry.Blocked {
			continue
		}
		out = append(out, entry)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// Clear 清空全部记录
func (s *MemorySink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]*AuditLogEntry, s.capacity)
	s.next = 0
	s.full = false
}
