// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector 指标收集器
type Collector struct {
	// 检查管线指标
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec

	// 违规指标
	violationsTotal *prometheus.CounterVec

	// 审核降级指标
	moderationFallbacksTotal *prometheus.CounterVec

	// PII 指标
	piiRedactionsTotal *prometheus.CounterVec

	// 审计队列指标
	auditDropsTotal prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Total number of guardrail checks",
		},
		[]string{"check_type", "passed", "blocked"},
	)

	c.checkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Guardrail check duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"check_type"},
	)

	c.violationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Total number of detected violations",
		},
		[]string{"type", "severity"},
	)

	c.moderationFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_fallbacks_total",
			Help:      "Total number of moderation provider fallbacks and degradations",
		},
		[]string{"provider", "reason"},
	)

	c.piiRedactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pii_redactions_total",
			Help:      "Total number of redacted PII matches",
		},
		[]string{"type"},
	)

	c.auditDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_drops_total",
			Help:      "Total number of audit entries dropped due to a full queue",
		},
	)

	return c
}

// RecordCheck 记录一次管线检查
func (c *Collector) RecordCheck(checkType string, passed, blocked bool, duration time.Duration) {
	c.checksTotal.WithLabelValues(checkType, strconv.FormatBool(passed), strconv.FormatBool(blocked)).Inc()
	c.checkDuration.WithLabelValues(checkType).Observe(duration.Seconds())
}

// RecordViolation 记录一条违规
func (c *Collector) RecordViolation(violationType, severity string) {
	c.violationsTotal.WithLabelValues(violationType, severity).Inc()
}

// RecordModerationFallback 记录一次审核提供者降级
func (c *Collector) RecordModerationFallback(provider, reason string) {
	c.moderationFallbacksTotal.WithLabelValues(provider, reason).Inc()
}

// RecordPIIRedactions 记录某一 PII 类型的脱敏次数
func (c *Collector) RecordPIIRedactions(piiType string, count int) {
	if count <= 0 {
		return
	}
	c.piiRedactionsTotal.WithLabelValues(piiType).Add(float64(count))
}

// RecordAuditDrop 记录一条因队列满被丢弃的审计记录
func (c *Collector) RecordAuditDrop() {
	c.auditDropsTotal.Inc()
}
