package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.checksTotal)
	assert.NotNil(t, collector.checkDuration)
	assert.NotNil(t, collector.violationsTotal)
	assert.NotNil(t, collector.moderationFallbacksTotal)
	assert.NotNil(t, collector.piiRedactionsTotal)
	assert.NotNil(t, collector.auditDropsTotal)
}

func TestCollector_RecordCheck(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCheck("input", true, false, 5*time.Millisecond)
	collector.RecordCheck("input", false, true, 12*time.Millisecond)
	collector.RecordCheck("output", true, false, 3*time.Millisecond)

	count := testutil.CollectAndCount(collector.checksTotal)
	assert.Equal(t, 3, count)

	passed := testutil.ToFloat64(collector.checksTotal.WithLabelValues("input", "true", "false"))
	assert.Equal(t, 1.0, passed)
}

func TestCollector_RecordViolation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordViolation("prompt_injection", "critical")
	collector.RecordViolation("prompt_injection", "critical")
	collector.RecordViolation("pii_detected", "high")

	got := testutil.ToFloat64(collector.violationsTotal.WithLabelValues("prompt_injection", "critical"))
	assert.Equal(t, 2.0, got)
}

func TestCollector_RecordModerationFallback(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordModerationFallback("openai", "provider_error")

	got := testutil.ToFloat64(collector.moderationFallbacksTotal.WithLabelValues("openai", "provider_error"))
	assert.Equal(t, 1.0, got)
}

func TestCollector_RecordPIIRedactions(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordPIIRedactions("email", 2)
	collector.RecordPIIRedactions("email", 0) // 零值不计

	got := testutil.ToFloat64(collector.piiRedactionsTotal.WithLabelValues("email"))
	assert.Equal(t, 2.0, got)
}

func TestCollector_RecordAuditDrop(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordAuditDrop()
	collector.RecordAuditDrop()

	got := testutil.ToFloat64(collector.auditDropsTotal)
	assert.Equal(t, 2.0, got)
}
