package guardrails

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/finetunelab/guardrails/injection"
	"github.com/finetunelab/guardrails/internal/metrics"
	"github.com/finetunelab/guardrails/moderation"
	"github.com/finetunelab/guardrails/pii"
)

// tracerName otel tracer 标识
const tracerName = "github.com/finetunelab/guardrails"

// auditQueueSize 异步审计队列容量,写满后丢弃并计数
const auditQueueSize = 256

// batchConcurrency CheckInputBatch 的并发上限
const batchConcurrency = 8

// Option Service 可选依赖注入
type Option func(*Service)

// WithAuditSink 注册审计落盘目标,可多次调用注册多个
func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithCollector 注入指标收集器
func WithCollector(collector *metrics.Collector) Option {
	return func(s *Service) { s.collector = collector }
}

// WithModerationProvider 注入外部审核提供者(覆盖配置推导的提供者)
func WithModerationProvider(provider moderation.Provider) Option {
	return func(s *Service) { s.externalProvider = provider }
}

// Service 内容安全管线编排器
// 构造后不可变,任意并发调用安全;Close 之后不可再调用检查方法。
type Service struct {
	cfg       Config
	detector  *injection.Detector
	moderator *moderation.Moderator
	redactor  *pii.Redactor

	externalProvider moderation.Provider

	sinks     []AuditSink
	collector *metrics.Collector
	logger    *zap.Logger
	tracer    trace.Tracer

	auditCh   chan *AuditLogEntry
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewService 创建管线编排器并启动异步审计分发
func NewService(cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "guardrails")),
		tracer:  otel.Tracer(tracerName),
		auditCh: make(chan *AuditLogEntry, auditQueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.detector = injection.NewDetector(cfg.Injection)

	if s.externalProvider != nil {
		s.moderator = moderation.NewModeratorWithProvider(cfg.Moderation, s.externalProvider, logger)
	} else {
		s.moderator = moderation.NewModerator(cfg.Moderation, logger)
	}

	s.redactor = pii.NewRedactor(cfg.PII)

	s.wg.Add(1)
	go s.auditLoop()

	return s
}

// Config 返回管线配置
func (s *Service) Config() Config { return s.cfg }

// Enabled 返回管线是否启用
func (s *Service) Enabled() bool { return s.cfg.Enabled }

// Close 停止审计分发并等待队列排空
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.auditCh)
		s.wg.Wait()
	})
}

// CheckInput 对用户输入执行完整检查管线。
// 三个子检查全部执行并收集全部违规;PII 在输入侧只检测不改写,
// 也不参与阻断决策。
func (s *Service) CheckInput(ctx context.Context, content string, opts CheckOptions) *CheckResult {
	ctx, span := s.tracer.Start(ctx, "guardrails.check_input")
	defer span.End()

	start := time.Now()
	result := &CheckResult{
		Passed:           true,
		SanitizedContent: content,
		CheckType:        CheckTypeInput,
		Timestamp:        start,
	}

	if !s.cfg.Enabled {
		result.Duration = time.Since(start)
		return result
	}

	blockable := false

	// 提示注入检测
	if s.cfg.Injection.Enabled && !opts.SkipPromptInjection {
		det := s.detector.Detect(content)
		if det.IsInjection {
			severity := SeverityHigh
			if det.Confidence >= s.cfg.Injection.CriticalThreshold {
				severity = SeverityCritical
			}
			result.Violations = append(result.Violations, Violation{
				Type:       violationForInjection(det.Category),
				Severity:   severity,
				Message:    fmt.Sprintf("prompt injection detected (category=%s)", det.Category),
				Confidence: det.Confidence,
				Metadata: map[string]any{
					"category": string(det.Category),
					"patterns": det.Patterns,
				},
			})
			blockable = true
		}
	}

	// 内容审核
	if s.cfg.Moderation.Enabled && !opts.SkipContentModeration {
		mod := s.moderator.Moderate(ctx, content)
		result.Violations = append(result.Violations, s.moderationViolations(mod)...)
		s.recordDegradation(mod)
		if s.moderator.ShouldBlock(mod) {
			blockable = true
		}
	}

	// PII 检测(只检测,不改写输入)
	if s.cfg.PII.Enabled && !opts.SkipPIIRedaction {
		detected := s.redactor.Detect(content)
		if detected.HasPII {
			result.Violations = append(result.Violations, Violation{
				Type:     ViolationPIIDetected,
				Severity: severityForRisk(detected.RiskLevel),
				Message:  fmt.Sprintf("detected %d PII match(es), risk=%s", len(detected.Matches), detected.RiskLevel),
				Metadata: map[string]any{
					"risk_level":  string(detected.RiskLevel),
					"type_counts": detected.TypeCounts(),
				},
			})
		}
	}

	result.Passed = len(result.Violations) == 0
	if blockable && s.cfg.Blocking.BlockOnViolation && !s.bypassAllowed(opts) {
		result.Blocked = true
		result.SanitizedContent = s.cfg.Blocking.BlockMessage
	}
	result.Duration = time.Since(start)

	s.finish(span, result, opts, content)
	return result
}

// CheckOutput 对模型输出执行检查管线:内容审核 + PII 脱敏改写。
// 阻断时阻断消息优先于脱敏文本。
func (s *Service) CheckOutput(ctx context.Context, content string, opts CheckOptions) *CheckResult {
	ctx, span := s.tracer.Start(ctx, "guardrails.check_output")
	defer span.End()

	start := time.Now()
	result := &CheckResult{
		Passed:           true,
		SanitizedContent: content,
		CheckType:        CheckTypeOutput,
		Timestamp:        start,
	}

	if !s.cfg.Enabled {
		result.Duration = time.Since(start)
		return result
	}

	blockable := false

	// 内容审核
	if s.cfg.Moderation.Enabled && !opts.SkipContentModeration {
		mod := s.moderator.Moderate(ctx, content)
		result.Violations = append(result.Violations, s.moderationViolations(mod)...)
		s.recordDegradation(mod)
		if s.moderator.ShouldBlock(mod) {
			blockable = true
		}
	}

	// PII 脱敏改写
	if s.cfg.PII.Enabled && s.cfg.PII.RedactInResponses && !opts.SkipPIIRedaction {
		redacted := s.redactor.Redact(content)
		if redacted.HasPII {
			result.SanitizedContent = redacted.RedactedText
			result.Violations = append(result.Violations, Violation{
				Type:     ViolationPIIDetected,
				Severity: severityForRisk(redacted.RiskLevel),
				Message:  fmt.Sprintf("redacted %d PII match(es), risk=%s", len(redacted.Matches), redacted.RiskLevel),
				Metadata: map[string]any{
					"redacted":    true,
					"risk_level":  string(redacted.RiskLevel),
					"type_counts": redacted.TypeCounts(),
				},
			})
			if s.collector != nil {
				for piiType, count := range redacted.TypeCounts() {
					s.collector.RecordPIIRedactions(string(piiType), count)
				}
			}
		}
	}

	result.Passed = len(result.Violations) == 0
	if blockable && s.cfg.Blocking.BlockOnViolation && !s.bypassAllowed(opts) {
		result.Blocked = true
		// 阻断消息覆盖脱敏文本
		result.SanitizedContent = s.cfg.Blocking.BlockMessage
	}
	result.Duration = time.Since(start)

	s.finish(span, result, opts, content)
	return result
}

// CheckInputBatch 并发检查一批输入,结果与入参同序。
// 上下文取消时返回已取消错误,结果切片不可用。
func (s *Service) CheckInputBatch(ctx context.Context, contents []string, opts CheckOptions) ([]*CheckResult, error) {
	results := make([]*CheckResult, len(contents))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, content := range contents {
		i, content := i, content
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.CheckInput(ctx, content, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CheckPromptInjection 直接执行注入检测,绕过管线
func (s *Service) CheckPromptInjection(content string) injection.Result {
	return s.detector.Detect(content)
}

// ModerateContent 直接执行内容审核,绕过管线
func (s *Service) ModerateContent(ctx context.Context, content string) *moderation.Result {
	return s.moderator.Moderate(ctx, content)
}

// RedactPII 直接执行 PII 脱敏,绕过管线
func (s *Service) RedactPII(text string) *pii.Result {
	return s.redactor.Redact(text)
}

// moderationViolations 将审核结果折叠为违规列表。
// 降级且未分类的结果合成一条低置信度 policy_violation,
// 审计侧据此区分"未违规"与"无法评估"。
func (s *Service) moderationViolations(mod *moderation.Result) []Violation {
	if mod == nil {
		return nil
	}
	if mod.Degraded && !mod.Flagged {
		return []Violation{{
			Type:       ViolationPolicyViolation,
			Severity:   SeverityLow,
			Message:    "content moderation unavailable, content not classified",
			Confidence: 0.1,
			Metadata: map[string]any{
				"degraded": true,
				"reason":   mod.DegradedReason,
			},
		}}
	}
	if !mod.Flagged {
		return nil
	}

	var violations []Violation
	if mod.FailClosed {
		violations = append(violations, Violation{
			Type:     ViolationPolicyViolation,
			Severity: SeverityHigh,
			Message:  "content moderation timed out under fail-closed policy",
			Metadata: map[string]any{"degraded": true, "fail_closed": true},
		})
		return violations
	}

	for _, category := range mod.FlaggedCategories() {
		score := mod.CategoryScores[category]
		severity := SeverityMedium
		switch {
		case score >= s.cfg.Moderation.CriticalScore:
			severity = SeverityCritical
		case score >= s.cfg.Moderation.HighScore:
			severity = SeverityHigh
		}
		violations = append(violations, Violation{
			Type:       violationForCategory(category),
			Severity:   severity,
			Message:    fmt.Sprintf("content flagged for %s", category),
			Confidence: score,
			Metadata: map[string]any{
				"category": string(category),
				"provider": string(mod.Provider),
			},
		})
	}
	return violations
}

// recordDegradation 审核降级写入日志与指标。
// 完整原因串只进日志,指标标签用有界的降级枚举,避免序列爆炸。
func (s *Service) recordDegradation(mod *moderation.Result) {
	if mod == nil || mod.DegradedReason == "" {
		return
	}
	s.logger.Warn("moderation degraded",
		zap.String("provider", string(mod.Provider)),
		zap.String("code", string(mod.DegradedCode)),
		zap.String("reason", mod.DegradedReason))
	if s.collector != nil {
		s.collector.RecordModerationFallback(string(mod.Provider), string(mod.DegradedCode))
	}
}

// bypassAllowed 旁路判定:需配置允许、调用方申请,且角色命中白名单
func (s *Service) bypassAllowed(opts CheckOptions) bool {
	if !s.cfg.Blocking.AllowBypass || !opts.BypassBlocking {
		return false
	}
	if len(s.cfg.Blocking.BypassRoles) == 0 {
		return true
	}
	for _, role := range s.cfg.Blocking.BypassRoles {
		if role == opts.Role {
			return true
		}
	}
	return false
}

// finish 统一收尾:span 属性、指标、日志与异步审计
func (s *Service) finish(span trace.Span, result *CheckResult, opts CheckOptions, content string) {
	span.SetAttributes(
		attribute.String("guardrails.check_type", string(result.CheckType)),
		attribute.Bool("guardrails.passed", result.Passed),
		attribute.Bool("guardrails.blocked", result.Blocked),
		attribute.Int("guardrails.violations", len(result.Violations)),
	)

	if s.collector != nil {
		s.collector.RecordCheck(string(result.CheckType), result.Passed, result.Blocked, result.Duration)
		for _, v := range result.Violations {
			s.collector.RecordViolation(string(v.Type), string(v.Severity))
		}
	}

	if !result.Passed && s.cfg.Logging.LogViolations {
		s.logger.Warn("guardrail violations detected",
			zap.String("check_type", string(result.CheckType)),
			zap.String("user_id", opts.UserID),
			zap.Bool("blocked", result.Blocked),
			zap.Int("violations", len(result.Violations)),
			zap.String("severity", string(result.HighestSeverity())))
	}

	if !s.shouldAudit(result) || len(s.sinks) == 0 {
		return
	}

	entry := NewAuditLogEntry(result, opts, s.auditPreview(content), len(content))
	select {
	case s.auditCh <- entry:
	default:
		// 队列满,丢弃并计数
		if s.collector != nil {
			s.collector.RecordAuditDrop()
		}
		s.logger.Warn("audit queue full, entry dropped", zap.String("entry_id", entry.ID))
	}
}

// shouldAudit 审计条件:全量记录,或仅记录违规
func (s *Service) shouldAudit(result *CheckResult) bool {
	if s.cfg.Logging.LogAllChecks {
		return true
	}
	return s.cfg.Logging.LogViolations && len(result.Violations) > 0
}

// auditPreview 生成审计内容预览,按配置先行脱敏再截断
func (s *Service) auditPreview(content string) string {
	limit := s.cfg.Logging.PreviewLimit
	if limit <= 0 {
		limit = 500
	}
	if s.cfg.Logging.RedactSensitiveData {
		content = s.redactor.RedactForLogging(content)
	}
	return pii.Preview(content, limit)
}

// auditLoop 异步审计分发循环,逐条写入全部落盘目标
func (s *Service) auditLoop() {
	defer s.wg.Done()

	for entry := range s.auditCh {
		// 落盘自身限时,不受调用方上下文影响
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		for _, sink := range s.sinks {
			if err := sink.Write(ctx, entry); err != nil {
				s.logger.Error("audit sink write failed",
					zap.String("sink", sink.Name()),
					zap.String("entry_id", entry.ID),
					zap.Error(err))
			}
		}
		cancel()
	}
}
