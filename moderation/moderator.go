package moderation

import (
	"context"
	"errors"
	"net"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// tracerName otel tracer 标识
const tracerName = "github.com/finetunelab/guardrails/moderation"

// FailurePolicy 提供者非超时错误的处理策略
type FailurePolicy string

const (
	// FailurePolicyFallback 重跑本地 pattern 提供者
	FailurePolicyFallback FailurePolicy = "fallback"
	// FailurePolicySoft 返回带降级标记的未标记结果
	FailurePolicySoft FailurePolicy = "soft"
)

// DegradeCode 降级方式的有界枚举。
// 指标标签只允许使用该枚举,完整错误串只进日志与审计。
type DegradeCode string

const (
	DegradeProviderErrorFallback DegradeCode = "provider_error_fallback"
	DegradeProviderErrorSoft     DegradeCode = "provider_error_soft"
	DegradeTimeoutFailOpen       DegradeCode = "timeout_fail_open"
	DegradeTimeoutFailClosed     DegradeCode = "timeout_fail_closed"
)

// TimeoutPolicy 提供者超时/取消的处理策略
type TimeoutPolicy string

const (
	// TimeoutFailOpen 视为未标记，记录告警
	TimeoutFailOpen TimeoutPolicy = "fail_open"
	// TimeoutFailClosed 视为拦截
	TimeoutFailClosed TimeoutPolicy = "fail_closed"
)

// Config 审核器配置
type Config struct {
	// Enabled 是否启用内容审核
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
	// Provider 提供者选择: openai | pattern | llm | auto
	Provider ProviderKind `yaml:"provider" json:"provider" env:"PROVIDER"`
	// ScoreThreshold 任一类目评分达到该值即触发拦截
	ScoreThreshold float64 `yaml:"score_threshold" json:"score_threshold" env:"SCORE_THRESHOLD"`
	// BlockCategories 被标记即拦截的类目白名单
	BlockCategories []Category `yaml:"block_categories" json:"block_categories" env:"BLOCK_CATEGORIES"`
	// OnProviderError 非超时提供者错误策略: fallback | soft
	OnProviderError FailurePolicy `yaml:"on_provider_error" json:"on_provider_error" env:"ON_PROVIDER_ERROR"`
	// TimeoutPolicy 超时/取消策略: fail_open | fail_closed
	TimeoutPolicy TimeoutPolicy `yaml:"timeout_policy" json:"timeout_policy" env:"TIMEOUT_POLICY"`
	// CriticalScore 违规严重级别升为 critical 的评分阈值
	CriticalScore float64 `yaml:"critical_score" json:"critical_score" env:"CRITICAL_SCORE"`
	// HighScore 违规严重级别升为 high 的评分阈值
	HighScore float64 `yaml:"high_score" json:"high_score" env:"HIGH_SCORE"`
	// OpenAI 外部分类服务配置
	OpenAI OpenAIConfig `yaml:"openai" json:"openai" env:"OPENAI"`
	// LLM 聊天补全分类器配置
	LLM LLMConfig `yaml:"llm" json:"llm" env:"LLM"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Provider:       ProviderAuto,
		ScoreThreshold: 0.8,
		BlockCategories: []Category{
			CategoryHateThreatening,
			CategoryHarassmentThreat,
			CategorySelfHarmIntent,
			CategorySelfHarmInstructions,
			CategorySexualMinors,
			CategoryViolenceGraphic,
			CategoryIllicit,
		},
		OnProviderError: FailurePolicyFallback,
		TimeoutPolicy:   TimeoutFailOpen,
		CriticalScore:   0.9,
		HighScore:       0.7,
		OpenAI:          DefaultOpenAIConfig(),
	}
}

// Moderator 内容审核器
// 持有全部提供者实例，按配置逐调用解析实际提供者。
// 除配置外无共享可变状态，任意并发调用安全。
type Moderator struct {
	cfg      Config
	external Provider
	pattern  *PatternProvider
	logger   *zap.Logger
}

// NewModerator 创建审核器，按配置构建外部提供者
func NewModerator(cfg Config, logger *zap.Logger) *Moderator {
	var external Provider
	switch cfg.Provider {
	case ProviderLLM:
		if cfg.LLM.APIKey != "" {
			external = NewLLMProvider(cfg.LLM)
		}
	default:
		if cfg.OpenAI.Configured() {
			external = NewOpenAIProvider(cfg.OpenAI)
		}
	}
	return NewModeratorWithProvider(cfg, external, logger)
}

// NewModeratorWithProvider 创建审核器并注入外部提供者（测试与自定义后端用）
func NewModeratorWithProvider(cfg Config, external Provider, logger *zap.Logger) *Moderator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Moderator{
		cfg:      cfg,
		external: external,
		pattern:  NewPatternProvider(),
		logger:   logger.With(zap.String("component", "moderator")),
	}
}

// Config 返回审核器配置
func (m *Moderator) Config() Config {
	return m.cfg
}

// resolve 逐调用解析实际提供者，auto 模式不跨调用缓存决策
func (m *Moderator) resolve() Provider {
	switch m.cfg.Provider {
	case ProviderPattern:
		return m.pattern
	case ProviderOpenAI, ProviderLLM:
		if m.external != nil {
			return m.external
		}
		return m.pattern
	default: // auto
		if m.external != nil {
			return m.external
		}
		return m.pattern
	}
}

// Moderate 审核单条文本。
// 总是返回合法结果，提供者错误在本层被吸收为降级语义，永不向上传播。
func (m *Moderator) Moderate(ctx context.Context, content string) *Result {
	if !m.cfg.Enabled {
		return NewResult(ProviderPattern)
	}

	provider := m.resolve()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "moderation.provider_call")
	span.SetAttributes(attribute.String("moderation.provider", string(provider.Name())))
	result, err := provider.Moderate(ctx, content)
	span.SetAttributes(attribute.Bool("moderation.degraded", err != nil))
	span.End()

	if err == nil {
		return result
	}

	if isTimeout(err) {
		return m.handleTimeout(provider.Name(), err)
	}

	// 非超时错误：fallback 或软降级
	if m.cfg.OnProviderError == FailurePolicyFallback && provider.Name() != ProviderPattern {
		m.logger.Warn("moderation provider failed, falling back to pattern provider",
			zap.String("provider", string(provider.Name())),
			zap.Error(err))
		fallback, _ := m.pattern.Moderate(ctx, content)
		fallback.DegradedCode = DegradeProviderErrorFallback
		fallback.DegradedReason = "provider error: " + err.Error()
		return fallback
	}

	m.logger.Warn("moderation provider failed, returning soft-degraded result",
		zap.String("provider", string(provider.Name())),
		zap.Error(err))
	degraded := NewResult(provider.Name())
	degraded.Degraded = true
	degraded.DegradedCode = DegradeProviderErrorSoft
	degraded.DegradedReason = "provider error: " + err.Error()
	return degraded
}

// handleTimeout 按配置把超时解析为 fail-open 或 fail-closed
func (m *Moderator) handleTimeout(kind ProviderKind, err error) *Result {
	if m.cfg.TimeoutPolicy == TimeoutFailClosed {
		m.logger.Warn("moderation provider timed out, failing closed",
			zap.String("provider", string(kind)),
			zap.Error(err))
		result := NewResult(kind)
		result.Flagged = true
		result.Degraded = true
		result.FailClosed = true
		result.DegradedCode = DegradeTimeoutFailClosed
		result.DegradedReason = "provider timeout (fail_closed): " + err.Error()
		return result
	}

	m.logger.Warn("moderation provider timed out, failing open",
		zap.String("provider", string(kind)),
		zap.Error(err))
	result := NewResult(kind)
	result.Degraded = true
	result.DegradedCode = DegradeTimeoutFailOpen
	result.DegradedReason = "provider timeout (fail_open): " + err.Error()
	return result
}

// ShouldBlock 判定审核结果是否应拦截内容
func (m *Moderator) ShouldBlock(result *Result) bool {
	if result == nil {
		return false
	}
	if result.FailClosed {
		return true
	}
	if !result.Flagged {
		return false
	}

	for _, c := range result.FlaggedCategories() {
		for _, blocked := range m.cfg.BlockCategories {
			if c == blocked {
				return true
			}
		}
	}

	for _, c := range AllCategories() {
		if result.CategoryScores[c] >= m.cfg.ScoreThreshold {
			return true
		}
	}

	return false
}

// isTimeout 判断错误是否为超时/取消
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
