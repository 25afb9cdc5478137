package guardrails

import (
	"time"

	"github.com/finetunelab/guardrails/injection"
	"github.com/finetunelab/guardrails/moderation"
	"github.com/finetunelab/guardrails/pii"
)

// CheckType 检查管线类型
type CheckType string

const (
	CheckTypeInput  CheckType = "input"
	CheckTypeOutput CheckType = "output"
)

// ViolationType 违规类型
type ViolationType string

const (
	ViolationPromptInjection  ViolationType = "prompt_injection"
	ViolationJailbreakAttempt ViolationType = "jailbreak_attempt"
	ViolationPIIDetected      ViolationType = "pii_detected"
	ViolationPolicyViolation  ViolationType = "policy_violation"
	ViolationHateSpeech       ViolationType = "hate_speech"
	ViolationHarassment       ViolationType = "harassment"
	ViolationSelfHarm         ViolationType = "self_harm"
	ViolationSexualContent    ViolationType = "sexual_content"
	ViolationViolence         ViolationType = "violence"
)

// Severity 违规严重程度
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank 排序用,数字越大越严重
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Violation 单条违规记录
type Violation struct {
	Type       ViolationType  `json:"type"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Confidence float64        `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CheckResult 管线检查结果
// SanitizedContent 是调用方应继续使用的内容:通过时为原文(输出侧
// 可能是脱敏后文本),阻断时为配置的阻断消息。
type CheckResult struct {
	Passed           bool          `json:"passed"`
	Blocked          bool          `json:"blocked"`
	Violations       []Violation   `json:"violations,omitempty"`
	SanitizedContent string        `json:"sanitized_content"`
	CheckType        CheckType     `json:"check_type"`
	Duration         time.Duration `json:"duration"`
	Timestamp        time.Time     `json:"timestamp"`
}

// HasViolation 判断结果中是否包含指定类型的违规
func (r *CheckResult) HasViolation(t ViolationType) bool {
	for _, v := range r.Violations {
		if v.Type == t {
			return true
		}
	}
	return false
}

// HighestSeverity 返回违规列表中的最高严重程度,无违规时返回空串
func (r *CheckResult) HighestSeverity() Severity {
	var highest Severity
	for _, v := range r.Violations {
		if severityRank[v.Severity] > severityRank[highest] {
			highest = v.Severity
		}
	}
	return highest
}

// CheckOptions 单次检查的调用方选项
type CheckOptions struct {
	// UserID / SessionID 进入审计日志的调用方标识
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	// Role 旁路角色校验用
	Role string `json:"role,omitempty"`

	// Skip* 跳过对应子检查
	SkipPromptInjection   bool `json:"skip_prompt_injection,omitempty"`
	SkipContentModeration bool `json:"skip_content_moderation,omitempty"`
	SkipPIIRedaction      bool `json:"skip_pii_redaction,omitempty"`

	// BypassBlocking 记录违规但不阻断,受 Blocking.AllowBypass 约束
	BypassBlocking bool `json:"bypass_blocking,omitempty"`
}

// BlockingConfig 阻断策略配置
type BlockingConfig struct {
	// BlockOnViolation 违规是否触发阻断
	BlockOnViolation bool `yaml:"block_on_violation" json:"block_on_violation" env:"BLOCK_ON_VIOLATION"`
	// BlockMessage 阻断时返回给调用方的替代文本
	BlockMessage string `yaml:"block_message" json:"block_message" env:"BLOCK_MESSAGE"`
	// AllowBypass 是否允许调用方申请旁路
	AllowBypass bool `yaml:"allow_bypass" json:"allow_bypass" env:"ALLOW_BYPASS"`
	// BypassRoles 旁路角色白名单,为空则不校验角色
	BypassRoles []string `yaml:"bypass_roles" json:"bypass_roles" env:"BYPASS_ROLES"`
}

// LoggingConfig 审计与日志策略
type LoggingConfig struct {
	// LogViolations 产生违规的检查写入审计
	LogViolations bool `yaml:"log_violations" json:"log_violations" env:"LOG_VIOLATIONS"`
	// LogAllChecks 所有检查(含通过)写入审计
	LogAllChecks bool `yaml:"log_all_checks" json:"log_all_checks" env:"LOG_ALL_CHECKS"`
	// RedactSensitiveData 审计预览先做全类型 PII 脱敏
	RedactSensitiveData bool `yaml:"redact_sensitive_data" json:"redact_sensitive_data" env:"REDACT_SENSITIVE_DATA"`
	// PreviewLimit 审计预览最大长度(字节)
	PreviewLimit int `yaml:"preview_limit" json:"preview_limit" env:"PREVIEW_LIMIT"`
}

// Config 管线总配置
type Config struct {
	Enabled    bool              `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Injection  injection.Config  `yaml:"injection" json:"injection" env:"INJECTION"`
	Moderation moderation.Config `yaml:"moderation" json:"moderation" env:"MODERATION"`
	PII        pii.Config        `yaml:"pii" json:"pii" env:"PII"`
	Blocking   BlockingConfig    `yaml:"blocking" json:"blocking" env:"BLOCKING"`
	Logging    LoggingConfig     `yaml:"logging" json:"logging" env:"LOGGING"`
}

// DefaultConfig 返回默认管线配置
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Injection:  injection.DefaultConfig(),
		Moderation: moderation.DefaultConfig(),
		PII:        pii.DefaultConfig(),
		Blocking: BlockingConfig{
			BlockOnViolation: true,
			BlockMessage:     "This request was blocked by content safety policies.",
			AllowBypass:      false,
		},
		Logging: LoggingConfig{
			LogViolations:       true,
			LogAllChecks:        false,
			RedactSensitiveData: true,
			PreviewLimit:        500,
		},
	}
}

// violationForCategory 审核类别到违规类型的折叠
func violationForCategory(c moderation.Category) ViolationType {
	switch c {
	case moderation.CategoryHate, moderation.CategoryHateThreatening:
		return ViolationHateSpeech
	case moderation.CategoryHarassment, moderation.CategoryHarassmentThreat:
		return ViolationHarassment
	case moderation.CategorySelfHarm, moderation.CategorySelfHarmIntent, moderation.CategorySelfHarmInstructions:
		return ViolationSelfHarm
	case moderation.CategorySexual, moderation.CategorySexualMinors:
		return ViolationSexualContent
	case moderation.CategoryViolence, moderation.CategoryViolenceGraphic:
		return ViolationViolence
	default:
		return ViolationPolicyViolation
	}
}

// violationForInjection 注入类别到违规类型的映射
func violationForInjection(c injection.Category) ViolationType {
	if c == injection.CategoryJailbreak {
		return ViolationJailbreakAttempt
	}
	return ViolationPromptInjection
}

// severityForRisk PII 风险等级到严重程度的映射
func severityForRisk(level pii.RiskLevel) Severity {
	switch level {
	case pii.RiskHigh:
		return SeverityHigh
	case pii.RiskMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
