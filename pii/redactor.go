package pii

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// RiskLevel PII 风险等级
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// highRiskTypes 命中即判定 high 的类型集合
var highRiskTypes = map[Type]bool{
	TypeSSN:         true,
	TypeCreditCard:  true,
	TypePassword:    true,
	TypeAPIKey:      true,
	TypeBearerToken: true,
}

// mediumRiskTypes 命中即至少 medium 的类型集合
var mediumRiskTypes = map[Type]bool{
	TypeDateOfBirth: true,
	TypeAddress:     true,
}

// Match 单条 PII 匹配
// StartIndex/EndIndex 是指向原始文本的绝对偏移 [start, end)
type Match struct {
	Type       Type   `json:"type"`
	Value      string `json:"value"`
	Masked     string `json:"masked"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// Result PII 检测/脱敏结果
// 返回时 Matches 恒按 StartIndex 升序排列
type Result struct {
	HasPII       bool      `json:"has_pii"`
	Matches      []Match   `json:"matches,omitempty"`
	RedactedText string    `json:"redacted_text"`
	RiskLevel    RiskLevel `json:"risk_level"`
}

// Config PII 脱敏器配置
type Config struct {
	// Enabled 是否启用 PII 检测
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
	// TypesToRedact 扫描的类型白名单，为空则启用全部类型
	TypesToRedact []Type `yaml:"types_to_redact" json:"types_to_redact" env:"TYPES_TO_REDACT"`
	// RedactInLogs 审计日志中的内容预览是否脱敏
	RedactInLogs bool `yaml:"redact_in_logs" json:"redact_in_logs" env:"REDACT_IN_LOGS"`
	// RedactInResponses 输出管线是否执行脱敏改写
	RedactInResponses bool `yaml:"redact_in_responses" json:"redact_in_responses" env:"REDACT_IN_RESPONSES"`
}

// DefaultConfig 返回默认配置（启用全部类型）
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		TypesToRedact:     AllTypes(),
		RedactInLogs:      true,
		RedactInResponses: true,
	}
}

// Redactor PII 脱敏器
// 模式表构造后不可变，任意并发调用安全
type Redactor struct {
	cfg      Config
	patterns []typePattern
	// allPatterns 不受 TypesToRedact 过滤，供日志脱敏使用
	allPatterns []typePattern
}

// NewRedactor 创建 PII 脱敏器
func NewRedactor(cfg Config) *Redactor {
	all := defaultTypePatterns()

	enabled := cfg.TypesToRedact
	if len(enabled) == 0 {
		enabled = AllTypes()
	}
	enabledSet := make(map[Type]bool, len(enabled))
	for _, t := range enabled {
		enabledSet[t] = true
	}

	var filtered []typePattern
	for _, tp := range all {
		if enabledSet[tp.piiType] {
			filtered = append(filtered, tp)
		}
	}

	return &Redactor{cfg: cfg, patterns: filtered, allPatterns: all}
}

// Config 返回脱敏器配置
func (r *Redactor) Config() Config {
	return r.cfg
}

// Detect 检测文本中的 PII，返回原始文本与分类用匹配列表
func (r *Redactor) Detect(text string) *Result {
	matches := collectMatches(text, r.patterns)
	return &Result{
		HasPII:       len(matches) > 0,
		Matches:      matches,
		RedactedText: text,
		RiskLevel:    calculateRiskLevel(matches),
	}
}

// Redact 检测并脱敏文本。
// 按 StartIndex 降序从右向左拼接替换，改写期间左侧偏移保持有效；
// 返回前重排为升序，调用方按阅读顺序消费。
func (r *Redactor) Redact(text string) *Result {
	matches := collectMatches(text, r.patterns)
	if len(matches) == 0 {
		return &Result{HasPII: false, RedactedText: text, RiskLevel: RiskNone}
	}

	// 降序拼接
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].StartIndex > matches[j].StartIndex
	})

	redacted := text
	for _, m := range matches {
		redacted = redacted[:m.StartIndex] + m.Masked + redacted[m.EndIndex:]
	}

	// 升序返回
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].StartIndex < matches[j].StartIndex
	})

	return &Result{
		HasPII:       true,
		Matches:      matches,
		RedactedText: redacted,
		RiskLevel:    calculateRiskLevel(matches),
	}
}

// RedactForLogging 为日志/审计预览脱敏。
// 不受 TypesToRedact 白名单限制：写进日志的内容一律全类型扫描。
func (r *Redactor) RedactForLogging(text string) string {
	matches := collectMatches(text, r.allPatterns)
	if len(matches) == 0 {
		return text
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].StartIndex > matches[j].StartIndex
	})

	redacted := text
	for _, m := range matches {
		redacted = redacted[:m.StartIndex] + m.Masked + redacted[m.EndIndex:]
	}
	return redacted
}

// collectMatches 跨全部启用类型收集不重叠匹配。
// 重叠时先到者（升序下靠前、等位取更长者）胜出，保证拼接不会互相破坏。
func collectMatches(text string, patterns []typePattern) []Match {
	var raw []Match
	for _, tp := range patterns {
		locs := tp.pattern.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			value := text[loc[0]:loc[1]]
			raw = append(raw, Match{
				Type:       tp.piiType,
				Value:      value,
				Masked:     maskValue(tp.piiType, value),
				StartIndex: loc[0],
				EndIndex:   loc[1],
			})
		}
	}
	if len(raw) == 0 {
		return nil
	}

	sort.Slice(raw, func(i, j int) bool {
		if raw[i].StartIndex != raw[j].StartIndex {
			return raw[i].StartIndex < raw[j].StartIndex
		}
		return raw[i].EndIndex > raw[j].EndIndex
	})

	var matches []Match
	lastEnd := -1
	for _, m := range raw {
		if m.StartIndex < lastEnd {
			continue
		}
		matches = append(matches, m)
		lastEnd = m.EndIndex
	}
	return matches
}

// calculateRiskLevel 由命中类型推导风险等级
func calculateRiskLevel(matches []Match) RiskLevel {
	if len(matches) == 0 {
		return RiskNone
	}

	medium := len(matches) >= 3
	for _, m := range matches {
		if highRiskTypes[m.Type] {
			return RiskHigh
		}
		if mediumRiskTypes[m.Type] {
			medium = true
		}
	}

	if medium {
		return RiskMedium
	}
	return RiskLow
}

// ContainsType 判断结果中是否包含指定类型的匹配
func (res *Result) ContainsType(t Type) bool {
	for _, m := range res.Matches {
		if m.Type == t {
			return true
		}
	}
	return false
}

// TypeCounts 返回逐类型命中计数（审计元数据用）
func (res *Result) TypeCounts() map[Type]int {
	if len(res.Matches) == 0 {
		return nil
	}
	counts := make(map[Type]int)
	for _, m := range res.Matches {
		counts[m.Type]++
	}
	return counts
}

// Preview 截断文本用于审计预览，附省略标记。
// 省略标记计入长度上限，截断点回退到字符边界，结果始终是合法 UTF-8。
func Preview(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	const ellipsis = "..."
	cut := limit - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return strings.TrimSpace(text[:cut]) + ellipsis
}
