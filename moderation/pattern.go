package moderation

import (
	"context"
	"regexp"
)

// categoryPattern 单个类目的本地匹配规则
type categoryPattern struct {
	category Category
	pattern  *regexp.Regexp
	// base 首次命中评分，step 每多一次命中的增量，封顶 maxPatternScore
	base float64
	step float64
}

const maxPatternScore = 0.95

// defaultCategoryPatterns 返回本地审核规则表。
// 规则刻意保守：宁可漏报交给外部提供者，也不在降级路径上误伤正常文本。
func defaultCategoryPatterns() []categoryPattern {
	return []categoryPattern{
		{
			category: CategoryHate,
			pattern:  regexp.MustCompile(`(?i)\b(i\s+hate\s+(all|every|those)\s+\w+\s+people|racial\s+slur|ethnic\s+cleansing|subhuman)\b`),
			base:     0.70, step: 0.10,
		},
		{
			category: CategoryHateThreatening,
			pattern:  regexp.MustCompile(`(?i)(exterminate|wipe\s+out|eliminate)\s+(all|every|the)\s+\w+\s+(people|race|group)`),
			base:     0.85, step: 0.05,
		},
		{
			category: CategoryHarassment,
			pattern:  regexp.MustCompile(`(?i)\b(you\s+(are|'re)\s+(worthless|pathetic|disgusting)|nobody\s+likes\s+you|kill\s+yourself)\b`),
			base:     0.75, step: 0.10,
		},
		{
			category: CategoryHarassmentThreat,
			pattern:  regexp.MustCompile(`(?i)(i\s+(will|'ll)\s+(find|hunt|hurt|destroy)\s+you|you\s+(will|'ll)\s+(regret|pay\s+for))`),
			base:     0.85, step: 0.05,
		},
		{
			category: CategorySelfHarm,
			pattern:  regexp.MustCompile(`(?i)\b(self[\s-]?harm|hurt(ing)?\s+myself|cutting\s+myself)\b`),
			base:     0.70, step: 0.10,
		},
		{
			category: CategorySelfHarmIntent,
			pattern:  regexp.MustCompile(`(?i)(i\s+want\s+to\s+(die|end\s+(it|my\s+life))|planning\s+to\s+kill\s+myself)`),
			base:     0.90, step: 0.05,
		},
		{
			category: CategorySelfHarmInstructions,
			pattern:  regexp.MustCompile(`(?i)how\s+to\s+(kill|harm|hurt|cut)\s+(myself|yourself|oneself)`),
			base:     0.90, step: 0.05,
		},
		{
			category: CategorySexual,
			pattern:  regexp.MustCompile(`(?i)\b(explicit\s+sexual|sexually\s+explicit|pornographic)\b`),
			base:     0.70, step: 0.10,
		},
		{
			category: CategorySexualMinors,
			pattern:  regexp.MustCompile(`(?i)(sexual|explicit|nude).{0,30}\b(minor|child|underage)\b|\b(minor|child|underage)\b.{0,30}(sexual|explicit|nude)`),
			base:     0.95, step: 0.00,
		},
		{
			category: CategoryViolence,
			pattern:  regexp.MustCompile(`(?i)\b(kill|murder|assault|attack)\s+(him|her|them|someone|people)\b`),
			base:     0.70, step: 0.10,
		},
		{
			category: CategoryViolenceGraphic,
			pattern:  regexp.MustCompile(`(?i)\b(dismember|decapitat|disembowel|mutilat)\w*\b`),
			base:     0.80, step: 0.10,
		},
		{
			category: CategoryIllicit,
			pattern:  regexp.MustCompile(`(?i)how\s+to\s+(make|build|synthesize)\s+(a\s+)?(bomb|explosive|meth|napalm)|buy\s+(illegal|stolen)\s+\w+`),
			base:     0.80, step: 0.10,
		},
	}
}

// PatternProvider 进程内确定性审核提供者。
// 规则表编译一次后不可变，任意并发调用安全。
type PatternProvider struct {
	patterns []categoryPattern
}

// NewPatternProvider 创建本地审核提供者
func NewPatternProvider() *PatternProvider {
	return &PatternProvider{patterns: defaultCategoryPatterns()}
}

// Name 返回提供者名称
func (p *PatternProvider) Name() ProviderKind { return ProviderPattern }

// Moderate 对单条文本执行本地规则审核。
// 纯正则求值，错误返回值恒为 nil。
func (p *PatternProvider) Moderate(_ context.Context, content string) (*Result, error) {
	result := NewResult(ProviderPattern)

	for _, cp := range p.patterns {
		n := len(cp.pattern.FindAllStringIndex(content, -1))
		if n == 0 {
			continue
		}

		score := cp.base + cp.step*float64(n-1)
		if score > maxPatternScore {
			score = maxPatternScore
		}

		result.Flagged = true
		result.Categories[cp.category] = true
		result.CategoryScores[cp.category] = score
	}

	return result, nil
}
