package injection

import "regexp"

// Category 注入攻击类别
type Category string

const (
	// CategoryJailbreak 越狱尝试（DAN、developer mode 等）
	CategoryJailbreak Category = "jailbreak"
	// CategoryInstructionOverride 指令覆盖尝试
	CategoryInstructionOverride Category = "instruction_override"
	// CategoryContextManipulation 上下文操纵（提取系统提示、伪造角色标记）
	CategoryContextManipulation Category = "context_manipulation"
	// CategoryRoleHijack 角色劫持尝试
	CategoryRoleHijack Category = "role_hijack"
)

// Pattern 单条注入检测模式
// 表项创建后不可变，Weight 取值 (0, 1]
type Pattern struct {
	Pattern     *regexp.Regexp
	Category    Category
	Weight      float64
	Description string
}

// phraseWeight 可疑短语的固定权重
const phraseWeight = 0.30

// defaultPatterns 返回默认的加权注入模式表。
// 表序即判定序：类别平局按其在表中首次出现的位置决定。
func defaultPatterns() []Pattern {
	return []Pattern{
		// 越狱尝试
		{
			Pattern:     regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|guidelines?)`),
			Category:    CategoryJailbreak,
			Weight:      0.45,
			Description: "Attempt to ignore prior instructions",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)(do\s+)?anything\s+now|\bDAN\s+mode\b`),
			Category:    CategoryJailbreak,
			Weight:      0.60,
			Description: "DAN-style jailbreak attempt",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)jail\s?break`),
			Category:    CategoryJailbreak,
			Weight:      0.60,
			Description: "Explicit jailbreak mention",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)(enable|enter|activate|unlock)\s+developer\s+mode`),
			Category:    CategoryJailbreak,
			Weight:      0.50,
			Description: "Developer mode activation attempt",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)you\s+(are|'re)\s+(now\s+)?(free|unrestricted|unfiltered|uncensored)`),
			Category:    CategoryJailbreak,
			Weight:      0.50,
			Description: "Attempt to declare model unrestricted",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)no\s+(longer\s+)?(bound|restricted|limited|constrained)\s+by`),
			Category:    CategoryJailbreak,
			Weight:      0.40,
			Description: "Attempt to void behavioral constraints",
		},

		// 指令覆盖尝试
		{
			Pattern:     regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above|earlier|the\s+above)\s*(instructions?|prompts?|rules?|guidelines?)?`),
			Category:    CategoryInstructionOverride,
			Weight:      0.45,
			Description: "Attempt to disregard instructions",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)(new|updated|revised|different)\s+instructions?\s*:`),
			Category:    CategoryInstructionOverride,
			Weight:      0.40,
			Description: "Attempt to inject replacement instructions",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)override\s+(your\s+|the\s+|all\s+)?(instructions?|rules?|guidelines?|safety|programming)`),
			Category:    CategoryInstructionOverride,
			Weight:      0.45,
			Description: "Attempt to override instructions",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)forget\s+(everything|all|what)\s*(you\s+)?(know|learned|were\s+told)?`),
			Category:    CategoryInstructionOverride,
			Weight:      0.40,
			Description: "Attempt to make model forget context",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)do\s+not\s+follow\s+(your|the|any)\s+(rules?|instructions?|guidelines?)`),
			Category:    CategoryInstructionOverride,
			Weight:      0.40,
			Description: "Attempt to suspend rule-following",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)from\s+now\s+on\s+you\s+(will|must|shall|are)`),
			Category:    CategoryInstructionOverride,
			Weight:      0.35,
			Description: "Attempt to impose new standing orders",
		},

		// 上下文操纵
		{
			Pattern:     regexp.MustCompile(`(?i)(reveal|show|print|output|repeat|display)\s+(me\s+)?(your\s+)?(the\s+)?(system|initial|original|hidden)\s+(prompt|instructions?|message)`),
			Category:    CategoryContextManipulation,
			Weight:      0.35,
			Description: "System prompt extraction attempt",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)^\s*system\s*:`),
			Category:    CategoryContextManipulation,
			Weight:      0.40,
			Description: "System role marker injection",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)<\s*/?\s*system\s*>`),
			Category:    CategoryContextManipulation,
			Weight:      0.40,
			Description: "XML system tag injection",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)\[\s*/?\s*INST\s*\]`),
			Category:    CategoryContextManipulation,
			Weight:      0.35,
			Description: "Instruction tag injection",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)(-{3,}|={3,})\s*(system|instructions?|rules?)\s*(-{3,}|={3,})`),
			Category:    CategoryContextManipulation,
			Weight:      0.35,
			Description: "Delimiter-based injection attempt",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)what\s+(are|were)\s+your\s+(initial|original|exact)\s+instructions`),
			Category:    CategoryContextManipulation,
			Weight:      0.30,
			Description: "Instruction disclosure probe",
		},

		// 角色劫持
		{
			Pattern:     regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s`),
			Category:    CategoryRoleHijack,
			Weight:      0.35,
			Description: "Attempt to reassign model role",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+(are|were)\s+)?(a|an|the)\s`),
			Category:    CategoryRoleHijack,
			Weight:      0.25,
			Description: "Attempt to change model behavior",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are|you\s+have)`),
			Category:    CategoryRoleHijack,
			Weight:      0.30,
			Description: "Attempt to make model pretend",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)role\s?play\s+as\s`),
			Category:    CategoryRoleHijack,
			Weight:      0.30,
			Description: "Roleplay coercion attempt",
		},
		{
			Pattern:     regexp.MustCompile(`(?i)^\s*assistant\s*:`),
			Category:    CategoryRoleHijack,
			Weight:      0.30,
			Description: "Assistant role marker injection",
		},
	}
}

// defaultSuspiciousPhrases 返回默认可疑短语表。
// 短语按归一化小写子串匹配，每条命中贡献 phraseWeight，不参与类别计数。
func defaultSuspiciousPhrases() []string {
	return []string{
		"system prompt",
		"do anything now",
		"developer mode",
		"without any restrictions",
		"without restrictions",
		"bypass your programming",
		"ignore your programming",
		"no ethical guidelines",
		"evil ai",
		"unfiltered response",
	}
}
