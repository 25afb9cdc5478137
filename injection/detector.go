package injection

import (
	"regexp"
	"strings"
)

// Config 注入检测器配置
type Config struct {
	// Enabled 是否启用注入检测
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
	// ConfidenceThreshold 判定为注入的置信度阈值，取值 [0,1]
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	// CriticalThreshold 升级为 critical 严重级别的置信度阈值
	CriticalThreshold float64 `yaml:"critical_threshold" json:"critical_threshold" env:"CRITICAL_THRESHOLD"`
	// CustomPatterns 额外的自定义注入正则（编译失败的条目被忽略）
	CustomPatterns []string `yaml:"custom_patterns" json:"custom_patterns" env:"CUSTOM_PATTERNS"`
	// CustomPhrases 额外的可疑短语
	CustomPhrases []string `yaml:"custom_phrases" json:"custom_phrases" env:"CUSTOM_PHRASES"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		ConfidenceThreshold: 0.7,
		CriticalThreshold:   0.9,
	}
}

// Result 注入检测结果
// 不变量: IsInjection == (Confidence >= 阈值)
type Result struct {
	IsInjection bool     `json:"is_injection"`
	Confidence  float64  `json:"confidence"`
	Patterns    []string `json:"patterns,omitempty"`
	Category    Category `json:"category,omitempty"`
}

// customWeight 自定义模式的默认权重
const customWeight = 0.40

// Detector 提示注入检测器
// 模式表构造后不可变，任意并发调用 Detect 无需加锁
type Detector struct {
	cfg           Config
	patterns      []Pattern
	phrases       []string
	categoryOrder []Category
}

// NewDetector 创建注入检测器
func NewDetector(cfg Config) *Detector {
	patterns := defaultPatterns()

	for _, raw := range cfg.CustomPatterns {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			continue
		}
		patterns = append(patterns, Pattern{
			Pattern:     re,
			Category:    CategoryInstructionOverride,
			Weight:      customWeight,
			Description: "Custom injection pattern: " + raw,
		})
	}

	phrases := defaultSuspiciousPhrases()
	for _, p := range cfg.CustomPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}

	// 记录类别在表中首次出现的顺序，用于平局判定
	var order []Category
	seen := make(map[Category]bool)
	for _, p := range patterns {
		if !seen[p.Category] {
			seen[p.Category] = true
			order = append(order, p.Category)
		}
	}

	return &Detector{
		cfg:           cfg,
		patterns:      patterns,
		phrases:       phrases,
		categoryOrder: order,
	}
}

// Name 返回检测器名称
func (d *Detector) Name() string {
	return "injection_detector"
}

// Threshold 返回当前置信度阈值
func (d *Detector) Threshold() float64 {
	return d.cfg.ConfidenceThreshold
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	quoteReplacer = strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
		"´", "'", "`", "'",
	)
)

// normalize 归一化输入：折叠空白、统一弯引号
func normalize(content string) string {
	return whitespaceRe.ReplaceAllString(quoteReplacer.Replace(content), " ")
}

// Detect 检测内容中的提示注入尝试。
// 纯函数：无 I/O，不会失败，空输入返回零值结果。
func (d *Detector) Detect(content string) Result {
	normalized := normalize(content)
	lowered := strings.ToLower(normalized)

	var (
		confidence float64
		matched    []string
		counts     = make(map[Category]int)
	)

	for _, p := range d.patterns {
		if p.Pattern.MatchString(normalized) {
			confidence += p.Weight
			counts[p.Category]++
			matched = append(matched, p.Description)
		}
	}

	for _, phrase := range d.phrases {
		if strings.Contains(lowered, phrase) {
			confidence += phraseWeight
			matched = append(matched, "Suspicious phrase: "+phrase)
		}
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	result := Result{
		IsInjection: confidence >= d.cfg.ConfidenceThreshold,
		Confidence:  confidence,
		Patterns:    matched,
	}

	// 命中次数最多的类别胜出，平局按表中首次出现顺序
	best := -1
	for _, cat := range d.categoryOrder {
		if counts[cat] > best {
			best = counts[cat]
			if counts[cat] > 0 {
				result.Category = cat
			}
		}
	}

	return result
}
