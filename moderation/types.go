package moderation

import "context"

// Category 审核类目（固定 12 键分类体系）
type Category string

const (
	CategoryHate                 Category = "hate"
	CategoryHateThreatening      Category = "hate/threatening"
	CategoryHarassment           Category = "harassment"
	CategoryHarassmentThreat     Category = "harassment/threatening"
	CategorySelfHarm             Category = "self-harm"
	CategorySelfHarmIntent       Category = "self-harm/intent"
	CategorySelfHarmInstructions Category = "self-harm/instructions"
	CategorySexual               Category = "sexual"
	CategorySexualMinors         Category = "sexual/minors"
	CategoryViolence             Category = "violence"
	CategoryViolenceGraphic      Category = "violence/graphic"
	CategoryIllicit              Category = "illicit"
)

// AllCategories 返回固定顺序的完整类目表。
// 调用方依赖该顺序产生确定性的违规列表。
func AllCategories() []Category {
	return []Category{
		CategoryHate,
		CategoryHateThreatening,
		CategoryHarassment,
		CategoryHarassmentThreat,
		CategorySelfHarm,
		CategorySelfHarmIntent,
		CategorySelfHarmInstructions,
		CategorySexual,
		CategorySexualMinors,
		CategoryViolence,
		CategoryViolenceGraphic,
		CategoryIllicit,
	}
}

// ProviderKind 审核提供者类型
type ProviderKind string

const (
	// ProviderOpenAI 外部 /moderations 分类服务
	ProviderOpenAI ProviderKind = "openai"
	// ProviderPattern 进程内正则/关键词匹配
	ProviderPattern ProviderKind = "pattern"
	// ProviderLLM 聊天补全模型充当分类器
	ProviderLLM ProviderKind = "llm"
	// ProviderAuto 每次调用时优先外部服务，不可用则回退 pattern
	ProviderAuto ProviderKind = "auto"
)

// Result 单条内容的审核结果
type Result struct {
	// Flagged 是否被任一类目标记
	Flagged bool `json:"flagged"`
	// Categories 12 个固定键的布尔标记
	Categories map[Category]bool `json:"categories"`
	// CategoryScores 12 个固定键的置信度评分
	CategoryScores map[Category]float64 `json:"category_scores"`
	// Provider 实际产生本结果的提供者
	Provider ProviderKind `json:"provider"`
	// Degraded 提供者失败后的软降级标记（结果不可信，仅供审计）
	Degraded bool `json:"degraded,omitempty"`
	// DegradedCode 降级方式枚举,指标标签用
	DegradedCode DegradeCode `json:"degraded_code,omitempty"`
	// DegradedReason 降级原因（自由文本,仅进日志与审计）
	DegradedReason string `json:"degraded_reason,omitempty"`
	// FailClosed 超时按 fail_closed 策略合成的拦截结果
	FailClosed bool `json:"fail_closed,omitempty"`
}

// NewResult 创建一个全类目清零的未标记结果
func NewResult(provider ProviderKind) *Result {
	categories := make(map[Category]bool, 12)
	scores := make(map[Category]float64, 12)
	for _, c := range AllCategories() {
		categories[c] = false
		scores[c] = 0
	}
	return &Result{
		Categories:     categories,
		CategoryScores: scores,
		Provider:       provider,
	}
}

// FlaggedCategories 按固定类目顺序返回被标记的类目
func (r *Result) FlaggedCategories() []Category {
	var flagged []Category
	for _, c := range AllCategories() {
		if r.Categories[c] {
			flagged = append(flagged, c)
		}
	}
	return flagged
}

// Provider 审核提供者接口
type Provider interface {
	// Name 返回提供者名称
	Name() ProviderKind
	// Moderate 对单条文本执行审核
	Moderate(ctx context.Context, content string) (*Result, error)
}
