package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// llmClassifierPrompt 要求分类器模型输出固定 12 键 JSON
const llmClassifierPrompt = `You are a content safety classifier. ` +
	`Classify the user message into the following categories: ` +
	`hate, hate/threatening, harassment, harassment/threatening, self-harm, ` +
	`self-harm/intent, self-harm/instructions, sexual, sexual/minors, violence, ` +
	`violence/graphic, illicit. ` +
	`Respond with JSON only, no prose: ` +
	`{"flagged": bool, "categories": {<category>: bool}, "category_scores": {<category>: number}}`

// LLMConfig 聊天补全分类器配置
type LLMConfig struct {
	APIKey  string        `yaml:"api_key" json:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model,omitempty" json:"model,omitempty" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" env:"TIMEOUT"`
}

// LLMProvider 用聊天补全模型充当内容分类器。
// 适合外部 /moderations 服务不可用、但有通用模型网关的部署。
type LLMProvider struct {
	cfg    LLMConfig
	client *http.Client
}

// NewLLMProvider 创建聊天补全分类器提供者
func NewLLMProvider(cfg LLMConfig) *LLMProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &LLMProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Name 返回提供者名称
func (p *LLMProvider) Name() ProviderKind { return ProviderLLM }

type llmChatRequest struct {
	Model       string           `json:"model"`
	Messages    []llmChatMessage `json:"messages"`
	Temperature float64          `json:"temperature"`
}

type llmChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type llmClassification struct {
	Flagged        bool               `json:"flagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"category_scores"`
}

// Moderate 让分类器模型审核单条文本
func (p *LLMProvider) Moderate(ctx context.Context, content string) (*Result, error) {
	body := llmChatRequest{
		Model: p.cfg.Model,
		Messages: []llmChatMessage{
			{Role: "system", Content: llmClassifierPrompt},
			{Role: "user", Content: content},
		},
		Temperature: 0,
	}
	payload, _ := json.Marshal(body)

	endpoint := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm moderation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("llm moderation error: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	var chatResp llmChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("llm moderation response contained no choices")
	}

	var classification llmClassification
	raw := stripCodeFence(chatResp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &classification); err != nil {
		return nil, fmt.Errorf("llm classifier returned malformed JSON: %w", err)
	}

	result := NewResult(ProviderLLM)
	result.Flagged = classification.Flagged
	for _, c := range AllCategories() {
		if v, ok := classification.Categories[string(c)]; ok {
			result.Categories[c] = v
		}
		if s, ok := classification.CategoryScores[string(c)]; ok {
			result.CategoryScores[c] = s
		}
	}

	return result, nil
}

// stripCodeFence 去掉模型偶尔包裹的 markdown 代码块
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
