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

	"golang.org/x/time/rate"
)

// OpenAIConfig 外部分类服务配置
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key" json:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model,omitempty" json:"model,omitempty" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" env:"TIMEOUT"`
	// RPS 进程级请求速率上限，<=0 表示不限速
	RPS float64 `yaml:"rps,omitempty" json:"rps,omitempty" env:"RPS"`
}

// DefaultOpenAIConfig 返回默认配置
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "omni-moderation-latest",
		Timeout: 30 * time.Second,
	}
}

// Configured 判断外部服务是否已配置（auto 模式的选择依据）
func (c OpenAIConfig) Configured() bool {
	return c.APIKey != ""
}

// OpenAIProvider 使用外部 /moderations 分类服务执行审核
type OpenAIProvider struct {
	cfg     OpenAIConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAIProvider 创建外部分类服务提供者
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "omni-moderation-latest"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	return &OpenAIProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// Name 返回提供者名称
func (p *OpenAIProvider) Name() ProviderKind { return ProviderOpenAI }

type moderationAPIRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type moderationAPIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     map[string]bool    `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// Moderate 调用外部分类服务审核单条文本
func (p *OpenAIProvider) Moderate(ctx context.Context, content string) (*Result, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("moderation rate limit wait: %w", err)
		}
	}

	body := moderationAPIRequest{Model: p.cfg.Model, Input: []string{content}}
	payload, _ := json.Marshal(body)

	endpoint := fmt.Sprintf("%s/moderations", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("moderation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("moderation error: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	var apiResp moderationAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(apiResp.Results) == 0 {
		return nil, fmt.Errorf("moderation response contained no results")
	}

	raw := apiResp.Results[0]
	result := NewResult(ProviderOpenAI)
	result.Flagged = raw.Flagged
	for _, c := range AllCategories() {
		if v, ok := raw.Categories[string(c)]; ok {
			result.Categories[c] = v
		}
		if s, ok := raw.CategoryScores[string(c)]; ok {
			result.CategoryScores[c] = s
		}
	}

	return result, nil
}
