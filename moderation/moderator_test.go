package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeProvider 可编程的测试提供者
type fakeProvider struct {
	kind   ProviderKind
	result *Result
	err    error
}

func (f *fakeProvider) Name() ProviderKind { return f.kind }

func (f *fakeProvider) Moderate(_ context.Context, _ string) (*Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func flaggedResult(kind ProviderKind, category Category, score float64) *Result {
	r := NewResult(kind)
	r.Flagged = true
	r.Categories[category] = true
	r.CategoryScores[category] = score
	return r
}

func TestModerator_Moderate_ExternalProvider(t *testing.T) {
	cfg := DefaultConfig()
	external := &fakeProvider{
		kind:   ProviderOpenAI,
		result: flaggedResult(ProviderOpenAI, CategoryHate, 0.85),
	}
	m := NewModeratorWithProvider(cfg, external, zaptest.NewLogger(t))

	result := m.Moderate(context.Background(), "anything")
	require.NotNil(t, result)
	assert.True(t, result.Flagged)
	assert.Equal(t, ProviderOpenAI, result.Provider)
	assert.False(t, result.Degraded)
}

func TestModerator_Moderate_AutoFallsBackWithoutExternal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = ProviderAuto
	m := NewModeratorWithProvider(cfg, nil, zaptest.NewLogger(t))

	result := m.Moderate(context.Background(), "what is the capital of France?")
	require.NotNil(t, result)
	assert.Equal(t, ProviderPattern, result.Provider)
	assert.False(t, result.Flagged)
}

func TestModerator_Moderate_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	m := NewModeratorWithProvider(cfg, &fakeProvider{kind: ProviderOpenAI, err: errors.New("must not be called")}, zaptest.NewLogger(t))

	result := m.Moderate(context.Background(), "kill him now")
	require.NotNil(t, result)
	assert.False(t, result.Flagged)
}

func TestModerator_Moderate_ProviderErrorFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OnProviderError = FailurePolicyFallback
	external := &fakeProvider{kind: ProviderOpenAI, err: errors.New("boom: status=500")}
	m := NewModeratorWithProvider(cfg, external, zaptest.NewLogger(t))

	// 降级后由 pattern 提供者真实判定
	result := m.Moderate(context.Background(), "I want to die")
	require.NotNil(t, result)
	assert.Equal(t, ProviderPattern, result.Provider)
	assert.True(t, result.Flagged)
	assert.True(t, result.Categories[CategorySelfHarmIntent])
	assert.False(t, result.Degraded)
	assert.Equal(t, DegradeProviderErrorFallback, result.DegradedCode)
	assert.NotEmpty(t, result.DegradedReason)
}

func TestModerator_Moderate_ProviderErrorSoft(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OnProviderError = FailurePolicySoft
	external := &fakeProvider{kind: ProviderOpenAI, err: errors.New("malformed response")}
	m := NewModeratorWithProvider(cfg, external, zaptest.NewLogger(t))

	result := m.Moderate(context.Background(), "I want to die")
	require.NotNil(t, result)
	assert.False(t, result.Flagged)
	assert.True(t, result.Degraded)
	assert.Equal(t, DegradeProviderErrorSoft, result.DegradedCode)
	assert.NotEmpty(t, result.DegradedReason)
	assert.False(t, m.ShouldBlock(result))
}

func TestModerator_Moderate_TimeoutFailOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeoutPolicy = TimeoutFailOpen
	external := &fakeProvider{kind: ProviderOpenAI, err: context.DeadlineExceeded}
	m := NewModeratorWithProvider(cfg, external, zaptest.NewLogger(t))

	result := m.Moderate(context.Background(), "anything")
	require.NotNil(t, result)
	assert.False(t, result.Flagged)
	assert.True(t, result.Degraded)
	assert.Equal(t, DegradeTimeoutFailOpen, result.DegradedCode)
	assert.False(t, result.FailClosed)
	assert.False(t, m.ShouldBlock(result))
}

func TestModerator_Moderate_TimeoutFailClosed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeoutPolicy = TimeoutFailClosed
	external := &fakeProvider{kind: ProviderOpenAI, err: context.DeadlineExceeded}
	m := NewModeratorWithProvider(cfg, external, zaptest.NewLogger(t))

	result := m.Moderate(context.Background(), "anything")
	require.NotNil(t, result)
	assert.True(t, result.Flagged)
	assert.True(t, result.FailClosed)
	assert.Equal(t, DegradeTimeoutFailClosed, result.DegradedCode)
	assert.True(t, m.ShouldBlock(result))
}

func TestModerator_ShouldBlock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScoreThreshold = 0.8
	cfg.BlockCategories = []Category{CategorySexualMinors, CategoryIllicit}
	m := NewModeratorWithProvider(cfg, nil, zaptest.NewLogger(t))

	t.Run("nil result", func(t *testing.T) {
		assert.False(t, m.ShouldBlock(nil))
	})

	t.Run("unflagged", func(t *testing.T) {
		assert.False(t, m.ShouldBlock(NewResult(ProviderPattern)))
	})

	t.Run("flagged category in block list", func(t *testing.T) {
		r := flaggedResult(ProviderOpenAI, CategoryIllicit, 0.5)
		assert.True(t, m.ShouldBlock(r))
	})

	t.Run("flagged category below threshold and outside block list", func(t *testing.T) {
		r := flaggedResult(ProviderOpenAI, CategoryHate, 0.75)
		assert.False(t, m.ShouldBlock(r))
	})

	t.Run("score at threshold blocks regardless of category", func(t *testing.T) {
		r := flaggedResult(ProviderOpenAI, CategoryHate, 0.8)
		assert.True(t, m.ShouldBlock(r))
	})
}
