package summary

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/session"
)

type mockLLM struct {
	response  string
	err       error
	callCount int
	lastUser  string
}

func (m *mockLLM) Chat(_ context.Context, messages []llm.Message) (string, *llm.CallStats, error) {
	m.callCount++
	for _, msg := range messages {
		if msg.Role == "user" {
			m.lastUser = msg.Content
		}
	}
	if m.err != nil {
		return "", nil, m.err
	}
	return m.response, &llm.CallStats{TotalTokens: 10}, nil
}

func (m *mockLLM) ChatStream(context.Context, []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error) {
	content := make(chan string)
	stats := make(chan *llm.CallStats)
	errs := make(chan error)
	close(content)
	close(stats)
	close(errs)
	return content, stats, errs
}

func (m *mockLLM) ChatWithTools(context.Context, []llm.Message, []llm.ToolDescriptor) (*llm.ChatResponse, *llm.CallStats, error) {
	return &llm.ChatResponse{}, &llm.CallStats{}, nil
}

func (m *mockLLM) Warmup(context.Context) {}

func makeHistory(n int) []session.Turn {
	turns := make([]session.Turn, n)
	for i := range turns {
		turns[i] = session.Turn{
			User:      fmt.Sprintf("问题%d", i),
			Assistant: fmt.Sprintf("回答%d", i),
		}
	}
	return turns
}

func TestShouldSummarize_Boundary(t *testing.T) {
	s := NewSummarizer(&mockLLM{}, Config{TriggerThreshold: 10})

	assert.False(t, s.ShouldSummarize(makeHistory(10)))
	assert.True(t, s.ShouldSummarize(makeHistory(11)))
}

func TestSummarize_ShortHistorySkipsLLM(t *testing.T) {
	mock := &mockLLM{response: `{"summary": "unused"}`}
	s := NewSummarizer(mock, Config{TriggerThreshold: 10})

	history := makeHistory(5)
	result, err := s.Summarize(context.Background(), history, "已有摘要")
	require.NoError(t, err)

	assert.Equal(t, "已有摘要", result.Summary)
	assert.Len(t, result.RemainingHistory, 5)
	assert.Equal(t, 0, mock.callCount)
}

func TestSummarize_CompressesOldTurns(t *testing.T) {
	mock := &mockLLM{response: `{"summary": "用户咨询了订单 ORD20240207123456ABCDEF 的物流"}`}
	s := NewSummarizer(mock, Config{TriggerThreshold: 10})

	result, err := s.Summarize(context.Background(), makeHistory(12), "")
	require.NoError(t, err)

	assert.Equal(t, 1, mock.callCount)
	assert.Contains(t, result.Summary, "ORD20240207123456ABCDEF")
	assert.Len(t, result.RemainingHistory, 10)
	// 保留的是最近的 10 轮。
	assert.Equal(t, "问题2", result.RemainingHistory[0].User)

	// 被压缩的轮次出现在提示词里，保留的不出现。
	assert.Contains(t, mock.lastUser, "问题0")
	assert.Contains(t, mock.lastUser, "问题1")
	assert.NotContains(t, mock.lastUser, "问题2")
}

func TestSummarize_MergesExistingSummary(t *testing.T) {
	mock := &mockLLM{response: `{"summary": "合并后的摘要"}`}
	s := NewSummarizer(mock, Config{TriggerThreshold: 2})

	_, err := s.Summarize(context.Background(), makeHistory(4), "早先的结论")
	require.NoError(t, err)

	assert.Contains(t, mock.lastUser, "早先的结论")
}

func TestSummarize_EnforcesTokenCeiling(t *testing.T) {
	long := strings.Repeat("字", 200) // ~100 tokens per side
	history := make([]session.Turn, 6)
	for i := range history {
		history[i] = session.Turn{User: long, Assistant: long}
	}

	mock := &mockLLM{response: `{"summary": "短摘要"}`}
	s := NewSummarizer(mock, Config{TriggerThreshold: 4, MaxContextTokens: 500})

	result, err := s.Summarize(context.Background(), history, "")
	require.NoError(t, err)

	total := EstimateTokens(result.Summary) + EstimateHistoryTokens(result.RemainingHistory)
	assert.LessOrEqual(t, total, 500)
	assert.Less(t, len(result.RemainingHistory), 4)
}

func TestSummarize_LLMFailureReturnsError(t *testing.T) {
	mock := &mockLLM{err: fmt.Errorf("provider down")}
	s := NewSummarizer(mock, Config{TriggerThreshold: 2})

	_, err := s.Summarize(context.Background(), makeHistory(5), "")
	require.Error(t, err)
}

func TestFallbackTruncate(t *testing.T) {
	s := NewSummarizer(nil, Config{TriggerThreshold: 10})

	result := s.FallbackTruncate(makeHistory(15))
	assert.Empty(t, result.Summary)
	assert.Len(t, result.RemainingHistory, 10)
	assert.Equal(t, "问题5", result.RemainingHistory[0].User)
}

func TestFallbackTruncate_IdempotentWithinWindow(t *testing.T) {
	s := NewSummarizer(nil, Config{TriggerThreshold: 10})

	history := makeHistory(7)
	first := s.FallbackTruncate(history)
	second := s.FallbackTruncate(first.RemainingHistory)

	assert.Equal(t, first.RemainingHistory, second.RemainingHistory)
	assert.Empty(t, second.Summary)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("中"))
	assert.Equal(t, 2, EstimateTokens("四个字符"))
	assert.Equal(t, 5, EstimateTokens("0123456789"))
}

func TestParseSummary(t *testing.T) {
	assert.Equal(t, "纯文本", parseSummary("纯文本"))
	assert.Equal(t, "结构化", parseSummary(`{"summary": "结构化"}`))
	assert.Equal(t, "代码块", parseSummary("```json\n{\"summary\": \"代码块\"}\n```"))
}
