package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/session"
)

// llmSummarizer 使用 LLM 压缩对话历史。
type llmSummarizer struct {
	llm              llm.Service
	triggerThreshold int
	maxContextTokens int
	timeout          time.Duration
}

// Config 摘要器配置。零值字段使用默认值。
type Config struct {
	TriggerThreshold int
	MaxContextTokens int
}

// NewSummarizer 创建对话摘要生成器。
func NewSummarizer(llmSvc llm.Service, cfg Config) Summarizer {
	if cfg.TriggerThreshold <= 0 {
		cfg.TriggerThreshold = DefaultTriggerThreshold
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	return &llmSummarizer{
		llm:              llmSvc,
		triggerThreshold: cfg.TriggerThreshold,
		maxContextTokens: cfg.MaxContextTokens,
		timeout:          15 * time.Second,
	}
}

func (s *llmSummarizer) ShouldSummarize(history []session.Turn) bool {
	return len(history) > s.triggerThreshold
}

func (s *llmSummarizer) Summarize(ctx context.Context, history []session.Turn, existingSummary string) (*Result, error) {
	// 历史未超出窗口时不调用 LLM。
	if len(history) <= s.triggerThreshold {
		return &Result{Summary: existingSummary, RemainingHistory: history}, nil
	}

	compress := history[:len(history)-s.triggerThreshold]
	keep := history[len(history)-s.triggerThreshold:]

	if s.llm == nil {
		return nil, fmt.Errorf("summarizer: no LLM service configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	userPrompt := buildMergePrompt(compress, existingSummary)
	messages := []llm.Message{
		llm.SystemPrompt(summarySystemPrompt),
		llm.UserMessage(userPrompt),
	}

	content, stats, err := s.llm.Chat(ctx, messages)
	if err != nil {
		slog.Warn("Summarizer: LLM call failed", "error", err, "compressed_turns", len(compress))
		return nil, fmt.Errorf("summarize failed: %w", err)
	}

	newSummary := parseSummary(content)
	if newSummary == "" {
		return nil, fmt.Errorf("summarize returned empty summary")
	}
	newSummary = truncateRunes(newSummary, maxSummaryWords)

	// 摘要 + 保留历史必须满足 token 上限，超出时丢弃最旧的保留轮次。
	remaining := keep
	for len(remaining) > 0 &&
		EstimateTokens(newSummary)+EstimateHistoryTokens(remaining) > s.maxContextTokens {
		remaining = remaining[1:]
	}

	slog.Info("Summarizer: history compressed",
		"compressed_turns", len(compress),
		"remaining_turns", len(remaining),
		"summary_tokens", EstimateTokens(newSummary),
		"duration_ms", stats.TotalDurationMs,
	)

	return &Result{Summary: newSummary, RemainingHistory: remaining}, nil
}

func (s *llmSummarizer) FallbackTruncate(history []session.Turn) *Result {
	if len(history) <= s.triggerThreshold {
		return &Result{Summary: "", RemainingHistory: history}
	}
	return &Result{Summary: "", RemainingHistory: history[len(history)-s.triggerThreshold:]}
}

func buildMergePrompt(compress []session.Turn, existingSummary string) string {
	var sb strings.Builder
	if existingSummary != "" {
		sb.WriteString("已有摘要：\n")
		sb.WriteString(existingSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("新增对话：\n")
	for _, turn := range compress {
		sb.WriteString("用户: ")
		sb.WriteString(turn.User)
		sb.WriteString("\n助手: ")
		sb.WriteString(turn.Assistant)
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\n请将已有摘要与新增对话合并为一段不超过 %d 字的新摘要，保留订单号、商品名、金额、已达成的结论等关键信息。\n", maxSummaryWords))
	sb.WriteString(`请直接返回JSON格式：{"summary": "生成的摘要"}`)
	return sb.String()
}

func parseSummary(content string) string {
	// Strip markdown code block wrapper if present
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var result struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(content), &result); err == nil && result.Summary != "" {
		return strings.TrimSpace(result.Summary)
	}

	if idx := strings.Index(content, `"summary"`); idx >= 0 {
		start := strings.Index(content[idx:], ":") + idx + 1
		end := strings.Index(content[start:], "}")
		if end > 0 {
			return strings.Trim(content[start:start+end], `" `)
		}
	}

	return strings.TrimSpace(content)
}

// truncateRunes 安全截断字符串（按 rune 而非 byte）。
func truncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

const summarySystemPrompt = `你是一个专业的对话摘要助手。你的任务是把客服对话的早期轮次压缩为精炼的摘要。

要求：
1. 摘要长度不超过指定字数
2. 保留订单号、商品名称、金额、用户诉求和已达成的结论
3. 使用与对话一致的语言
4. 不要添加对话中没有的信息
5. 返回JSON格式：{"summary": "生成的摘要"}`
