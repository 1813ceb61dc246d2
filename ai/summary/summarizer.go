// Package summary 将超出窗口的旧对话轮次压缩为有界摘要，
// 保留订单号、商品名等长程事实。
package summary

import (
	"context"

	"github.com/gradmall/mallchat/ai/session"
)

const (
	// DefaultTriggerThreshold 超过该轮数后触发摘要。
	DefaultTriggerThreshold = 10

	// DefaultMaxContextTokens 摘要 + 保留历史的 token 上限。
	DefaultMaxContextTokens = 3000

	// maxSummaryWords 摘要目标长度（字）。
	maxSummaryWords = 500
)

// Result 摘要结果：新摘要与压缩后保留的历史。
type Result struct {
	Summary          string
	RemainingHistory []session.Turn
}

// Summarizer 提供对话摘要能力。
type Summarizer interface {
	// ShouldSummarize 判断历史是否超过触发阈值。
	ShouldSummarize(history []session.Turn) bool

	// Summarize 压缩旧轮次并与既有摘要合并。
	// 失败时返回 error，调用方应改用 FallbackTruncate。
	Summarize(ctx context.Context, history []session.Turn, existingSummary string) (*Result, error)

	// FallbackTruncate 无 LLM 的保底策略：丢弃摘要，仅保留窗口内的历史。
	FallbackTruncate(history []session.Turn) *Result
}
