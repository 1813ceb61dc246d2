package summary

import (
	"unicode/utf8"

	"github.com/gradmall/mallchat/ai/session"
)

// EstimateTokens 粗略估算文本的 token 数（约 2 字符 1 token）。
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 2
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateHistoryTokens 估算历史轮次的总 token 数。
func EstimateHistoryTokens(history []session.Turn) int {
	total := 0
	for _, turn := range history {
		total += EstimateTokens(turn.User) + EstimateTokens(turn.Assistant)
	}
	return total
}
