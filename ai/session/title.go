package session

import (
	"regexp"
	"strings"
)

// DefaultTitleMaxRunes 会话标题的最大长度.
const DefaultTitleMaxRunes = 20

// defaultTitle 空消息时的兜底标题.
const defaultTitle = "新对话"

var (
	markdownPunctPattern = regexp.MustCompile("[#*_`\\[\\]()]")
	whitespacePattern    = regexp.MustCompile(`\s+`)
)

// GenerateTitle 从会话的第一条消息推导标题: 去掉 Markdown 标记,
// 折叠空白, 超长时按 rune 截断并追加省略号.
func GenerateTitle(firstMessage string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultTitleMaxRunes
	}

	title := strings.TrimSpace(firstMessage)
	if title == "" {
		return defaultTitle
	}

	title = markdownPunctPattern.ReplaceAllString(title, "")
	title = whitespacePattern.ReplaceAllString(title, " ")
	title = strings.TrimSpace(title)
	if title == "" {
		return defaultTitle
	}

	runes := []rune(title)
	if len(runes) > maxRunes {
		title = string(runes[:maxRunes]) + "..."
	}
	return title
}
