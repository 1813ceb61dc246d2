package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/gradmall/mallchat/ai/core/llm"
)

// ticketInfo 从用户消息中抽取的工单字段.
type ticketInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

var validPriorities = map[string]bool{
	"low": true, "medium": true, "high": true, "urgent": true,
}

// TicketNode 抽取工单信息并生成工单号.
type TicketNode struct {
	llm llm.Service
}

// NewTicketNode creates the ticket responder.
func NewTicketNode(llmService llm.Service) *TicketNode {
	return &TicketNode{llm: llmService}
}

func (n *TicketNode) Name() string { return NodeTicket }

func (n *TicketNode) Execute(ctx context.Context, state *State) error {
	info := n.extract(ctx, state)
	ticketID := generateTicketID()

	state.TicketID = ticketID
	state.Response = fmt.Sprintf(`已为您创建工单 %s。

标题: %s
优先级: %s
分类: %s

我们的客服团队会尽快处理，请耐心等待。您可以随时向我查询工单进度。`,
		ticketID, info.Title, priorityText(info.Priority), info.Category)
	state.QuickActions = append(state.QuickActions, QuickAction{
		Type:   "button",
		Label:  "查看工单",
		Action: "view_ticket",
		Data:   map[string]interface{}{"ticket_id": ticketID},
	})
	return nil
}

// extract 请求 LLM 输出 JSON 工单字段, 解析失败用消息本身兜底.
func (n *TicketNode) extract(ctx context.Context, state *State) ticketInfo {
	fallback := ticketInfo{
		Title:       truncateRunes(state.UserMessage, 30),
		Description: state.UserMessage,
		Priority:    "medium",
		Category:    "其他",
	}
	if n.llm == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`请从用户的反馈中提取工单信息, 以 JSON 输出:
{"title": "...", "description": "...", "priority": "low|medium|high|urgent", "category": "..."}

用户反馈: %s`, state.UserMessage)

	content, _, err := n.llm.Chat(ctx, []llm.Message{llm.UserMessage(prompt)})
	if err != nil {
		slog.Warn("Ticket extraction failed", "session_id", state.SessionID, "error", err)
		return fallback
	}

	info := parseTicketInfo(content)
	if info == nil {
		return fallback
	}
	if info.Title == "" {
		info.Title = fallback.Title
	}
	if info.Description == "" {
		info.Description = state.UserMessage
	}
	if !validPriorities[info.Priority] {
		info.Priority = "medium"
	}
	if info.Category == "" {
		info.Category = "其他"
	}
	return *info
}

// parseTicketInfo 剥掉代码块围栏后解析 JSON, 再退而求其次找大括号片段.
func parseTicketInfo(content string) *ticketInfo {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var info ticketInfo
	if err := json.Unmarshal([]byte(cleaned), &info); err == nil {
		return &info
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &info); err == nil {
			return &info
		}
	}
	return nil
}

// generateTicketID 时间戳保证可读排序, 短后缀避免同秒碰撞.
func generateTicketID() string {
	return "TK" + time.Now().Format("20060102150405") + shortuuid.New()[:6]
}

func priorityText(priority string) string {
	switch priority {
	case "low":
		return "低"
	case "medium":
		return "中"
	case "high":
		return "高"
	case "urgent":
		return "紧急"
	default:
		return priority
	}
}
