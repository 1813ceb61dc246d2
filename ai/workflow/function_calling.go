package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/tools"
)

// toolCallSkipConfidence 低于该置信度不做工具调用.
const toolCallSkipConfidence = 0.6

// 这些意图由 responder 直接回答, 不经过工具.
var toolSkipIntents = map[Intent]bool{
	IntentQA:                    true,
	IntentDocumentAnalysis:      true,
	IntentTicket:                true,
	IntentPurchaseGuide:         true,
	IntentPersonalizedRecommend: true,
}

// preferredTools 提示 LLM 各意图优先使用的工具.
var preferredTools = []struct {
	Intent Intent
	Tools  string
}{
	{IntentOrderQuery, "query_order / get_logistics"},
	{IntentProductRecommend, "search_products"},
	{IntentProductInquiry, "search_products / check_inventory"},
}

// FunctionCallingNode 将工具目录绑定到 LLM, 执行其决定的工具调用.
type FunctionCallingNode struct {
	llm      llm.Service
	registry *tools.Registry

	// onToolCall is invoked after each executed tool, for metrics.
	onToolCall func(toolName string, latency time.Duration, success bool)
}

// NewFunctionCallingNode creates the tool-calling node.
func NewFunctionCallingNode(llmService llm.Service, registry *tools.Registry) *FunctionCallingNode {
	return &FunctionCallingNode{llm: llmService, registry: registry}
}

// SetToolCallHook registers a per-tool-call callback.
func (n *FunctionCallingNode) SetToolCallHook(hook func(toolName string, latency time.Duration, success bool)) {
	n.onToolCall = hook
}

func (n *FunctionCallingNode) Name() string { return "function_calling" }

func (n *FunctionCallingNode) Execute(ctx context.Context, state *State) error {
	if toolSkipIntents[state.Intent] || state.Confidence < toolCallSkipConfidence {
		state.ToolUsed = nil
		state.ToolResults = nil
		return nil
	}
	if n.llm == nil || n.registry == nil {
		state.ToolUsed = nil
		state.ToolResults = nil
		return nil
	}

	messages := n.buildMessages(state)
	resp, _, err := n.llm.ChatWithTools(ctx, messages, n.registry.Descriptors())
	if err != nil {
		slog.Warn("Tool-calling LLM failed, continuing without tools",
			"session_id", state.SessionID, "error", err)
		state.ToolUsed = nil
		state.ToolResults = nil
		return nil
	}

	if len(resp.ToolCalls) == 0 {
		state.ToolUsed = nil
		state.ToolResults = nil
		return nil
	}

	var (
		names   []string
		results []ToolResult
	)
	for _, call := range resp.ToolCalls {
		name := call.Function.Name

		started := time.Now()
		result := n.registry.Execute(ctx, name, json.RawMessage(call.Function.Arguments))
		if n.onToolCall != nil {
			n.onToolCall(name, time.Since(started), result.OK())
		}

		names = append(names, name)
		if result.OK() {
			results = append(results, ToolResult{Tool: name, Result: result})
		} else {
			results = append(results, ToolResult{Tool: name, Error: result.ErrorMessage()})
		}
	}

	used := strings.Join(names, ",")
	state.ToolUsed = &used
	state.ToolResults = results
	return nil
}

// buildMessages 组装系统提示 + 最近 3 轮历史 + 带意图前缀的当前消息.
func (n *FunctionCallingNode) buildMessages(state *State) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "你是电商平台的客服助手, 当前用户 user_id=%d。根据用户意图选择合适的工具:\n", state.UserID)
	for _, p := range preferredTools {
		fmt.Fprintf(&sb, "- %s: 优先使用 %s\n", p.Intent, p.Tools)
	}
	sb.WriteString("只在确有必要时调用工具。")

	messages := []llm.Message{llm.SystemPrompt(sb.String())}

	history := state.ConversationHistory
	if len(history) > 3 {
		history = history[len(history)-3:]
	}
	for _, turn := range history {
		messages = append(messages, llm.UserMessage(turn.User))
		messages = append(messages, llm.AssistantMessage(turn.Assistant))
	}

	messages = append(messages, llm.UserMessage(
		fmt.Sprintf("[意图: %s] %s", state.Intent, state.UserMessage)))
	return messages
}
