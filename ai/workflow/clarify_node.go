package workflow

import (
	"context"
	"log/slog"

	"github.com/gradmall/mallchat/ai/core/llm"
)

const clarifyFallbackResponse = `抱歉，我没有完全理解您的意思。我可以帮您:
- 查询订单和物流
- 推荐和介绍项目课程
- 解答购买、支付、退款问题
- 分析您上传的文档
- 记录问题反馈

请告诉我您想做什么?`

// ClarifyNode 低置信度时请求用户澄清, 不写入会话历史.
type ClarifyNode struct {
	llm llm.Service
}

// NewClarifyNode creates the clarification responder.
func NewClarifyNode(llmService llm.Service) *ClarifyNode {
	return &ClarifyNode{llm: llmService}
}

func (n *ClarifyNode) Name() string { return NodeClarify }

func (n *ClarifyNode) Execute(ctx context.Context, state *State) error {
	return n.run(ctx, state, nil)
}

func (n *ClarifyNode) ExecuteStream(ctx context.Context, state *State, emit func(string)) error {
	return n.run(ctx, state, emit)
}

func (n *ClarifyNode) run(ctx context.Context, state *State, emit func(string)) error {
	if n.llm == nil {
		state.Response = clarifyFallbackResponse
		if emit != nil {
			emit(state.Response)
		}
		return nil
	}

	messages := llm.FormatMessages(
		"你是电商客服助手。用户的提问不够明确, 请自然地请他说得具体一些, 并列出你能提供的服务: 订单物流查询、项目推荐与咨询、购买支付退款答疑、文档分析、问题反馈。",
		state.UserMessage, nil)

	content, err := streamLLM(ctx, n.llm, messages, emit)
	if err != nil {
		slog.Warn("Clarify response failed", "session_id", state.SessionID, "error", err)
		state.Response = clarifyFallbackResponse
		if emit != nil {
			emit(state.Response)
		}
		return nil
	}

	state.Response = content
	return nil
}
