package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gradmall/mallchat/ai/core/llm"
)

const purchaseGuidePrompt = `你是电商平台的购买向导, 请根据以下平台规则回答用户的问题:

购买流程:
1. 在项目详情页点击"立即购买"
2. 确认订单信息并选择支付方式
3. 支付完成后在"我的订单"中查看

支付方式: 支持微信支付、支付宝、银行卡。
优惠券: 下单时在结算页输入优惠码即可抵扣。
退款政策: 虚拟内容类商品支付后7天内未消费可申请全额退款; 已开始学习的课程按进度部分退款; 退款在3-5个工作日原路退回。

回答要简洁友好, 规则之外的问题如实说明并建议联系人工客服。`

// PurchaseGuideNode 购买流程, 支付与退款答疑.
type PurchaseGuideNode struct {
	llm llm.Service
}

// NewPurchaseGuideNode creates the purchase guide responder.
func NewPurchaseGuideNode(llmService llm.Service) *PurchaseGuideNode {
	return &PurchaseGuideNode{llm: llmService}
}

func (n *PurchaseGuideNode) Name() string { return NodePurchaseGuide }

func (n *PurchaseGuideNode) Execute(ctx context.Context, state *State) error {
	return n.run(ctx, state, nil)
}

func (n *PurchaseGuideNode) ExecuteStream(ctx context.Context, state *State, emit func(string)) error {
	return n.run(ctx, state, emit)
}

func (n *PurchaseGuideNode) run(ctx context.Context, state *State, emit func(string)) error {
	var sb strings.Builder
	if len(state.ToolResults) > 0 {
		sb.WriteString("本轮工具调用结果:\n")
		for _, tr := range state.ToolResults {
			if tr.Error != "" {
				fmt.Fprintf(&sb, "- %s 调用失败: %s\n", tr.Tool, tr.Error)
			} else {
				fmt.Fprintf(&sb, "- %s: %v\n", tr.Tool, tr.Result)
			}
		}
	}

	messages := []llm.Message{llm.SystemPrompt(purchaseGuidePrompt)}
	if sb.Len() > 0 {
		messages = append(messages, llm.SystemPrompt(sb.String()))
	}
	messages = append(messages, llm.UserMessage(state.UserMessage))

	content, err := streamLLM(ctx, n.llm, messages, emit)
	if err != nil {
		slog.Warn("Purchase guide failed", "session_id", state.SessionID, "error", err)
		state.Response = apologyResponse
		if emit != nil {
			emit(apologyResponse)
		}
		return nil
	}

	state.Response = content
	return nil
}
