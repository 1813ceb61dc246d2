package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/session"
)

const (
	// attachmentShortcutMaxRunes 附件且消息很短时直接判定为文档分析.
	attachmentShortcutMaxRunes = 20

	attachmentShortcutConfidence = 0.95
	llmIntentConfidence          = 0.9
	llmFailureConfidence         = 0.5
)

// keywordRule 一组关键词命中即判定意图, 按表序先命中者生效.
type keywordRule struct {
	Intent     Intent
	Keywords   []string
	Confidence float64
}

// 关键词表. 个性化推荐在通用推荐之前, 否则 "为我推荐" 会被通用表吃掉.
var keywordRules = []keywordRule{
	{IntentOrderQuery, []string{"订单", "物流", "发货", "快递", "单号", "到哪"}, 0.93},
	{IntentTicket, []string{"投诉", "bug", "报错", "故障", "无法使用", "出错了"}, 0.92},
	{IntentPurchaseGuide, []string{"怎么买", "如何购买", "支付", "退款", "优惠券", "下单流程", "付款方式"}, 0.90},
	{IntentPersonalizedRecommend, []string{"为我推荐", "给我推荐", "猜我喜欢", "个性化推荐", "根据我的"}, 0.90},
	{IntentProductRecommend, []string{"推荐", "有什么项目", "有哪些项目", "热门项目"}, 0.88},
	{IntentProductInquiry, []string{"详情", "介绍一下", "对比", "区别", "适合我吗", "难度怎么样"}, 0.88},
	{IntentDocumentAnalysis, []string{"分析文档", "这份文件", "文档内容", "分析一下这个文件"}, 0.90},
}

// IntentNode 两层意图分类器: 规则优先, LLM 兜底, 带缓存与历史回退.
type IntentNode struct {
	llm               llm.Service
	cache             *intentCache
	historySize       int
	fallbackThreshold float64
	onDecision        func(intent Intent, method string)
}

// IntentNodeConfig configures the intent classifier node.
type IntentNodeConfig struct {
	HistorySize       int
	FallbackThreshold float64

	// OnDecision is invoked once per classification with the decision
	// method (attachment, keyword, cache, llm, history_fallback, default).
	OnDecision func(intent Intent, method string)
}

// NewIntentNode 创建意图节点. llmService 可为 nil, 此时无规则命中一律落到 QA.
func NewIntentNode(llmService llm.Service, cfg IntentNodeConfig) *IntentNode {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 5
	}
	if cfg.FallbackThreshold <= 0 {
		cfg.FallbackThreshold = 0.7
	}
	return &IntentNode{
		llm:               llmService,
		cache:             newIntentCache(),
		historySize:       cfg.HistorySize,
		fallbackThreshold: cfg.FallbackThreshold,
		onDecision:        cfg.OnDecision,
	}
}

func (n *IntentNode) Name() string { return "intent" }

func (n *IntentNode) Execute(ctx context.Context, state *State) error {
	intent, confidence, method := n.classify(ctx, state)

	state.Intent = intent
	state.Confidence = confidence
	n.appendIntentHistory(state)

	if n.onDecision != nil {
		n.onDecision(intent, method)
	}
	slog.Info("Intent recognized",
		"session_id", state.SessionID,
		"intent", intent,
		"confidence", confidence,
		"method", method,
	)
	return nil
}

func (n *IntentNode) classify(ctx context.Context, state *State) (Intent, float64, string) {
	message := state.UserMessage

	// 1. 附件捷径
	if len(state.Attachments) > 0 && utf8.RuneCountInString(message) <= attachmentShortcutMaxRunes {
		return IntentDocumentAnalysis, attachmentShortcutConfidence, "attachment"
	}

	// 2. 关键词规则
	for _, rule := range keywordRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(message, kw) {
				return rule.Intent, rule.Confidence, "keyword"
			}
		}
	}

	// 3. 缓存
	if intent, confidence, ok := n.cache.Get(message); ok {
		return intent, confidence, "cache"
	}

	// 4. LLM 兜底
	intent, confidence, ok := n.classifyByLLM(ctx, state)
	method := "llm"
	if ok {
		n.cache.Set(message, intent, confidence)
	} else {
		method = "default"
	}

	// 5. 低置信度时回退到历史意图
	if confidence < n.fallbackThreshold && len(state.IntentHistory) > 0 {
		for i := len(state.IntentHistory) - 1; i >= 0; i-- {
			rec := state.IntentHistory[i]
			if rec.Confidence >= n.fallbackThreshold {
				if prev := Intent(rec.Intent); prev.Valid() {
					return prev, rec.Confidence, "history_fallback"
				}
			}
		}
	}

	return intent, confidence, method
}

// classifyByLLM 单轮提示请求闭集中的一个标签. ok 为 false 表示调用失败.
func (n *IntentNode) classifyByLLM(ctx context.Context, state *State) (Intent, float64, bool) {
	if n.llm == nil {
		return IntentQA, llmFailureConfidence, false
	}

	prompt := n.buildPrompt(state)
	content, _, err := n.llm.Chat(ctx, []llm.Message{llm.UserMessage(prompt)})
	if err != nil {
		slog.Warn("Intent LLM call failed, defaulting to QA",
			"session_id", state.SessionID, "error", err)
		return IntentQA, llmFailureConfidence, false
	}

	return parseIntent(content), llmIntentConfidence, true
}

// buildPrompt 有历史时渲染最近 K 条意图记录, 无历史用精简版提示.
func (n *IntentNode) buildPrompt(state *State) string {
	labels := make([]string, len(AllIntents))
	for i, it := range AllIntents {
		labels[i] = string(it)
	}
	labelList := strings.Join(labels, ", ")

	if len(state.IntentHistory) == 0 {
		return fmt.Sprintf(`你是电商客服的意图分类器。请把用户消息归类到以下类别之一, 只输出类别名称:
%s

用户消息: %s`, labelList, state.UserMessage)
	}

	recent := state.IntentHistory
	if len(recent) > n.historySize {
		recent = recent[len(recent)-n.historySize:]
	}
	var sb strings.Builder
	for _, rec := range recent {
		fmt.Fprintf(&sb, "- 第%d轮: %s (%.2f)\n", rec.Turn, rec.Intent, rec.Confidence)
	}

	return fmt.Sprintf(`你是电商客服的意图分类器。请把用户消息归类到以下类别之一, 只输出类别名称:
%s

最近几轮的意图:
%s
用户消息: %s`, labelList, sb.String(), state.UserMessage)
}

// parseIntent 在返回文本中子串匹配闭集标签, 无匹配回退 QA.
func parseIntent(content string) Intent {
	for _, it := range AllIntents {
		if strings.Contains(content, string(it)) {
			return it
		}
	}
	return IntentQA
}

// appendIntentHistory 追加本轮记录, 不改动加载进来的切片.
func (n *IntentNode) appendIntentHistory(state *State) {
	record := session.IntentRecord{
		Intent:     string(state.Intent),
		Confidence: state.Confidence,
		Turn:       state.LastTurnNumber() + 1,
		Timestamp:  time.Now(),
	}

	updated := make([]session.IntentRecord, 0, len(state.IntentHistory)+1)
	updated = append(updated, state.IntentHistory...)
	updated = append(updated, record)
	state.IntentHistory = updated
}
