package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
	"github.com/gradmall/mallchat/ai/metrics"
	"github.com/gradmall/mallchat/ai/session"
	"github.com/gradmall/mallchat/ai/summary"
	"github.com/gradmall/mallchat/ai/tools"
)

// Stream event types.
const (
	EventStart    = "start"
	EventIntent   = "intent"
	EventThinking = "thinking"
	EventContent  = "content"
	EventEnd      = "end"
)

// DefaultRequestTimeout 非流式请求的全局超时.
const DefaultRequestTimeout = 30 * time.Second

// Event 流式响应事件.
type Event struct {
	Type                string                   `json:"type"`
	Intent              string                   `json:"intent,omitempty"`
	Content             string                   `json:"content,omitempty"`
	Delta               string                   `json:"delta,omitempty"`
	Sources             []map[string]interface{} `json:"sources,omitempty"`
	QuickActions        []QuickAction            `json:"quick_actions,omitempty"`
	RecommendedProducts []int64                  `json:"recommended_products,omitempty"`
	TicketID            string                   `json:"ticket_id,omitempty"`
	ProcessingTime      float64                  `json:"processing_time,omitempty"`
}

// Dependencies 引擎的外部协作方. LLM 必填, 其余可按部署裁剪.
type Dependencies struct {
	LLM        llm.Service
	IntentLLM  llm.Service
	Store      session.Store
	Retriever  DocumentRetriever
	Registry   *tools.Registry
	Summarizer summary.Summarizer
	Facade     *facade.Facade
	Metrics    *metrics.PrometheusExporter
}

// Config 引擎行为参数.
type Config struct {
	RequestTimeout          time.Duration
	RetrievalTopK           int
	IntentHistorySize       int
	IntentFallbackThreshold float64
}

// Engine 会话处理图: context -> intent -> function_calling -> router ->
// responder -> save. clarify 不经过 save 直接结束.
type Engine struct {
	contextNode  *ContextNode
	intentNode   *IntentNode
	functionNode *FunctionCallingNode
	saveNode     *SaveContextNode
	responders   map[string]Node

	requestTimeout time.Duration
	metrics        *metrics.PrometheusExporter
}

// NewEngine wires the graph from its dependencies.
func NewEngine(deps Dependencies, cfg Config) *Engine {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	intentLLM := deps.IntentLLM
	if intentLLM == nil {
		intentLLM = deps.LLM
	}

	var onDecision func(Intent, string)
	if deps.Metrics != nil {
		m := deps.Metrics
		onDecision = func(intent Intent, method string) {
			m.RecordIntentDecision(string(intent), method)
			switch method {
			case "cache":
				m.RecordCacheHit("intent")
			case "llm", "default":
				m.RecordCacheMiss("intent")
			}
		}
	}

	var (
		attachments facade.AttachmentService
		orders      facade.OrderService
		products    facade.ProductService
		browse      facade.BrowseService
		recommender facade.RecommendationService
	)
	if deps.Facade != nil {
		attachments = deps.Facade.Attachments
		orders = deps.Facade.Orders
		products = deps.Facade.Products
		browse = deps.Facade.Browse
		recommender = deps.Facade.Recommendations
	}

	saveNode := NewSaveContextNode(deps.Store, deps.Summarizer)
	if deps.Metrics != nil {
		saveNode.SetSummarizeHook(func(outcome string) {
			deps.Metrics.RecordSummarization(outcome)
		})
	}

	functionNode := NewFunctionCallingNode(deps.LLM, deps.Registry)
	qaNode := NewQANode(deps.LLM, deps.Retriever, attachments, cfg.RetrievalTopK)
	if deps.Metrics != nil {
		m := deps.Metrics
		functionNode.SetToolCallHook(m.RecordToolCall)
		qaNode.SetRetrievalHook(func(collection string, docs int) {
			m.RecordRetrieval(collection, docs, true)
		})
	}

	e := &Engine{
		contextNode: NewContextNode(deps.Store),
		intentNode: NewIntentNode(intentLLM, IntentNodeConfig{
			HistorySize:       cfg.IntentHistorySize,
			FallbackThreshold: cfg.IntentFallbackThreshold,
			OnDecision:        onDecision,
		}),
		functionNode:   functionNode,
		saveNode:       saveNode,
		requestTimeout: cfg.RequestTimeout,
		metrics:        deps.Metrics,
		responders: map[string]Node{
			NodeQA:                    qaNode,
			NodeDocument:              NewDocumentNode(deps.LLM, attachments),
			NodeTicket:                NewTicketNode(deps.LLM),
			NodeClarify:               NewClarifyNode(deps.LLM),
			NodeProductRecommendation: NewProductRecommendationNode(deps.LLM, products),
			NodeProductInquiry:        NewProductInquiryNode(deps.LLM, products),
			NodePersonalized:          NewPersonalizedRecommendNode(deps.LLM, browse, recommender),
			NodeOrderQuery:            NewOrderQueryNode(orders),
			NodePurchaseGuide:         NewPurchaseGuideNode(deps.LLM),
		},
	}
	return e
}

// ProcessMessage 同步跑完整个图并返回最终状态.
func (e *Engine) ProcessMessage(ctx context.Context, userID int64, sessionID, message string, attachments []Attachment) *State {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()

	if e.metrics != nil {
		e.metrics.IncActiveChats()
		defer e.metrics.DecActiveChats()
	}

	state := NewState(userID, sessionID, message, attachments)
	e.runToRouter(ctx, state)

	key := Route(state)
	e.runResponder(ctx, state, key)

	if key != NodeClarify {
		_ = e.saveNode.Execute(ctx, state)
	}

	state.ProcessingTime = time.Since(start).Seconds()
	e.recordChat(state, "sync", start)
	return state
}

// ProcessMessageStream 流式执行. 事件序列: start, intent, thinking*,
// content+, end. 调用方取消 ctx 即终止生产.
func (e *Engine) ProcessMessageStream(ctx context.Context, userID int64, sessionID, message string, attachments []Attachment) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		start := time.Now()

		if e.metrics != nil {
			e.metrics.IncActiveChats()
			defer e.metrics.DecActiveChats()
		}

		send := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(Event{Type: EventStart}) {
			return
		}

		state := NewState(userID, sessionID, message, attachments)
		_ = e.contextNode.Execute(ctx, state)
		_ = e.intentNode.Execute(ctx, state)

		if !send(Event{Type: EventIntent, Intent: string(state.Intent)}) {
			return
		}
		if !send(Event{Type: EventThinking, Content: fmt.Sprintf("识别到意图: %s", state.Intent)}) {
			return
		}

		_ = e.functionNode.Execute(ctx, state)
		if state.ToolUsed != nil {
			for _, name := range strings.Split(*state.ToolUsed, ",") {
				if !send(Event{Type: EventThinking, Content: fmt.Sprintf("正在调用工具: %s", name)}) {
					return
				}
			}
		}

		key := Route(state)
		responder, ok := e.responders[key]
		if !ok {
			responder = e.responders[NodeClarify]
		}

		if !send(Event{Type: EventThinking, Content: "正在生成回复..."}) {
			return
		}

		emitted := false
		if streaming, okStream := responder.(StreamingNode); okStream {
			_ = streaming.ExecuteStream(ctx, state, func(delta string) {
				if delta == "" {
					return
				}
				emitted = true
				send(Event{Type: EventContent, Delta: delta})
			})
		} else {
			_ = responder.Execute(ctx, state)
		}

		if !emitted {
			if state.Response == "" {
				state.Response = apologyResponse
			}
			if !send(Event{Type: EventContent, Delta: state.Response}) {
				return
			}
		}

		// 客户端断开后不落盘, 半截回复不进会话历史.
		if key != NodeClarify && ctx.Err() == nil {
			_ = e.saveNode.Execute(ctx, state)
		}

		state.ProcessingTime = time.Since(start).Seconds()
		e.recordChat(state, "stream", start)

		send(Event{
			Type:                EventEnd,
			Sources:             state.Sources,
			QuickActions:        state.QuickActions,
			RecommendedProducts: state.RecommendedProducts,
			TicketID:            state.TicketID,
			ProcessingTime:      state.ProcessingTime,
		})
	}()

	return events
}

func (e *Engine) runToRouter(ctx context.Context, state *State) {
	_ = e.contextNode.Execute(ctx, state)
	_ = e.intentNode.Execute(ctx, state)
	_ = e.functionNode.Execute(ctx, state)
}

func (e *Engine) runResponder(ctx context.Context, state *State, key string) {
	responder, ok := e.responders[key]
	if !ok {
		slog.Error("Unknown responder key", "key", key)
		state.Response = apologyResponse
		return
	}
	if err := responder.Execute(ctx, state); err != nil {
		slog.Warn("Responder failed", "node", key, "error", err)
	}
	if state.Response == "" {
		state.Response = apologyResponse
	}
}

func (e *Engine) recordChat(state *State, mode string, start time.Time) {
	if e.metrics == nil {
		return
	}
	success := state.Response != apologyResponse
	e.metrics.RecordChatRequest(string(state.Intent), mode, time.Since(start), success)
}
