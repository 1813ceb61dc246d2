package workflow

import (
	"context"
	"log/slog"

	"github.com/gradmall/mallchat/ai/session"
	"github.com/gradmall/mallchat/ai/summary"
)

// SaveContextNode 落盘本轮对话并按需压缩历史.
// 保存失败一律吞掉, 不影响已经生成的响应.
type SaveContextNode struct {
	store      session.Store
	summarizer summary.Summarizer

	// onSummarize reports the summarizer outcome (success, fallback, skipped).
	onSummarize func(outcome string)
}

// NewSaveContextNode creates the save node. summarizer may be nil.
func NewSaveContextNode(store session.Store, summarizer summary.Summarizer) *SaveContextNode {
	return &SaveContextNode{store: store, summarizer: summarizer}
}

// SetSummarizeHook registers a summarizer outcome callback.
func (n *SaveContextNode) SetSummarizeHook(hook func(outcome string)) {
	n.onSummarize = hook
}

func (n *SaveContextNode) Name() string { return "save" }

func (n *SaveContextNode) Execute(ctx context.Context, state *State) error {
	if n.store == nil {
		return nil
	}

	if err := n.store.AppendTurn(ctx, state.SessionID, state.UserMessage, state.Response); err != nil {
		slog.Warn("Failed to append turn", "session_id", state.SessionID, "error", err)
		return nil
	}

	lastIntent := string(state.Intent)
	intentHistory := state.IntentHistory
	updates := session.Updates{
		LastIntent:    &lastIntent,
		IntentHistory: &intentHistory,
	}
	// 首轮消息生成会话标题
	if len(state.ConversationHistory) == 0 {
		title := session.GenerateTitle(state.UserMessage, session.DefaultTitleMaxRunes)
		updates.Title = &title
	}
	if err := n.store.Update(ctx, state.SessionID, updates); err != nil {
		slog.Warn("Failed to update session fields", "session_id", state.SessionID, "error", err)
	}

	n.maybeSummarize(ctx, state.SessionID)
	return nil
}

// maybeSummarize 重新读取追加后的历史, 超过阈值时压缩旧轮次.
func (n *SaveContextNode) maybeSummarize(ctx context.Context, sessionID string) {
	if n.summarizer == nil {
		return
	}

	record, err := n.store.Get(ctx, sessionID)
	if err != nil || record == nil {
		return
	}
	if !n.summarizer.ShouldSummarize(record.History) {
		n.reportSummarize("skipped")
		return
	}

	result, err := n.summarizer.Summarize(ctx, record.History, record.ConversationSummary)
	if err != nil {
		slog.Warn("Summarization failed, truncating history",
			"session_id", sessionID, "error", err)
		fallback := n.summarizer.FallbackTruncate(record.History)
		if updateErr := n.store.Update(ctx, sessionID, session.Updates{
			History: &fallback.RemainingHistory,
		}); updateErr != nil {
			slog.Warn("Failed to store truncated history", "session_id", sessionID, "error", updateErr)
		}
		n.reportSummarize("fallback")
		return
	}

	if err := n.store.Update(ctx, sessionID, session.Updates{
		History: &result.RemainingHistory,
		Summary: &result.Summary,
	}); err != nil {
		slog.Warn("Failed to store summary", "session_id", sessionID, "error", err)
		return
	}

	slog.Info("Conversation summarized",
		"session_id", sessionID,
		"remaining_turns", len(result.RemainingHistory),
	)
	n.reportSummarize("success")
}

func (n *SaveContextNode) reportSummarize(outcome string) {
	if n.onSummarize != nil {
		n.onSummarize(outcome)
	}
}
