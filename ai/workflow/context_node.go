package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/gradmall/mallchat/ai/session"
)

// ContextNode 从会话存储加载历史, 画像, 意图记录与摘要.
// 存储故障按空会话处理.
type ContextNode struct {
	store session.Store
}

// NewContextNode creates the context loading node.
func NewContextNode(store session.Store) *ContextNode {
	return &ContextNode{store: store}
}

func (n *ContextNode) Name() string { return "context" }

func (n *ContextNode) Execute(ctx context.Context, state *State) error {
	state.Timestamp = time.Now()
	if n.store == nil {
		return nil
	}

	record, err := n.store.Get(ctx, state.SessionID)
	if err != nil {
		slog.Warn("Session load failed, starting with empty context",
			"session_id", state.SessionID, "error", err)
		return nil
	}
	if record == nil {
		return nil
	}

	state.ConversationHistory = record.History
	state.ConversationSummary = record.ConversationSummary
	state.IntentHistory = record.IntentHistory
	state.UserProfile = record.UserProfile
	return nil
}
