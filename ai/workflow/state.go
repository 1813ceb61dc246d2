// Package workflow implements the conversation graph: context loading,
// intent recognition, tool calling, responder routing and context save.
package workflow

import (
	"time"

	"github.com/gradmall/mallchat/ai/knowledge"
	"github.com/gradmall/mallchat/ai/session"
)

// Intent 用户消息的顶层意图, 取值固定为 8 个.
type Intent string

const (
	IntentQA                    Intent = "QA"
	IntentTicket                Intent = "Ticket"
	IntentProductRecommend      Intent = "ProductRecommend"
	IntentPersonalizedRecommend Intent = "PersonalizedRecommend"
	IntentProductInquiry        Intent = "ProductInquiry"
	IntentPurchaseGuide         Intent = "PurchaseGuide"
	IntentOrderQuery            Intent = "OrderQuery"
	IntentDocumentAnalysis      Intent = "DocumentAnalysis"
)

// AllIntents 闭集, 顺序用于 LLM 提示词与解析.
var AllIntents = []Intent{
	IntentQA,
	IntentTicket,
	IntentProductRecommend,
	IntentPersonalizedRecommend,
	IntentProductInquiry,
	IntentPurchaseGuide,
	IntentOrderQuery,
	IntentDocumentAnalysis,
}

// Valid reports whether the intent belongs to the closed set.
func (i Intent) Valid() bool {
	for _, known := range AllIntents {
		if i == known {
			return true
		}
	}
	return false
}

// Attachment 当前轮携带的文件.
type Attachment struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
	FilePath string `json:"file_path"`
}

// ToolResult 单个工具调用的结果, Result 与 Error 互斥.
type ToolResult struct {
	Tool   string                 `json:"tool"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// QuickAction 响应中附带的 UI 提示对象.
type QuickAction struct {
	Type   string                 `json:"type"`
	Label  string                 `json:"label,omitempty"`
	Action string                 `json:"action,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
	Icon   string                 `json:"icon,omitempty"`
}

// State 在图中流转的会话状态. 节点就地修改后返回.
type State struct {
	UserID    int64
	SessionID string

	UserMessage string
	Attachments []Attachment

	ConversationHistory []session.Turn
	ConversationSummary string
	IntentHistory       []session.IntentRecord
	UserProfile         map[string]interface{}

	Intent     Intent
	Confidence float64

	RetrievedDocs []knowledge.RetrievedDocument

	// ToolUsed 为空指针表示本轮未进入工具调用;
	// ToolResults 与之同生同灭.
	ToolUsed    *string
	ToolResults []ToolResult

	Response            string
	Sources             []map[string]interface{}
	QuickActions        []QuickAction
	RecommendedProducts []int64
	TicketID            string

	ProcessingTime float64
	Timestamp      time.Time
}

// NewState creates a fresh per-request state.
func NewState(userID int64, sessionID, message string, attachments []Attachment) *State {
	return &State{
		UserID:      userID,
		SessionID:   sessionID,
		UserMessage: message,
		Attachments: attachments,
	}
}

// LastTurnNumber returns the highest turn counter in the intent history.
func (s *State) LastTurnNumber() int {
	last := 0
	for _, rec := range s.IntentHistory {
		if rec.Turn > last {
			last = rec.Turn
		}
	}
	return last
}

// ToolUsedString returns the joined tool names or "" when no tool ran.
func (s *State) ToolUsedString() string {
	if s.ToolUsed == nil {
		return ""
	}
	return *s.ToolUsed
}
