package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
	"github.com/gradmall/mallchat/ai/knowledge"
)

// attachmentExtractLimit QA 节点每个附件最多读取的字符数.
const attachmentExtractLimit = 5000

var greetingPattern = regexp.MustCompile(`(?i)^(你好|您好|hi|hello|hey|嗨|谢谢|thanks|thank you|ok|好的)[!！。.~\s]*$`)

// DocumentRetriever 知识检索入口. *knowledge.Retriever 满足该接口.
type DocumentRetriever interface {
	DefaultOptions() knowledge.RetrieveOptions
	Retrieve(ctx context.Context, query, collection string, opts knowledge.RetrieveOptions) []knowledge.RetrievedDocument
}

// QANode 知识库问答. 简短问候走精简提示不触发检索.
type QANode struct {
	llm         llm.Service
	retriever   DocumentRetriever
	attachments facade.AttachmentService
	topK        int

	// onRetrieve is invoked after each retrieval, for metrics.
	onRetrieve func(collection string, docs int)
}

// NewQANode creates the QA responder.
func NewQANode(llmService llm.Service, retriever DocumentRetriever, attachments facade.AttachmentService, topK int) *QANode {
	if topK <= 0 {
		topK = knowledge.DefaultTopK
	}
	return &QANode{llm: llmService, retriever: retriever, attachments: attachments, topK: topK}
}

// SetRetrievalHook registers a per-retrieval callback.
func (n *QANode) SetRetrievalHook(hook func(collection string, docs int)) {
	n.onRetrieve = hook
}

func (n *QANode) Name() string { return NodeQA }

func (n *QANode) Execute(ctx context.Context, state *State) error {
	return n.run(ctx, state, nil)
}

func (n *QANode) ExecuteStream(ctx context.Context, state *State, emit func(string)) error {
	return n.run(ctx, state, emit)
}

func (n *QANode) run(ctx context.Context, state *State, emit func(string)) error {
	messages := n.buildMessages(ctx, state)

	content, err := streamLLM(ctx, n.llm, messages, emit)
	if err != nil {
		slog.Warn("QA response failed", "session_id", state.SessionID, "error", err)
		state.Response = apologyResponse
		if emit != nil {
			emit(apologyResponse)
		}
		return nil
	}

	state.Response = content
	return nil
}

func isGreeting(message string) bool {
	trimmed := strings.TrimSpace(message)
	return greetingPattern.MatchString(trimmed) || utf8.RuneCountInString(trimmed) <= 4
}

func (n *QANode) buildMessages(ctx context.Context, state *State) []llm.Message {
	if isGreeting(state.UserMessage) {
		state.Sources = nil
		return llm.FormatMessages("你是友好的电商客服助手, 请简短地回应用户的问候。", state.UserMessage, nil)
	}

	var sb strings.Builder
	sb.WriteString("你是电商平台的客服助手, 请根据提供的资料回答用户问题, 资料不足时如实说明。\n")

	if state.ConversationSummary != "" {
		fmt.Fprintf(&sb, "\n对话历史摘要: %s\n", state.ConversationSummary)
	}

	if n.retriever != nil {
		opts := n.retriever.DefaultOptions()
		opts.TopK = n.topK
		docs := n.retriever.Retrieve(ctx, state.UserMessage, knowledge.CollectionKnowledgeBase, opts)
		if n.onRetrieve != nil {
			n.onRetrieve(knowledge.CollectionKnowledgeBase, len(docs))
		}
		state.RetrievedDocs = docs
		if len(docs) > 0 {
			sb.WriteString("\n相关资料:\n")
			for i, doc := range docs {
				fmt.Fprintf(&sb, "[%d] %s\n", i+1, doc.Content)
				state.Sources = append(state.Sources, doc.Metadata)
			}
		}
	}

	if text := n.extractAttachments(ctx, state); text != "" {
		sb.WriteString("\n用户上传的文件内容:\n")
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	if history := renderRecentHistory(state.ConversationHistory, 3); history != "" {
		sb.WriteString("\n最近的对话:\n")
		sb.WriteString(history)
	}

	return llm.FormatMessages(sb.String(), state.UserMessage, nil)
}

func (n *QANode) extractAttachments(ctx context.Context, state *State) string {
	if n.attachments == nil || len(state.Attachments) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, att := range state.Attachments {
		text, err := n.attachments.ExtractText(ctx, att.FilePath)
		if err != nil {
			slog.Warn("Attachment read failed", "file", att.FileName, "error", err)
			continue
		}
		fmt.Fprintf(&sb, "《%s》\n%s\n", att.FileName, truncateRunes(text, attachmentExtractLimit))
	}
	return sb.String()
}
