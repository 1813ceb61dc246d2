package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
)

// documentExtractLimit 文档分析节点每个附件最多读取的字符数.
const documentExtractLimit = 8000

// DocumentNode 对上传文档做结构化分析.
type DocumentNode struct {
	llm         llm.Service
	attachments facade.AttachmentService
}

// NewDocumentNode creates the document analysis responder.
func NewDocumentNode(llmService llm.Service, attachments facade.AttachmentService) *DocumentNode {
	return &DocumentNode{llm: llmService, attachments: attachments}
}

func (n *DocumentNode) Name() string { return NodeDocument }

func (n *DocumentNode) Execute(ctx context.Context, state *State) error {
	return n.run(ctx, state, nil)
}

func (n *DocumentNode) ExecuteStream(ctx context.Context, state *State, emit func(string)) error {
	return n.run(ctx, state, emit)
}

func (n *DocumentNode) run(ctx context.Context, state *State, emit func(string)) error {
	combined, files := n.readAttachments(ctx, state)
	if combined == "" {
		state.Response = "抱歉，无法读取您上传的文件内容，请确认文件格式后重新上传。"
		if emit != nil {
			emit(state.Response)
		}
		return nil
	}

	prompt := fmt.Sprintf(`请分析下面的文档内容, 输出结构化的分析结果, 包含以下部分:
1. 文档概要
2. 关键要点
3. 相关建议

文档内容:
%s

用户的问题: %s`, combined, state.UserMessage)

	content, err := streamLLM(ctx, n.llm, []llm.Message{
		llm.SystemPrompt("你是专业的文档分析助手。"),
		llm.UserMessage(prompt),
	}, emit)
	if err != nil {
		slog.Warn("Document analysis failed", "session_id", state.SessionID, "error", err)
		state.Response = apologyResponse
		if emit != nil {
			emit(apologyResponse)
		}
		return nil
	}

	state.Response = content
	state.Sources = []map[string]interface{}{
		{"type": "attachment", "files": files},
	}
	return nil
}

func (n *DocumentNode) readAttachments(ctx context.Context, state *State) (string, []string) {
	if n.attachments == nil {
		return "", nil
	}

	var (
		sb    strings.Builder
		files []string
	)
	for _, att := range state.Attachments {
		text, err := n.attachments.ExtractText(ctx, att.FilePath)
		if err != nil {
			slog.Warn("Attachment read failed", "file", att.FileName, "error", err)
			continue
		}
		fmt.Fprintf(&sb, "《%s》\n%s\n\n", att.FileName, truncateRunes(text, documentExtractLimit))
		files = append(files, att.FileName)
	}
	return strings.TrimSpace(sb.String()), files
}
