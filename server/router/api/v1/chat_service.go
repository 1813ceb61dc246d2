package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/gradmall/mallchat/ai/workflow"
)

// userIDHeader 网关透传的已认证用户标识.
const userIDHeader = "X-User-ID"

const maxMessageRunes = 4000

// AttachmentPayload 请求中的附件描述.
type AttachmentPayload struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
	FilePath string `json:"file_path"`
}

// SendMessageRequest POST /api/v1/chat/message 的请求体.
type SendMessageRequest struct {
	SessionID   string              `json:"session_id"`
	Message     string              `json:"message"`
	Attachments []AttachmentPayload `json:"attachments,omitempty"`
	UserID      int64               `json:"user_id,omitempty"`
}

// SendMessageResponse 同步聊天的响应体.
type SendMessageResponse struct {
	MessageID           string                   `json:"message_id"`
	Content             string                   `json:"content"`
	Sources             []map[string]interface{} `json:"sources,omitempty"`
	Intent              string                   `json:"intent,omitempty"`
	TicketID            string                   `json:"ticket_id,omitempty"`
	ProcessingTime      float64                  `json:"processing_time,omitempty"`
	QuickActions        []workflow.QuickAction   `json:"quick_actions,omitempty"`
	RecommendedProducts []int64                  `json:"recommended_products,omitempty"`
}

// SendMessage 同步处理一条用户消息并返回最终回复.
func (s *APIV1Service) SendMessage(c echo.Context) error {
	req, userID, err := s.bindChatRequest(c)
	if err != nil {
		return err
	}

	state := s.Engine.ProcessMessage(
		c.Request().Context(),
		userID,
		req.SessionID,
		req.Message,
		toAttachments(req.Attachments),
	)

	return c.JSON(http.StatusOK, SendMessageResponse{
		MessageID:           uuid.NewString(),
		Content:             state.Response,
		Sources:             state.Sources,
		Intent:              string(state.Intent),
		TicketID:            state.TicketID,
		ProcessingTime:      state.ProcessingTime,
		QuickActions:        state.QuickActions,
		RecommendedProducts: state.RecommendedProducts,
	})
}

// bindChatRequest 解析并校验聊天请求. 两个聊天路由共用.
func (s *APIV1Service) bindChatRequest(c echo.Context) (*SendMessageRequest, int64, error) {
	req := &SendMessageRequest{}
	if err := c.Bind(req); err != nil {
		return nil, 0, echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return nil, 0, echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	if strings.TrimSpace(req.Message) == "" && len(req.Attachments) == 0 {
		return nil, 0, echo.NewHTTPError(http.StatusBadRequest, "message or attachments required")
	}
	if len([]rune(req.Message)) > maxMessageRunes {
		return nil, 0, echo.NewHTTPError(http.StatusBadRequest, "message too long")
	}

	userID := req.UserID
	if header := c.Request().Header.Get(userIDHeader); header != "" {
		parsed, err := strconv.ParseInt(header, 10, 64)
		if err != nil {
			return nil, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id header")
		}
		userID = parsed
	}
	if userID <= 0 {
		return nil, 0, echo.NewHTTPError(http.StatusUnauthorized, "user identity required")
	}

	return req, userID, nil
}

func toAttachments(payloads []AttachmentPayload) []workflow.Attachment {
	if len(payloads) == 0 {
		return nil
	}
	out := make([]workflow.Attachment, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, workflow.Attachment{
			FileID:   p.FileID,
			FileName: p.FileName,
			FileType: p.FileType,
			FileSize: p.FileSize,
			FilePath: p.FilePath,
		})
	}
	return out
}
