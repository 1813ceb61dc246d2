package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// StreamMessage 以 SSE 推送工作流事件. 客户端断开即取消上游生产.
func (s *APIV1Service) StreamMessage(c echo.Context) error {
	req, userID, err := s.bindChatRequest(c)
	if err != nil {
		return err
	}

	resp := c.Response()
	header := resp.Header()
	header.Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	header.Set("Cache-Control", "no-cache, no-store")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	ctx := c.Request().Context()
	events := s.Engine.ProcessMessageStream(ctx, userID, req.SessionID, req.Message, toAttachments(req.Attachments))

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			slog.Error("Failed to marshal stream event", "type", event.Type, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
			// 客户端已断开, ctx 取消会终止上游循环
			slog.Info("Stream client disconnected", "session_id", req.SessionID)
			return nil
		}
		resp.Flush()
	}

	return nil
}
