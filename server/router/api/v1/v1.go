// Package v1 carries the /api/v1 chat routes.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/gradmall/mallchat/ai/workflow"
	"github.com/gradmall/mallchat/internal/profile"
)

// APIV1Service exposes the chat API backed by the workflow engine.
type APIV1Service struct {
	Profile *profile.Profile
	Engine  *workflow.Engine

	limiters *userLimiters
}

// NewAPIV1Service creates the v1 API service.
func NewAPIV1Service(instanceProfile *profile.Profile, engine *workflow.Engine) *APIV1Service {
	return &APIV1Service{
		Profile:  instanceProfile,
		Engine:   engine,
		limiters: newUserLimiters(defaultRequestsPerSecond, defaultBurst),
	}
}

// Register mounts the chat routes on the echo instance.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	chatGroup := echoServer.Group("/api/v1/chat", s.rateLimitMiddleware)
	chatGroup.POST("/message", s.SendMessage)
	chatGroup.POST("/stream", s.StreamMessage)
}
