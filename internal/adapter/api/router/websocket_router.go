package router

import (
	"github.com/labstack/echo/v4"

	"schadenschat/internal/adapter/api/handler"
	"schadenschat/internal/adapter/api/middleware"
	"schadenschat/internal/infrastructure/ratelimit"
)

// SetupWebSocketRouter sets up WebSocket routes
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, rateLimit *middleware.RateLimitMiddleware) {
	e.GET("/ws", wsHandler.HandleWebSocket, rateLimit.Limit(ratelimit.ActionSubscribe))
}
