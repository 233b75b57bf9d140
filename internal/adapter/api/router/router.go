package router

import (
	"github.com/labstack/echo/v4"

	"schadenschat/internal/adapter/api/handler"
	"schadenschat/internal/adapter/api/middleware"
)

// Handlers bundles what the app core API serves.
type Handlers struct {
	Request   *handler.RequestHandler
	Offer     *handler.OfferHandler
	Session   *handler.SessionHandler
	Health    *handler.HealthHandler
	WebSocket *handler.WebSocketHandler
}

func Setup(e *echo.Echo, h Handlers, rateLimit *middleware.RateLimitMiddleware) {
	SetupSessionRouter(e, h.Session)
	SetupRequestRouter(e, h.Request, h.Offer, rateLimit)
	SetupWebSocketRouter(e, h.WebSocket, rateLimit)
	SetupHealthRouter(e, h.Health)
}

// SetupFunctions mounts the dispatcher process routes.
func SetupFunctions(e *echo.Echo, callableHandler *handler.CallableHandler, healthHandler *handler.HealthHandler, authMiddleware *middleware.AuthMiddleware) {
	SetupCallableRouter(e, callableHandler, authMiddleware)
	SetupHealthRouter(e, healthHandler)
}
