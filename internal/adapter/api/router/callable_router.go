package router

import (
	"github.com/labstack/echo/v4"

	"schadenschat/internal/adapter/api/handler"
	"schadenschat/internal/adapter/api/middleware"
)

// SetupCallableRouter mounts the callable operations. Tokens are optional at
// this level; each function decides whether it needs a caller.
func SetupCallableRouter(e *echo.Echo, callableHandler *handler.CallableHandler, authMiddleware *middleware.AuthMiddleware) {
	callable := e.Group("/v1/callable")
	callable.Use(authMiddleware.Optional)
	callable.POST("/:name", callableHandler.Call)

	e.GET("/v1/vapid-public-key", callableHandler.GetVapidPublicKey)
}
