package router

import (
	"github.com/labstack/echo/v4"

	"schadenschat/internal/adapter/api/handler"
)

func SetupSessionRouter(e *echo.Echo, sessionHandler *handler.SessionHandler) {
	session := e.Group("/v1/session")
	session.GET("", sessionHandler.GetSession)
	session.POST("", sessionHandler.SignIn)
	session.DELETE("", sessionHandler.SignOut)

	session.POST("/verification", sessionHandler.BeginVerification)
	session.POST("/verification/complete", sessionHandler.CompleteVerification)
	session.DELETE("/verification", sessionHandler.CancelVerification)
}
