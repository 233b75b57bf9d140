package router

import (
	"github.com/labstack/echo/v4"

	"schadenschat/internal/adapter/api/handler"
	"schadenschat/internal/adapter/api/middleware"
	"schadenschat/internal/infrastructure/ratelimit"
)

func SetupRequestRouter(e *echo.Echo, requestHandler *handler.RequestHandler, offerHandler *handler.OfferHandler, rateLimit *middleware.RateLimitMiddleware) {
	requests := e.Group("/v1/requests")

	requests.POST("", requestHandler.CreateRequest, rateLimit.Limit(ratelimit.ActionCreate))
	requests.GET("/mine", requestHandler.GetMyRequests)
	requests.GET("/open", requestHandler.GetOpenRequests)
	requests.GET("/:id", requestHandler.GetRequest)
	requests.POST("/:id/cancel", requestHandler.CancelRequest)
	requests.POST("/:id/status", requestHandler.AdvanceStatus)

	requests.POST("/:id/offers", offerHandler.SendOffer, rateLimit.Limit(ratelimit.ActionSendOffer))
	requests.GET("/:id/offers", offerHandler.GetOffers)
	requests.POST("/:id/offers/:offerId/accept", requestHandler.AcceptOffer)

	requests.POST("/:id/messages", offerHandler.SendMessage, rateLimit.Limit(ratelimit.ActionSendMessage))
	requests.GET("/:id/messages", offerHandler.GetMessages)
	requests.PUT("/:id/messages/:messageId/read", offerHandler.MarkMessageRead)

	e.POST("/v1/sync", requestHandler.SyncLocalToRemote)
}
