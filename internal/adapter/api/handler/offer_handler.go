package handler

import (
	"github.com/labstack/echo/v4"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/usecase"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/response"
)

type OfferHandler struct {
	offerUseCase   *usecase.OfferUseCase
	messageUseCase *usecase.MessageUseCase
}

func NewOfferHandler(offerUseCase *usecase.OfferUseCase, messageUseCase *usecase.MessageUseCase) *OfferHandler {
	return &OfferHandler{
		offerUseCase:   offerUseCase,
		messageUseCase: messageUseCase,
	}
}

func (h *OfferHandler) SendOffer(c echo.Context) error {
	var req entity.OfferInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.Validation("Invalid request body"))
	}

	offer, err := h.offerUseCase.SendOffer(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, offer)
}

func (h *OfferHandler) GetOffers(c echo.Context) error {
	offers, source, err := h.offerUseCase.GetOffers(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.List(c, offers, len(offers), source)
}

type sendMessageRequest struct {
	OfferID string `json:"offerId"`
	Text    string `json:"text"`
}

func (h *OfferHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.Validation("Invalid request body"))
	}

	message, err := h.messageUseCase.SendMessage(c.Request().Context(), c.Param("id"), req.OfferID, req.Text)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, message)
}

func (h *OfferHandler) GetMessages(c echo.Context) error {
	messages, source, err := h.messageUseCase.GetMessages(c.Request().Context(), c.Param("id"), c.QueryParam("offerId"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.List(c, messages, len(messages), source)
}

func (h *OfferHandler) MarkMessageRead(c echo.Context) error {
	err := h.messageUseCase.MarkMessageRead(c.Request().Context(), c.Param("id"), c.QueryParam("offerId"), c.Param("messageId"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]bool{"read": true})
}
