package handler

import (
	"github.com/labstack/echo/v4"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/usecase"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/response"
	"schadenschat/pkg/utils"
)

type RequestHandler struct {
	requestUseCase *usecase.RequestUseCase
}

func NewRequestHandler(requestUseCase *usecase.RequestUseCase) *RequestHandler {
	return &RequestHandler{
		requestUseCase: requestUseCase,
	}
}

type createRequestRequest struct {
	entity.RequestInput
	Photos []string `json:"photos"`
}

func (h *RequestHandler) CreateRequest(c echo.Context) error {
	var req createRequestRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.Validation("Invalid request body"))
	}

	photos := make([]entity.PhotoInput, 0, len(req.Photos))
	for _, p := range req.Photos {
		photos = append(photos, entity.PhotoInput{Data: p})
	}

	request, err := h.requestUseCase.CreateRequest(c.Request().Context(), req.RequestInput, photos)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, request)
}

func (h *RequestHandler) GetRequest(c echo.Context) error {
	request, err := h.requestUseCase.GetRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, request)
}

func (h *RequestHandler) GetMyRequests(c echo.Context) error {
	requests, source, err := h.requestUseCase.ListMyRequests(c.Request().Context())
	if err != nil {
		return response.Error(c, err)
	}
	return response.List(c, requests, len(requests), source)
}

func (h *RequestHandler) GetOpenRequests(c echo.Context) error {
	requests, source, err := h.requestUseCase.ListOpenRequests(c.Request().Context(), utils.GetLimitParam(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.List(c, requests, len(requests), source)
}

func (h *RequestHandler) CancelRequest(c echo.Context) error {
	request, err := h.requestUseCase.CancelRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, request)
}

type advanceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=in_progress completed"`
}

func (h *RequestHandler) AdvanceStatus(c echo.Context) error {
	var req advanceStatusRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.Validation("Invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	request, err := h.requestUseCase.AdvanceStatus(c.Request().Context(), c.Param("id"), entity.RequestStatus(req.Status))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, request)
}

func (h *RequestHandler) AcceptOffer(c echo.Context) error {
	request, err := h.requestUseCase.AcceptOffer(c.Request().Context(), c.Param("id"), c.Param("offerId"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, request)
}

func (h *RequestHandler) SyncLocalToRemote(c echo.Context) error {
	result, err := h.requestUseCase.SyncLocalToRemote(c.Request().Context())
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, result)
}
