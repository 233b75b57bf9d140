package handler

import (
	"github.com/labstack/echo/v4"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/usecase"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/response"
)

type SessionHandler struct {
	sessionUseCase *usecase.SessionUseCase
}

func NewSessionHandler(sessionUseCase *usecase.SessionUseCase) *SessionHandler {
	return &SessionHandler{
		sessionUseCase: sessionUseCase,
	}
}

func (h *SessionHandler) GetSession(c echo.Context) error {
	return response.Success(c, h.sessionUseCase.Session())
}

type signInRequest struct {
	IDToken string `json:"idToken" validate:"required"`
	Type    string `json:"type" validate:"omitempty,oneof=customer workshop"`
}

// SignIn is the workshop email/password flow: the client signs in with the
// identity provider and hands over the resulting ID token.
func (h *SessionHandler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.Validation("Invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	role := entity.Role(req.Type)
	if role == "" {
		role = entity.RoleWorkshop
	}

	identity, err := h.sessionUseCase.SignIn(c.Request().Context(), req.IDToken, role)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, identity)
}

func (h *SessionHandler) SignOut(c echo.Context) error {
	if err := h.sessionUseCase.SignOut(c.Request().Context()); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, h.sessionUseCase.Session())
}

type beginVerificationRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

func (h *SessionHandler) BeginVerification(c echo.Context) error {
	var req beginVerificationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.Validation("Invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	session, err := h.sessionUseCase.BeginPhoneVerification(req.Phone)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, session)
}

type completeVerificationRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

func (h *SessionHandler) CompleteVerification(c echo.Context) error {
	var req completeVerificationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.Validation("Invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	identity, err := h.sessionUseCase.CompleteVerification(c.Request().Context(), req.IDToken)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, identity)
}

func (h *SessionHandler) CancelVerification(c echo.Context) error {
	return response.Success(c, h.sessionUseCase.CancelVerification())
}
