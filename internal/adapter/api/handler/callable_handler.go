package handler

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"schadenschat/internal/infrastructure/ratelimit"
	"schadenschat/internal/usecase"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/logger"
)

// Callable error kinds as the client SDKs expect them.
const (
	CallableInvalidArgument   = "invalid-argument"
	CallableUnauthenticated   = "unauthenticated"
	CallableResourceExhausted = "resource-exhausted"
	CallableNotFound          = "not-found"
	CallableInternal          = "internal"
)

type callableRequest struct {
	Data json.RawMessage `json:"data"`
}

type callableError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type callableFunc func(c echo.Context, data json.RawMessage) (interface{}, error)

// CallableHandler serves the callable operations under /v1/callable/:name.
type CallableHandler struct {
	workshopUseCase *usecase.WorkshopUseCase
	pushUseCase     *usecase.PushUseCase
	limiter         *ratelimit.RateLimiter
	vapidPublicKey  string
	functions       map[string]callableFunc
	log             logger.Component
}

func NewCallableHandler(workshopUseCase *usecase.WorkshopUseCase, pushUseCase *usecase.PushUseCase, limiter *ratelimit.RateLimiter, vapidPublicKey string) *CallableHandler {
	h := &CallableHandler{
		workshopUseCase: workshopUseCase,
		pushUseCase:     pushUseCase,
		limiter:         limiter,
		vapidPublicKey:  vapidPublicKey,
		log:             logger.For("callable"),
	}
	h.functions = map[string]callableFunc{
		"registerWorkshop":         h.registerWorkshop,
		"registerPushToken":        h.registerPushToken,
		"registerPushSubscription": h.registerPushSubscription,
		"deletePushToken":          h.deletePushToken,
		"getVapidPublicKey":        h.getVapidPublicKey,
	}
	return h
}

func (h *CallableHandler) Call(c echo.Context) error {
	name := c.Param("name")
	fn, ok := h.functions[name]
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": callableError{Status: CallableNotFound, Message: "Unknown function " + name},
		})
	}

	key := c.RealIP()
	if uid, ok := c.Get("uid").(string); ok && uid != "" {
		key = uid
	}
	if h.limiter != nil {
		if allowed, _ := h.limiter.Allow(key, ratelimit.ActionCallable); !allowed {
			return h.fail(c, errors.TooManyRequests("Rate limit exceeded"))
		}
	}

	var req callableRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, errors.Validation("Invalid request body"))
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage("{}")
	}

	result, err := fn(c, req.Data)
	if err != nil {
		h.log.Warn("%s failed: %v", name, err)
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"result": result})
}

func (h *CallableHandler) registerWorkshop(c echo.Context, data json.RawMessage) (interface{}, error) {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return nil, errors.Unauthenticated("Must be logged in")
	}

	var input usecase.RegisterWorkshopInput
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, errors.Validation("Invalid data")
	}

	workshop, err := h.workshopUseCase.RegisterWorkshop(c.Request().Context(), uid, input)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true, "workshopId": workshop.ID}, nil
}

func (h *CallableHandler) registerPushToken(c echo.Context, data json.RawMessage) (interface{}, error) {
	var input usecase.RegisterPushTokenInput
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, errors.Validation("Invalid data")
	}
	if input.UserAgent == "" {
		input.UserAgent = c.Request().UserAgent()
	}

	if err := h.pushUseCase.RegisterToken(c.Request().Context(), input); err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true}, nil
}

func (h *CallableHandler) registerPushSubscription(c echo.Context, data json.RawMessage) (interface{}, error) {
	var input struct {
		UserID       string                 `json:"userId"`
		Subscription map[string]interface{} `json:"subscription"`
	}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, errors.Validation("Invalid data")
	}

	err := h.pushUseCase.RegisterSubscription(c.Request().Context(), input.UserID, input.Subscription, c.Request().UserAgent())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true}, nil
}

func (h *CallableHandler) deletePushToken(c echo.Context, data json.RawMessage) (interface{}, error) {
	var input struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, errors.Validation("Invalid data")
	}

	if err := h.pushUseCase.DeleteToken(c.Request().Context(), input.Token); err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true}, nil
}

func (h *CallableHandler) getVapidPublicKey(c echo.Context, _ json.RawMessage) (interface{}, error) {
	if h.vapidPublicKey == "" {
		return nil, errors.Internal("VAPID public key is not configured", nil)
	}
	return map[string]string{"vapidPublicKey": h.vapidPublicKey}, nil
}

// GetVapidPublicKey serves the key over plain HTTP for clients without the callable SDK.
func (h *CallableHandler) GetVapidPublicKey(c echo.Context) error {
	result, err := h.getVapidPublicKey(c, nil)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *CallableHandler) fail(c echo.Context, err error) error {
	status, kind := http.StatusInternalServerError, CallableInternal
	message := "An unexpected error occurred"

	switch errors.CodeOf(err) {
	case errors.CodeValidation:
		status, kind, message = http.StatusBadRequest, CallableInvalidArgument, errors.MessageOf(err)
	case errors.CodeUnauthenticated:
		status, kind, message = http.StatusUnauthorized, CallableUnauthenticated, errors.MessageOf(err)
	case errors.CodeTooManyRequests:
		status, kind, message = http.StatusTooManyRequests, CallableResourceExhausted, errors.MessageOf(err)
	}

	return c.JSON(status, map[string]interface{}{
		"error": callableError{Status: kind, Message: message},
	})
}
