package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// StorePinger is the store a process depends on.
type StorePinger interface {
	Name() string
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store  StorePinger
	remote bool
}

func NewHealthHandler(store StorePinger, remote bool) *HealthHandler {
	return &HealthHandler{
		store:  store,
		remote: remote,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "Server is running",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// CheckStoreHealth pings the store selected at startup.
func (h *HealthHandler) CheckStoreHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	store := h.store.Name()
	if err := h.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "Store unreachable",
			"store":  store,
			"remote": h.remote,
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "Store reachable",
		"store":  store,
		"remote": h.remote,
	})
}
