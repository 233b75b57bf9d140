package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"schadenschat/internal/usecase"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/response"
)

type AuthMiddleware struct {
	verifier usecase.TokenVerifier
}

func NewAuthMiddleware(verifier usecase.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// Authenticate rejects requests without a valid bearer ID token and stores the
// verified uid and role on the context.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		idToken, err := bearerToken(c)
		if err != nil {
			return response.Error(c, err)
		}
		if err := m.verify(c, idToken); err != nil {
			return response.Error(c, err)
		}
		return next(c)
	}
}

// Optional verifies a bearer token when one is sent and lets anonymous
// requests through untouched.
func (m *AuthMiddleware) Optional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") == "" {
			return next(c)
		}
		idToken, err := bearerToken(c)
		if err != nil {
			return response.Error(c, err)
		}
		if err := m.verify(c, idToken); err != nil {
			return response.Error(c, err)
		}
		return next(c)
	}
}

func (m *AuthMiddleware) verify(c echo.Context, idToken string) error {
	if m.verifier == nil {
		return errors.Unauthenticated("Authentication is not configured")
	}
	token, err := m.verifier.VerifyToken(c.Request().Context(), idToken)
	if err != nil {
		return errors.Unauthenticated("Invalid or expired token")
	}

	c.Set("uid", token.UID)
	c.Set("role", token.Role)
	return nil
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.Unauthenticated("Authorization header is required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.Unauthenticated("Invalid authorization format")
	}
	return parts[1], nil
}
