package middleware

import (
	"fmt"
	"math"

	"github.com/labstack/echo/v4"

	"schadenschat/internal/infrastructure/ratelimit"
	"schadenschat/pkg/errors"
	"schadenschat/pkg/logger"
	"schadenschat/pkg/response"
)

type RateLimitMiddleware struct {
	limiter *ratelimit.RateLimiter
	log     logger.Component
}

func NewRateLimitMiddleware(limiter *ratelimit.RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		log:     logger.For("rate-limit"),
	}
}

// Limit throttles action per authenticated user, or per client IP when anonymous.
func (m *RateLimitMiddleware) Limit(action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if uid, ok := c.Get("uid").(string); ok && uid != "" {
				key = uid
			}

			allowed, wait := m.limiter.Allow(key, action)
			if !allowed {
				m.log.Warn("%s refused for %s (retry in %v)", action, key, wait)
				c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(wait.Seconds()))))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded"))
			}
			return next(c)
		}
	}
}
