package httpcontroller

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sweepies/imgur-sans-bullshit/internal/hosts"
)

// rateLimitMiddleware enforces the fixed-window budget for one endpoint
// label before any resolution work happens. The budget is the owning
// adapter's override when the request names a recognizable resource, else
// the shared default.
func (s *Server) rateLimitMiddleware(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.Limiter == nil {
				return next(c)
			}

			cfg := s.limitConfigFor(c)
			decision, err := s.Limiter.Check(c.RealIP(), endpoint, cfg)
			if err != nil {
				s.logger.Error("rate limit check failed", "endpoint", endpoint, "error", err)
				return echo.NewHTTPError(http.StatusServiceUnavailable, "rate limiter unavailable")
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			c.Response().Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := int(math.Ceil(time.Until(decision.ResetAt).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests,
					fmt.Sprintf("too many requests, retry after %d seconds", retryAfter))
			}

			return next(c)
		}
	}
}

// limitConfigFor resolves the request to an adapter and returns its
// rate-limit budget. Requests carrying no resolvable identity fall back to
// the shared default.
func (s *Server) limitConfigFor(c echo.Context) hosts.RateLimitConfig {
	if publicID := pathPublicID(c); publicID != "" {
		if parsed := s.Registry.ParsePublicID(publicID); parsed != nil {
			if adapter := s.Registry.Get(parsed.ProviderID); adapter != nil {
				return s.Registry.RateLimitFor(adapter)
			}
		}
	}
	if raw := c.QueryParam("url"); raw != "" {
		if parsed := s.Registry.ResolveInput(raw); parsed != nil {
			if adapter := s.Registry.Get(parsed.ProviderID); adapter != nil {
				return s.Registry.RateLimitFor(adapter)
			}
		}
	}
	return s.Registry.SharedRateLimit()
}

// pathPublicID extracts the public id from either param shape the content
// routes use: ":id" or a "*" wildcard for slash-bearing ids.
func pathPublicID(c echo.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	return c.Param("*")
}
