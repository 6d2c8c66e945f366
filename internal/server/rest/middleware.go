package rest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/chefbook/internal/common"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const (
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
	accountIDKey = "account_id"
)

// requestID propagates X-Request-ID or generates a new one.
func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.New().String()
			}
			c.Set(requestIDKey, id)
			c.Response().Header().Set(RequestIDHeader, id)
			return next(c)
		}
	}
}

func requestIDFrom(c echo.Context) string {
	id, _ := c.Get(requestIDKey).(string)
	return id
}

// requestLogger writes one line per request. The status of failed requests
// is derived from the error since the error handler runs afterwards.
func (s *HTTPServer) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogError:   true,
		LogLatency: true,
		LogMethod:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			status := v.Status
			if v.Error != nil {
				status = toHTTPError(v.Error).Status
			}

			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", status,
				"latency", v.Latency.String(),
				"ip", c.RealIP(),
				"request_id", requestIDFrom(c),
			}
			if id, ok := accountIDFrom(c); ok {
				args = append(args, "account_id", id)
			}

			ctx := c.Request().Context()
			switch {
			case status >= http.StatusInternalServerError:
				s.logger.Error(ctx, "API", args...)
			case status >= http.StatusBadRequest:
				s.logger.Warn(ctx, "API", args...)
			default:
				s.logger.Info(ctx, "API", args...)
			}
			return nil
		},
	})
}

// rateLimiter limits each client IP to rps requests per second.
func rateLimiter(rps float64, burst int) echo.MiddlewareFunc {
	if burst <= 0 {
		burst = int(rps) + 1
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(rps),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return newHTTPError(http.StatusForbidden, "Could not identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return newHTTPError(http.StatusTooManyRequests, "Rate limit exceeded")
		},
	})
}

// accessToken reads the bearer token, falling back to the access_token cookie.
func accessToken(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie(common.AccessTokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// authenticate rejects requests without a valid access token and stores the
// account id for later handlers.
func (s *HTTPServer) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := accessToken(c)
		if token == "" {
			return newHTTPError(http.StatusUnauthorized, "Missing token")
		}

		id, err := s.accounts.AccountIDFromToken(token)
		if err != nil {
			return err
		}

		c.Set(accountIDKey, id)
		return next(c)
	}
}

func accountIDFrom(c echo.Context) (int64, bool) {
	id, ok := c.Get(accountIDKey).(int64)
	return id, ok
}

// requireOwner allows the request only when :id is the caller's own account.
func (s *HTTPServer) requireOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		caller, ok := accountIDFrom(c)
		if !ok || caller != id {
			return common.ErrorForbidden
		}
		return next(c)
	}
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, newHTTPError(http.StatusBadRequest, "Invalid account id")
	}
	return id, nil
}
