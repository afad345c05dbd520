package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/server/auth"
	"github.com/dmitrijs2005/certkeeper/internal/server/services"
	"github.com/labstack/echo/v4"
)

const callerKey = "caller"

// authenticate requires a valid HS256 bearer token and stores the caller.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}

		id, err := auth.ParseToken(strings.TrimSpace(token), s.jwtSecret)
		if err != nil {
			return err
		}

		c.Set(callerKey, services.Caller{UserID: id.UserID, Organisation: id.Organisation})
		return next(c)
	}
}

func callerFrom(c echo.Context) services.Caller {
	caller, _ := c.Get(callerKey).(services.Caller)
	return caller
}

// accessLog writes one record per request after the error handler has set
// the final status.
func (s *Server) accessLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			s.logger.Info(req.Context(), "request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"latency", time.Since(start),
			)
			return nil
		}
	}
}
