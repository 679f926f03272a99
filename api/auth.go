// Package api implements the control HTTP surface: tenant configuration
// management, run dispatch and run inspection.
package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIKeyConfig configures the X-API-Key middleware.
type APIKeyConfig struct {
	// Keys are the accepted API key values.
	Keys []string

	// Skipper skips authentication for specific requests, typically the
	// health endpoint.
	Skipper func(c echo.Context) bool
}

// APIKeyMiddleware returns middleware enforcing the X-API-Key header.
// Comparison is constant-time per configured key.
func APIKeyMiddleware(config APIKeyConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper != nil && config.Skipper(c) {
				return next(c)
			}

			provided := c.Request().Header.Get("X-API-Key")
			if provided == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing API key")
			}
			for _, key := range config.Keys {
				if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1 {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
		}
	}
}
