package boundary

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// registerMiddleware installs the global chain: panic recovery, request
// logging, and security headers on every response, followed by the
// token-auth guard scoped to the /api group.
func (b *Boundary) registerMiddleware() {
	b.echo.Use(middleware.Recover())
	b.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
	}))
	b.echo.Use(securityHeaders)
}

// securityHeaders denies framing, disables MIME sniffing, restricts CSP
// to self plus the UI's CDN origins, and disables caching, per spec §4.I.
func securityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self' https://cdn.jsdelivr.net; "+
				"style-src 'self' https://cdn.jsdelivr.net; img-src 'self' data:")
		h.Set("Cache-Control", "no-store")
		return next(c)
	}
}

// tokenAuth rejects any request that doesn't present the shared daemon
// token via the X-Daemon-Token header or ?token= query param, per
// spec §6.
func tokenAuth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			presented := c.Request().Header.Get("X-Daemon-Token")
			if presented == "" {
				presented = c.QueryParam("token")
			}
			if presented == "" || presented != token {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid daemon token")
			}
			return next(c)
		}
	}
}
