package boundary

import (
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
)

// registerStatic serves the browser UI's built assets under / with SPA
// fallback: any non-/api path without a file extension returns the SPA
// root document instead of 404ing (spec §4.I). A no-op when StaticDir is
// unset, so tests and headless deployments don't need a real asset tree.
func (b *Boundary) registerStatic() {
	if b.deps.StaticDir == "" {
		return
	}
	b.echo.GET("/*", func(c echo.Context) error {
		reqPath := c.Request().URL.Path
		if strings.HasPrefix(reqPath, "/api/") {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		if filepath.Ext(reqPath) == "" {
			return c.File(filepath.Join(b.deps.StaticDir, "index.html"))
		}
		return c.File(filepath.Join(b.deps.StaticDir, path.Clean(reqPath)))
	})
}
