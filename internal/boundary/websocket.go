package boundary

import "github.com/labstack/echo/v4"

// registerWebsocket mounts the event hub's upgrade handler on the same
// listener and port as the REST API. eventhub.Server authenticates the
// handshake itself against the same shared token, so this route is
// intentionally outside the /api token-auth middleware group.
func (b *Boundary) registerWebsocket() {
	if b.deps.WSServer == nil {
		return
	}
	b.echo.GET("/api/events", func(c echo.Context) error {
		b.deps.WSServer.ServeHTTP(c.Response(), c.Request())
		return nil
	})
}
