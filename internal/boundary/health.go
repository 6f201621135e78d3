package boundary

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/consultd/consultd/internal/rag"
)

type embedHealth struct {
	Available bool   `json:"available"`
	URL       string `json:"url"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status       string      `json:"status"`
	Clients      int         `json:"clients"`
	UptimeMs     int64       `json:"uptime"`
	EmbedService embedHealth `json:"embedService"`
}

// handleHealth reports overall status, connected client count, daemon
// uptime, and whether the embedding service is reachable (spec §6).
func (b *Boundary) handleHealth(c echo.Context) error {
	clients := 0
	if b.deps.Hub != nil {
		clients = b.deps.Hub.ClientCount()
	}

	embedURL := b.deps.EmbedURL
	if embedURL == "" {
		embedURL = rag.DefaultEmbedURL
	}

	eh := embedHealth{URL: embedURL}
	if err := b.pingEmbedService(c.Request().Context(), embedURL); err != nil {
		eh.Available = false
		eh.Error = err.Error()
	} else {
		eh.Available = true
	}

	status := "healthy"
	if !eh.Available {
		status = "degraded"
	}

	return c.JSON(http.StatusOK, healthResponse{
		Status:       status,
		Clients:      clients,
		UptimeMs:     time.Since(b.deps.StartedAt).Milliseconds(),
		EmbedService: eh,
	})
}

func (b *Boundary) pingEmbedService(ctx context.Context, embedURL string) error {
	client := b.deps.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, embedURL, strings.NewReader(`{"texts":[]}`))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
