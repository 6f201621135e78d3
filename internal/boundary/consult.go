package boundary

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/orchestrator"
)

type consultBody struct {
	Message      string `json:"message"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	UseRAG       *bool  `json:"useRag"`
	SystemPrompt string `json:"systemPrompt"`
}

type consultResponse struct {
	Response       string `json:"response"`
	Model          string `json:"model"`
	TokensUsed     int    `json:"tokensUsed,omitempty"`
	ResponseTimeMs int64  `json:"responseTimeMs,omitempty"`
}

// handleConsult is the one-shot convenience endpoint: start a
// conversation, get an answer, done, with no conversation-id plumbing
// for callers that don't need multi-turn (spec §6). UseRAG defaults to
// true; an explicit systemPrompt replaces the mode-derived one.
func (b *Boundary) handleConsult(c echo.Context) error {
	var body consultBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, apierr.Wrap(apierr.ValidationError, err, "malformed request body"))
	}
	if strings.TrimSpace(body.Message) == "" {
		return writeError(c, apierr.Newf(apierr.ValidationError, "message is required"))
	}

	useRAG := true
	if body.UseRAG != nil {
		useRAG = *body.UseRAG
	}

	modelName := body.Model
	if modelName == "" && body.Provider != "" {
		modelName = defaultModelForProvider[body.Provider]
	}

	res, err := b.deps.Orchestrator.Consult(c.Request().Context(), orchestrator.ConsultInput{
		Question:             body.Message,
		Model:                modelName,
		DisableRAG:           !useRAG,
		SystemPromptOverride: body.SystemPrompt,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, consultResponse{
		Response:       res.Answer,
		Model:          res.Model,
		TokensUsed:     res.Metadata.TokensUsed,
		ResponseTimeMs: res.Metadata.ResponseTimeMs,
	})
}
