package boundary

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/configsvc"
	"github.com/consultd/consultd/internal/model"
)

// handleGetConfig returns the effective config with provider API keys
// masked, never the decrypted credentials.
func (b *Boundary) handleGetConfig(c echo.Context) error {
	cfg, err := b.deps.Config.Get(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, configsvc.Masked(cfg))
}

// configPatchBody is the accepted subset of EffectiveConfig; unknown
// fields are rejected by a strict JSON decode, and the empty-patch check
// is delegated to configsvc.Update.
type configPatchBody struct {
	DefaultModel   *string                         `json:"defaultModel"`
	MaxMessages    *int                            `json:"maxMessages"`
	RequestTimeout *int                            `json:"requestTimeout"`
	AutoOpenWebUI  *bool                           `json:"autoOpenWebUI"`
	Providers      map[string]model.ProviderConfig `json:"providers"`
}

// handlePatchConfig validates and applies a partial config update,
// per spec §6 (empty patch and out-of-range values are both 400s).
func (b *Boundary) handlePatchConfig(c echo.Context) error {
	var body configPatchBody
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return writeError(c, apierr.Wrap(apierr.ValidationError, err, "malformed request body"))
	}

	cfg, err := b.deps.Config.Update(c.Request().Context(), configsvc.Patch{
		DefaultModel:   body.DefaultModel,
		MaxMessages:    body.MaxMessages,
		RequestTimeout: body.RequestTimeout,
		AutoOpenWebUI:  body.AutoOpenWebUI,
		Providers:      body.Providers,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, configsvc.Masked(cfg))
}
