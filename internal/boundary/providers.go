package boundary

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/configsvc"
	"github.com/consultd/consultd/internal/model"
	"github.com/consultd/consultd/internal/provider"
)

// defaultModelForProvider is used by the connectivity test endpoint, one
// representative model per family.
var defaultModelForProvider = map[string]string{
	"deepseek": "deepseek-chat",
	"openai":   "gpt-5.2",
}

func isKnownProvider(id string) bool {
	_, ok := defaultModelForProvider[id]
	return ok
}

// handleListProviders returns every provider's masked config.
func (b *Boundary) handleListProviders(c echo.Context) error {
	cfg, err := b.deps.Config.Get(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, configsvc.Masked(cfg).Providers)
}

// handleGetProvider returns one provider's masked config.
func (b *Boundary) handleGetProvider(c echo.Context) error {
	id := c.Param("id")
	if !isKnownProvider(id) {
		return writeError(c, apierr.Newf(apierr.NotFound, "unknown provider %q", id))
	}
	cfg, err := b.deps.Config.Get(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	masked := configsvc.Masked(cfg)
	return c.JSON(http.StatusOK, masked.Providers[id])
}

type providerPutBody struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl"`
}

// handlePutProvider replaces one provider's enabled/apiKey/baseUrl,
// leaving the stored key untouched when apiKey is omitted.
func (b *Boundary) handlePutProvider(c echo.Context) error {
	id := c.Param("id")
	if !isKnownProvider(id) {
		return writeError(c, apierr.Newf(apierr.NotFound, "unknown provider %q", id))
	}
	var body providerPutBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, apierr.Wrap(apierr.ValidationError, err, "malformed request body"))
	}

	cfg, err := b.deps.Config.Update(c.Request().Context(), configsvc.Patch{
		Providers: map[string]model.ProviderConfig{
			id: {Enabled: body.Enabled, APIKey: body.APIKey, BaseURL: body.BaseURL},
		},
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, configsvc.Masked(cfg).Providers[id])
}

// handleDeleteProvider disables a provider. The encrypted key at rest is
// left in place (harmless while disabled) since the config schema has no
// dedicated "clear credentials" row.
func (b *Boundary) handleDeleteProvider(c echo.Context) error {
	id := c.Param("id")
	if !isKnownProvider(id) {
		return writeError(c, apierr.Newf(apierr.NotFound, "unknown provider %q", id))
	}
	cfg, err := b.deps.Config.Update(c.Request().Context(), configsvc.Patch{
		Providers: map[string]model.ProviderConfig{id: {Enabled: false}},
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, configsvc.Masked(cfg).Providers[id])
}

type providerTestResult struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
}

// handleTestProvider sends a minimal completion request through the
// provider adapter to confirm the stored credentials actually work.
func (b *Boundary) handleTestProvider(c echo.Context) error {
	id := c.Param("id")
	modelName, ok := defaultModelForProvider[id]
	if !ok {
		return writeError(c, apierr.Newf(apierr.NotFound, "unknown provider %q", id))
	}

	res, err := b.deps.Provider.Complete(c.Request().Context(), modelName,
		[]provider.Message{{Role: "user", Content: "ping"}}, "", provider.Options{RequestTimeoutMs: 15000})
	if err != nil {
		kind := apierr.KindOf(err)
		return c.JSON(http.StatusOK, providerTestResult{OK: false, Error: string(kind)})
	}
	return c.JSON(http.StatusOK, providerTestResult{OK: true, LatencyMs: res.ResponseTimeMs})
}
