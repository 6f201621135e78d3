package boundary

import (
	"github.com/labstack/echo/v4"

	"github.com/consultd/consultd/internal/apierr"
)

// errorResponse is the JSON shape returned for every failed request,
// carrying the typed error kind so clients can branch on it (spec §7).
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
}

// writeError maps a typed apierr.Error (or any other error) to its REST
// status and JSON body. An untyped error is logged in full and reaches
// the caller only as a short INTERNAL message.
func writeError(c echo.Context, err error) error {
	if apiErr, ok := apierr.As(err); ok {
		return c.JSON(apiErr.HTTPStatus(), errorResponse{
			Error: apiErr.Message,
			Kind:  string(apiErr.Kind),
			Field: apiErr.Field,
		})
	}
	c.Logger().Error(err)
	return c.JSON(500, errorResponse{Error: "internal error", Kind: string(apierr.Internal)})
}
