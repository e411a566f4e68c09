package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sds-platform/sds-core/internal/apperrors"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// productionMode hides internals of unexpected errors. Set once at router
// construction.
var productionMode bool

// renderError maps a typed error onto its declared status and stable code.
// Unexpected errors become a generic 500; in development the underlying
// message is included for diagnosis.
func renderError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		body := errorBody{
			Error:   appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}
		if appErr.Service != "" {
			if body.Details == nil {
				body.Details = map[string]any{}
			}
			body.Details["service"] = appErr.Service
		}
		c.JSON(appErr.Status, body)
		return
	}

	body := errorBody{
		Error:   apperrors.CodeDatabase,
		Message: "internal error",
	}
	if !productionMode {
		body.Details = map[string]any{"cause": err.Error()}
	}
	c.JSON(http.StatusInternalServerError, body)
}
