package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sds-platform/sds-core/internal/apperrors"
)

func (s *Server) handleListSettings(c *gin.Context) {
	values, err := s.settings.All(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, values)
}

type updateSettingRequest struct {
	Value string `json:"valor" binding:"required"`
}

func (s *Server) handleUpdateSetting(c *gin.Context) {
	var in updateSettingRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		renderError(c, apperrors.Validation("se requiere valor"))
		return
	}
	if err := s.settings.Set(c.Request.Context(), c.Param("clave"), in.Value, requestMeta(c)); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "configuración actualizada"})
}
