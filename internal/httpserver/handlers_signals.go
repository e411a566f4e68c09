package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/pkg/healthcheck"
)

func (s *Server) handleListSignals(c *gin.Context) {
	limit, offset := pageParams(c)
	views, err := s.signals.List(c.Request.Context(), limit, offset)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleGetSignal(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, err)
		return
	}
	view, err := s.signals.Get(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleUpdateSignal(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, err)
		return
	}
	var patch models.SignalUpdate
	if err := c.ShouldBindJSON(&patch); err != nil {
		renderError(c, apperrors.Validation("cuerpo de solicitud inválido"))
		return
	}
	view, err := s.signals.Update(c.Request.Context(), id, patch, currentUser(c), requestMeta(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleSignalHistory(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := s.signals.History(c.Request.Context(), id, limit)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// handleHealth aggregates the registered component checks.
func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": string(healthcheck.StatusUnknown)})
		return
	}
	agg := s.health.CheckAll(c.Request.Context())

	status := http.StatusOK
	if agg.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, agg)
}
