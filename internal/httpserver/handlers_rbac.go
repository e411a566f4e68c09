package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/engines/rbac"
)

func (s *Server) handleListRoles(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))
	roles, err := s.rbac.ListRoles(c.Request.Context(), activeOnly)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, roles)
}

func (s *Server) handleCreateRole(c *gin.Context) {
	var in rbac.CreateRoleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		renderError(c, apperrors.Validation("se requiere nombre"))
		return
	}
	role, err := s.rbac.CreateRole(c.Request.Context(), in, requestMeta(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

func (s *Server) handleGetRole(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, err)
		return
	}
	role, err := s.rbac.GetRole(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

func (s *Server) handleUpdateRole(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, err)
		return
	}
	var in rbac.UpdateRoleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		renderError(c, apperrors.Validation("cuerpo de solicitud inválido"))
		return
	}
	role, err := s.rbac.UpdateRole(c.Request.Context(), id, in, requestMeta(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

func (s *Server) handleDeleteRole(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, err)
		return
	}
	if err := s.rbac.DeleteRole(c.Request.Context(), id, requestMeta(c)); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "rol eliminado"})
}

func (s *Server) handleListPermissions(c *gin.Context) {
	perms, err := s.rbac.ListPermissions(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, perms)
}
