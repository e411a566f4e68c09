package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/engines/users"
)

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("identificador inválido")
	}
	return id, nil
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}

// handleCreateUser registers an account. Anonymous calls are allowed only
// for the first account, which becomes an active superuser.
func (s *Server) handleCreateUser(c *gin.Context) {
	actor := currentUser(c)
	bootstrap := false
	if actor == nil {
		count, err := s.users.Count(c.Request.Context())
		if err != nil {
			renderError(c, err)
			return
		}
		if count > 0 {
			renderError(c, apperrors.MissingCredentials())
			return
		}
		bootstrap = true
	} else if !actor.HasPermission("usuarios.crear") {
		renderError(c, apperrors.Forbidden("permiso insuficiente"))
		return
	}

	var in users.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		renderError(c, apperrors.Validation("se requieren username y password"))
		return
	}
	user, err := s.users.Create(c.Request.Context(), in, bootstrap, requestMeta(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) handleListUsers(c *gin.Context) {
	limit, offset := pageParams(c)
	list, err := s.users.List(c.Request.Context(), limit, offset)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, err)
		return
	}
	user, err := s.users.Get(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleUpdateUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, err)
		return
	}
	var in users.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		renderError(c, apperrors.Validation("cuerpo de solicitud inválido"))
		return
	}
	user, err := s.users.Update(c.Request.Context(), id, in, requestMeta(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, err)
		return
	}
	if err := s.users.Delete(c.Request.Context(), id, requestMeta(c)); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "usuario eliminado"})
}

type assignRolesRequest struct {
	RoleIDs []int64 `json:"roles"`
}

func (s *Server) handleAssignRoles(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, err)
		return
	}
	var req assignRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.Validation("se requiere roles"))
		return
	}
	if err := s.rbac.AssignRoles(c.Request.Context(), id, req.RoleIDs, requestMeta(c)); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "roles asignados"})
}

type adminResetRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

func (s *Server) handleAdminResetPassword(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, err)
		return
	}
	var req adminResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.Validation("se requiere new_password"))
		return
	}
	actor := currentUser(c)
	if err := s.auth.AdminResetPassword(c.Request.Context(), actor.ID, id,
		req.NewPassword, c.ClientIP(), c.Request.UserAgent()); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "contraseña restablecida"})
}
