package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/models"
)

func (s *Server) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.Validation("se requieren username y password"))
		return
	}
	pair, err := s.auth.Login(c.Request.Context(), req.Username, req.Password,
		c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.Validation("se requiere refresh_token"))
		return
	}
	pair, err := s.auth.Refresh(c.Request.Context(), req.RefreshToken,
		c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.auth.Logout(c.Request.Context(), bearerToken(c),
		c.ClientIP(), c.Request.UserAgent()); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "sesión finalizada"})
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (s *Server) handleValidate(c *gin.Context) {
	c.JSON(http.StatusOK, models.TokenValidationResponse{
		Valid: true,
		User:  currentUser(c),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"password_actual" binding:"required"`
	NewPassword     string `json:"password_nueva" binding:"required"`
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.Validation("se requieren password_actual y password_nueva"))
		return
	}
	user := currentUser(c)
	if err := s.auth.ChangePassword(c.Request.Context(), user.ID,
		req.CurrentPassword, req.NewPassword, c.ClientIP(), c.Request.UserAgent()); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "contraseña actualizada"})
}

type resetRequest struct {
	Email string `json:"email" binding:"required"`
}

func (s *Server) handleRequestReset(c *gin.Context) {
	if !s.resetLimiter.allow(c.ClientIP()) {
		renderError(c, apperrors.RateLimited())
		return
	}
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.Validation("se requiere email"))
		return
	}
	token, err := s.auth.RequestPasswordReset(c.Request.Context(), req.Email,
		c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		renderError(c, err)
		return
	}

	// Uniform response whether or not the address is registered.
	body := gin.H{"detail": "si el correo está registrado, recibirá instrucciones"}
	if token != "" && !s.cfg.IsProduction() {
		body["reset_token"] = token
	}
	c.JSON(http.StatusOK, body)
}

type consumeResetRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (s *Server) handleConsumeReset(c *gin.Context) {
	var req consumeResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperrors.Validation("se requieren token y new_password"))
		return
	}
	if err := s.auth.ConsumeReset(c.Request.Context(), req.Token, req.NewPassword,
		c.ClientIP(), c.Request.UserAgent()); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "contraseña restablecida"})
}
