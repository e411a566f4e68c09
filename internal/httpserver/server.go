// Package httpserver exposes the engines over HTTP: authentication,
// user and role administration, signal operations and health.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/engines/auth"
	"github.com/sds-platform/sds-core/internal/engines/rbac"
	"github.com/sds-platform/sds-core/internal/engines/settings"
	"github.com/sds-platform/sds-core/internal/engines/signals"
	"github.com/sds-platform/sds-core/internal/engines/users"
	"github.com/sds-platform/sds-core/pkg/healthcheck"
	"go.uber.org/zap"
)

// Engines bundles the service layer behind the HTTP surface.
type Engines struct {
	Auth     *auth.Service
	Users    *users.Service
	RBAC     *rbac.Service
	Signals  *signals.Service
	Settings *settings.Service
}

// Server is the HTTP front end.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	auth     *auth.Service
	users    *users.Service
	rbac     *rbac.Service
	signals  *signals.Service
	settings *settings.Service
	recorder *audit.Recorder
	health   *healthcheck.Engine

	router     *gin.Engine
	httpServer *http.Server

	globalLimiter *ipLimiter
	resetLimiter  *ipLimiter
}

// NewServer wires the engines into a configured router.
func NewServer(cfg *config.Config, engines Engines, recorder *audit.Recorder, health *healthcheck.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	productionMode = cfg.IsProduction()

	s := &Server{
		cfg:           cfg,
		logger:        logger.With(zap.String("component", "httpserver")),
		auth:          engines.Auth,
		users:         engines.Users,
		rbac:          engines.RBAC,
		signals:       engines.Signals,
		settings:      engines.Settings,
		recorder:      recorder,
		health:        health,
		globalLimiter: newIPLimiter(cfg.RateLimitPerMinute),
		resetLimiter:  newHourlyIPLimiter(cfg.ResetRequestsPerHour),
	}
	s.router = s.buildRouter()
	return s
}

// Router exposes the gin engine, used by tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	if s.cfg.HTTPSRedirect {
		r.Use(httpsRedirectMiddleware())
	}
	if s.cfg.SecurityHeaders {
		r.Use(securityHeadersMiddleware())
	}
	if len(s.cfg.CORSAllowedOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.CORSAllowedOrigins))
	}
	if s.cfg.RateLimitPerMinute > 0 {
		r.Use(rateLimitMiddleware(s.globalLimiter))
	}
	r.Use(loggingMiddleware(s.logger))

	r.GET("/health", s.handleHealth)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/refresh", s.handleRefresh)
		authGroup.POST("/logout", s.authMiddleware(), s.handleLogout)
		authGroup.GET("/me", s.authMiddleware(), s.handleMe)
		authGroup.POST("/validate", s.authMiddleware(), s.handleValidate)
		authGroup.POST("/password", s.authMiddleware(), s.handleChangePassword)
	}

	passwordGroup := r.Group("/password")
	{
		passwordGroup.POST("/solicitar", s.handleRequestReset)
		passwordGroup.POST("/reset", s.handleConsumeReset)
	}

	usersGroup := r.Group("/users", s.optionalAuthMiddleware(), s.requestAuditMiddleware())
	{
		usersGroup.POST("", s.handleCreateUser)
		usersGroup.GET("", s.requireAuth(), s.requirePermission("usuarios.leer"), s.handleListUsers)
		usersGroup.GET("/:id", s.requireAuth(), s.requirePermission("usuarios.leer"), s.handleGetUser)
		usersGroup.PATCH("/:id", s.requireAuth(), s.requirePermission("usuarios.actualizar"), s.handleUpdateUser)
		usersGroup.DELETE("/:id", s.requireAuth(), s.requirePermission("usuarios.eliminar"), s.handleDeleteUser)
		usersGroup.PUT("/:id/roles", s.requireAuth(), s.requirePermission("usuarios.actualizar", "roles.leer"), s.handleAssignRoles)
		usersGroup.POST("/:id/password", s.requireAuth(), s.requirePermission("usuarios.actualizar"), s.handleAdminResetPassword)
	}

	rbacGroup := r.Group("/rbac", s.authMiddleware(), s.requestAuditMiddleware())
	{
		rbacGroup.GET("/roles", s.requirePermission("roles.leer"), s.handleListRoles)
		rbacGroup.POST("/roles", s.requirePermission("roles.crear"), s.handleCreateRole)
		rbacGroup.GET("/roles/:id", s.requirePermission("roles.leer"), s.handleGetRole)
		rbacGroup.PATCH("/roles/:id", s.requirePermission("roles.actualizar"), s.handleUpdateRole)
		rbacGroup.DELETE("/roles/:id", s.requirePermission("roles.eliminar"), s.handleDeleteRole)
		rbacGroup.GET("/permissions", s.requirePermission("roles.leer"), s.handleListPermissions)
	}

	configGroup := r.Group("/config", s.authMiddleware(), s.requestAuditMiddleware())
	{
		configGroup.GET("", s.requirePermission("configuracion.leer"), s.handleListSettings)
		configGroup.PUT("/:clave", s.requirePermission("configuracion.actualizar"), s.handleUpdateSetting)
	}

	signalsGroup := r.Group("/signals", s.authMiddleware(), s.requestAuditMiddleware())
	{
		signalsGroup.GET("", s.requirePermission("alertas.leer"), s.handleListSignals)
		signalsGroup.GET("/:id", s.requirePermission("alertas.leer"), s.handleGetSignal)
		signalsGroup.PATCH("/:id", s.requirePermission("alertas.actualizar"), s.handleUpdateSignal)
		signalsGroup.PUT("/:id", s.requirePermission("alertas.actualizar"), s.handleUpdateSignal)
		signalsGroup.GET("/:id/history", s.requirePermission("alertas.leer"), s.handleSignalHistory)
	}

	return r
}

// requireAuth rejects anonymous requests inside optional-identity groups.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			renderError(c, apperrors.MissingCredentials())
			c.Abort()
			return
		}
		c.Next()
	}
}

// Start runs the HTTP listener until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("address", s.cfg.ListenAddress))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
