package httpserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// requestIDMiddleware assigns a correlation ID to every request, honoring a
// caller-provided one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// loggingMiddleware logs one line per request with correlation fields.
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", requestID(c)),
		}
		if user := currentUser(c); user != nil {
			fields = append(fields, zap.Int64("user_id", user.ID))
		}

		switch {
		case status >= 500:
			logger.Error("Request failed", fields...)
		case status >= 400:
			logger.Warn("Request returned client error", fields...)
		default:
			logger.Debug("Request completed", fields...)
		}
	}
}

// corsMiddleware applies the configured origin allow-list.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowed := ""
		for _, o := range allowedOrigins {
			if o == "*" || strings.EqualFold(o, origin) {
				allowed = o
				break
			}
		}
		if allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// securityHeadersMiddleware sets the standard hardening headers.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Next()
	}
}

// httpsRedirectMiddleware redirects plain HTTP requests when the deployment
// terminates TLS upstream.
func httpsRedirectMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.TLS == nil && c.GetHeader("X-Forwarded-Proto") == "http" {
			target := "https://" + c.Request.Host + c.Request.URL.RequestURI()
			c.Redirect(http.StatusPermanentRedirect, target)
			c.Abort()
			return
		}
		c.Next()
	}
}

// ipLimiter hands out one token-bucket limiter per client IP and drops
// buckets idle for an hour.
type ipLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*ipBucket
	limit    rate.Limit
	burst    int
	lastScan time.Time
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*ipBucket),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
	}
}

func newHourlyIPLimiter(perHour int) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*ipBucket),
		limit:   rate.Limit(float64(perHour) / 3600.0),
		burst:   perHour,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastScan) > time.Hour {
		for ip, b := range l.buckets {
			if now.Sub(b.lastSeen) > time.Hour {
				delete(l.buckets, ip)
			}
		}
		l.lastScan = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

// rateLimitMiddleware rejects requests above the per-IP budget.
func rateLimitMiddleware(limiter *ipLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			renderError(c, apperrors.RateLimited())
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// authMiddleware requires a valid bearer token and binds the identity.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			renderError(c, apperrors.MissingCredentials())
			c.Abort()
			return
		}
		user, err := s.auth.Resolve(c.Request.Context(), token)
		if err != nil {
			renderError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxKeyUser, user)
		c.Next()
	}
}

// optionalAuthMiddleware binds the identity when a valid token is present
// and stays anonymous otherwise. Used by the first-user bootstrap path.
func (s *Server) optionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if user, err := s.auth.Resolve(c.Request.Context(), token); err == nil {
				c.Set(ctxKeyUser, user)
			}
		}
		c.Next()
	}
}

// requirePermission gates a route on the permission predicate and audits
// every denial.
func (s *Server) requirePermission(codes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			renderError(c, apperrors.MissingCredentials())
			c.Abort()
			return
		}
		if !user.HasPermission(codes...) {
			s.recorder.Failure(c.Request.Context(), requestMeta(c), models.AuditAuthorization,
				c.Request.URL.Path, c.Request.Method,
				&models.AccessDetail{
					Method:   c.Request.Method,
					Path:     c.Request.URL.Path,
					Required: codes,
				})
			renderError(c, apperrors.Forbidden("permiso insuficiente"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// requestAuditMiddleware writes one audit row per authenticated request.
func (s *Server) requestAuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		user := currentUser(c)
		if user == nil {
			return
		}
		s.recorder.Record(c.Request.Context(), requestMeta(c), models.AuditDataAccess,
			c.Request.URL.Path, c.Request.Method, outcomeFor(c.Writer.Status()),
			&models.AccessDetail{
				Method:     c.Request.Method,
				Path:       c.Request.URL.Path,
				Status:     c.Writer.Status(),
				DurationMS: time.Since(start).Milliseconds(),
			})
	}
}

func outcomeFor(status int) string {
	if status >= 400 {
		return models.AuditOutcomeError
	}
	return models.AuditOutcomeSuccess
}
