package httpserver

import (
	"github.com/gin-gonic/gin"
	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/models"
)

const (
	ctxKeyUser      = "sds.current_user"
	ctxKeyRequestID = "sds.request_id"

	headerRequestID = "X-Request-ID"
)

// currentUser returns the authenticated identity bound to the request, or
// nil on anonymous requests.
func currentUser(c *gin.Context) *models.CurrentUser {
	v, ok := c.Get(ctxKeyUser)
	if !ok {
		return nil
	}
	user, _ := v.(*models.CurrentUser)
	return user
}

// requestID returns the request correlation ID.
func requestID(c *gin.Context) string {
	v, ok := c.Get(ctxKeyRequestID)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

// requestMeta assembles the audit metadata of a request.
func requestMeta(c *gin.Context) audit.RequestMeta {
	meta := audit.RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if user := currentUser(c); user != nil {
		meta.ActorID = &user.ID
	}
	return meta
}
