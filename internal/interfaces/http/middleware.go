package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/tutor-matching/internal/application/service"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

const (
	HeaderActorRole     = "X-Actor-Role"
	HeaderActorID       = "X-Actor-ID"
	HeaderCorrelationID = "X-Correlation-ID"

	actorKey = "actor"
)

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"actor_role", c.GetHeader(HeaderActorRole),
			"client_ip", c.ClientIP(),
		)
	}
}

// actorMiddleware reads the caller identity headers. System is reserved for
// internal jobs and cannot be claimed over HTTP.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := entity.Role(strings.ToUpper(strings.TrimSpace(c.GetHeader(HeaderActorRole))))
		id := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if !role.IsValid() || role == entity.RoleSystem || id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "X-Actor-Role and X-Actor-ID headers are required",
				Code:    "UNAUTHENTICATED",
			})
			return
		}
		c.Set(actorKey, entity.Actor{Role: role, ID: id})
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorFrom(c).Role != entity.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Error:   "admin role required",
				Code:    "FORBIDDEN",
			})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(entity.Actor); ok {
			return a
		}
	}
	return entity.Actor{}
}

// callOptions turns If-Match and X-Correlation-ID into service call options
func callOptions(c *gin.Context) ([]service.CallOption, error) {
	var opts []service.CallOption
	if raw := c.GetHeader("If-Match"); raw != "" && raw != "*" {
		v, err := parseETag(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.IfVersion(v))
	}
	if id := c.GetHeader(HeaderCorrelationID); id != "" {
		opts = append(opts, service.WithCorrelationID(id))
	}
	return opts, nil
}

// parseETag accepts 3, "3" and W/"3"
func parseETag(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "W/")
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 1 {
		return 0, service.ErrInvalidInput
	}
	return v, nil
}

func etag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}
