package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalKey = "principal"

// SessionReader resolves bearer tokens into session records. The auth
// service owns session creation; this side only reads.
type SessionReader interface {
	GetSession(ctx context.Context, token string) (*repository.Session, error)
}

// authRequired resolves the Authorization bearer token into a user and
// stores it on the request context.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication required."})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		sess, err := s.sessions.GetSession(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrSessionNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Session expired or invalid."})
				return
			}
			s.logger.Error("session lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error."})
			return
		}

		user, err := s.store.GetUser(c.Request.Context(), sess.UserID)
		if err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Session expired or invalid."})
				return
			}
			s.logger.Error("user lookup failed", zap.String("user_id", sess.UserID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error."})
			return
		}

		c.Set(principalKey, user)
		c.Next()
	}
}

// adminRequired must run after authRequired.
func (s *Server) adminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Admin access required."})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	user, ok := v.(*models.User)
	if !ok {
		return nil
	}
	return user
}
