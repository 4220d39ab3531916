package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"config-codex/internal/domain"
)

const authUserKey = "auth_user"

type currentUserResolver interface {
	GetUserFromToken(ctx context.Context, accessToken string) (domain.User, error)
}

// JWTAuthMiddleware valida el Bearer token y guarda el usuario en el contexto.
func JWTAuthMiddleware(logger *zap.Logger, resolver currentUserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if resolver == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication credentials were not provided",
			})
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		user, err := resolver.GetUserFromToken(c.Request.Context(), token)
		if err != nil {
			writeError(c, logger, err)
			c.Abort()
			return
		}

		c.Set(authUserKey, user)
		c.Next()
	}
}

// GetAuthUser obtiene el usuario autenticado desde el contexto.
func GetAuthUser(c *gin.Context) (domain.User, bool) {
	val, ok := c.Get(authUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := val.(domain.User)
	return user, ok
}
