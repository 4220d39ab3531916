package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"config-codex/internal/service"
)

// writeError traduce errores del servicio a la respuesta JSON correspondiente.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Validation failed",
			"details": vErr.Fields,
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_failed", "message": "Invalid email or password"})
	case errors.Is(err, service.ErrAccountDeactivated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_failed", "message": "User account is deactivated"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_failed", "message": "User not found"})
	case errors.Is(err, service.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Token has expired"})
	case errors.Is(err, service.ErrTokenInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Invalid token"})
	case errors.Is(err, service.ErrRegistrationFailed):
		logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration_failed", "message": "Registration failed"})
	case errors.Is(err, service.ErrIncorrectPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_password", "message": "Current password is incorrect"})
	case errors.Is(err, service.ErrAlreadyVerified):
		c.JSON(http.StatusBadRequest, gin.H{"error": "already_verified", "message": "Email is already verified"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "message": "Too many login attempts, try again later"})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Request could not be processed"})
	}
}

func writeBindError(c *gin.Context, logger *zap.Logger, err error) {
	logger.Warn("invalid request body", zap.Error(err), zap.String("path", c.FullPath()))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
}
