package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/fdms/services/admin/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Logger middleware.
func Logger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.WithFields(logrus.Fields{
			"status":    c.Writer.Status(),
			"latency":   time.Since(start),
			"client_ip": c.ClientIP(),
			"method":    c.Request.Method,
			"path":      path,
		}).Info("Request processed")
	}
}

// BearerAuth validates the session credential on every protected route. An
// expired or unknown token yields 401 so the client re-authenticates.
func BearerAuth(auth *core.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required", "code": core.CodeUnauthorized})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format", "code": core.CodeUnauthorized})
			c.Abort()
			return
		}

		session, err := auth.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}

		c.Set("session", session)
		c.Next()
	}
}

// CORS middleware.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// respondError maps the business error taxonomy onto HTTP statuses and
// surfaces the kind and message verbatim.
func respondError(c *gin.Context, err error) {
	var be core.BusinessError
	if !errors.As(err, &be) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch be.Code {
	case core.CodeNotFound:
		status = http.StatusNotFound
	case core.CodeConflict:
		status = http.StatusConflict
	case core.CodeInvalidTransition, core.CodeTerminalState:
		status = http.StatusUnprocessableEntity
	case core.CodeValidation:
		status = http.StatusBadRequest
	case core.CodeUnauthorized:
		status = http.StatusUnauthorized
	}

	c.JSON(status, gin.H{"error": be.Message, "code": be.Code})
}
