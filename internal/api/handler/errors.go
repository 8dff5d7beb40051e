package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parktronic/internal/repository"
	"parktronic/internal/service"
)

// statusOf maps the store and auth error taxonomy to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, repository.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, repository.ErrTransactionFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrTokenInvalid):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, log *zap.Logger, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
