// Package handlers provides HTTP handlers for the content pipeline API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/AtRiskMedia/lessonforge-go/internal/domain/errors"
)

// respondError maps pipeline error codes onto HTTP statuses and writes a
// structured error body.
func respondError(c *gin.Context, err error) {
	var pe *domainerrors.Error
	if !errors.As(err, &pe) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch pe.Code {
	case domainerrors.CodeInvalidRequest:
		status = http.StatusBadRequest
	case domainerrors.CodeSessionNotFound:
		status = http.StatusNotFound
	case domainerrors.CodeSessionExpired:
		status = http.StatusGone
	case domainerrors.CodeGenerationTimeout:
		status = http.StatusGatewayTimeout
	case domainerrors.CodeGenerationFailed, domainerrors.CodeConsistencyViolation:
		status = http.StatusBadGateway
	case domainerrors.CodeCacheUnavailable:
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"error":     pe.Message,
		"code":      string(pe.Code),
		"retryable": pe.Retryable,
	})
}
