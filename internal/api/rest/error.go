package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cellinlab/ipipo/internal/model"
)

// errorResponse represents a standardized error response
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// errorDetail contains error information
type errorDetail struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
	Details string          `json:"details,omitempty"`
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, statusCode int, code model.ErrorCode, message string, details ...string) {
	response := errorResponse{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	}

	if len(details) > 0 {
		response.Error.Details = details[0]
	}

	c.JSON(statusCode, response)
}

// respondValidationError sends a 400 Bad Request with validation details
func respondValidationError(c *gin.Context, details string) {
	respondWithError(c, http.StatusBadRequest, model.ErrCodeValidation, "Validation failed", details)
}

// respondDomainError maps a tagged domain error to its HTTP status.
// Unknown errors become 500 and are logged.
func respondDomainError(c *gin.Context, err error, log *zap.Logger) {
	code := model.CodeOf(err)

	var status int
	switch code {
	case model.ErrCodeValidation, model.ErrCodeInvalidProof:
		status = http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		status = http.StatusForbidden
	case model.ErrCodeNotFound:
		status = http.StatusNotFound
	case model.ErrCodePaused, model.ErrCodeCapacityExceeded, model.ErrCodeInsufficientBalance:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		respondWithError(c, status, model.ErrCodeInternal, "Internal error")
		return
	}

	// the envelope already carries the code; send the bare message
	message := err.Error()
	var domainErr *model.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	respondWithError(c, status, code, message)
}
