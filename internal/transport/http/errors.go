package http

import (
	"errors"
	"net/http"

	"exam-flow-service/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeValidation        = "VALIDATION_FAILED"
	codeNotFound          = "NOT_FOUND"
	codeSequenceViolation = "SEQUENCE_VIOLATION"
	codeNoSlot            = "NO_SLOT"
	codeConflict          = "CONFLICT"
	codeInternal          = "INTERNAL_ERROR"
)

type errorBody struct {
	Code          string           `json:"code"`
	Message       string           `json:"message"`
	RequiredPaper domain.PaperType `json:"requiredPaper,omitempty"`
}

// classify maps a service error to an HTTP status and a client-safe body.
func classify(err error) (int, errorBody) {
	body := errorBody{Message: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, body.Code = http.StatusBadRequest, codeValidation
	case errors.Is(err, domain.ErrNotFound):
		status, body.Code = http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrSequenceViolation):
		status, body.Code = http.StatusConflict, codeSequenceViolation
		body.RequiredPaper, _ = domain.RequiredPaper(err)
	case errors.Is(err, domain.ErrCapacity):
		status, body.Code = http.StatusConflict, codeNoSlot
	case errors.Is(err, domain.ErrConflict):
		status, body.Code = http.StatusConflict, codeConflict
	default:
		body.Code = codeInternal
		body.Message = "internal server error"
	}
	return status, body
}

func writeError(c *gin.Context, log *zap.Logger, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
