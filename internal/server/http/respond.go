package http

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/security/redaction"
)

// APIResponse is the envelope for every non-stream JSON reply.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: message})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, APIResponse{Success: false, Error: message})
}

// respondDomainError maps runtime error kinds onto HTTP statuses. Messages
// pass through redaction so credentials never leave the process.
func respondDomainError(c *gin.Context, err error) {
	var (
		validation *errors.ValidationError
		notFound   *errors.NotFoundError
		denied     *errors.PermissionDeniedError
		budget     *errors.BudgetExceededError
	)
	status := http.StatusInternalServerError
	switch {
	case stderrors.As(err, &validation):
		status = http.StatusBadRequest
	case stderrors.As(err, &notFound):
		status = http.StatusNotFound
	case stderrors.As(err, &denied):
		status = http.StatusForbidden
	case stderrors.As(err, &budget):
		status = http.StatusTooManyRequests
	}
	respondError(c, status, redaction.RedactError(err))
}
