package httpapi

import (
	"errors"
	"net/http"

	"movedesk/internal/contracts"
	"movedesk/internal/pricing"
	"movedesk/internal/settings"
	"movedesk/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var ErrRateLimited = errors.New("rate limit exceeded")

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

func (s *Server) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, contracts.ErrInvalidInput),
		errors.Is(err, settings.ErrInvalidInput),
		errors.Is(err, pricing.ErrUnknownItem),
		errors.Is(err, pricing.ErrMissingPrice):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(c, http.StatusNotFound, "not found")
	default:
		_ = c.Error(err)
		s.logger.Error("Request processing failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
