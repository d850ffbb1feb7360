package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domain "canvas-server/services/media-engine/internal/domain/media"
	"canvas-server/services/media-engine/internal/utils/platformerrors"
)

// ErrorResponse represents an error response with platform error details
type ErrorResponse struct {
	Code      string `json:"code,omitempty"` // UUID from PlatformError
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HandleError translates domain sentinels and platform errors into HTTP
// responses. Unknown errors become opaque 500s.
func HandleError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, domain.ErrAlreadyProcessing):
		c.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, domain.ErrTooLarge):
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, domain.ErrEmptyUpload),
		errors.Is(err, domain.ErrUnsupportedType),
		errors.Is(err, domain.ErrUnsafeVector):
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var platformErr *platformerrors.PlatformError
	if errors.As(err, &platformErr) {
		status := platformerrors.ErrorTypeToHTTPStatus(platformErr.GetErrorType())
		c.AbortWithStatusJSON(status, ErrorResponse{
			Code:      platformErr.GetUUID(),
			Error:     platformErr.Message,
			RequestID: platformErr.GetRequestID(),
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: fallback})
}
