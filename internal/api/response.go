package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorData  `json:"error,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func SuccessResponse(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

func ErrorResponse(message, code string) Response {
	return Response{
		Success: false,
		Error: &ErrorData{
			Message: message,
			Code:    code,
		},
	}
}

// RespondError writes err in the error envelope. An *AppError keeps its own
// status and message; anything else is classified by sentinel.
func RespondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = classify(err)
	}
	c.JSON(appErr.StatusCode, ErrorResponse(appErr.Error(), errorCode(appErr.Err)))
}

func classify(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound), errors.Is(err, apperrors.ErrInvalidSessionID):
		return apperrors.NewAppError(err, "Invalid session", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrInvalidLatitude),
		errors.Is(err, apperrors.ErrInvalidLongitude),
		errors.Is(err, apperrors.ErrInvalidCoordinates):
		return apperrors.NewAppError(err, "", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrRateLimitExceeded):
		return apperrors.NewAppError(err, "", http.StatusTooManyRequests)
	default:
		return apperrors.NewAppError(err, "Internal server error", http.StatusInternalServerError)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound), errors.Is(err, apperrors.ErrInvalidSessionID):
		return "INVALID_SESSION"
	case errors.Is(err, apperrors.ErrInvalidLatitude),
		errors.Is(err, apperrors.ErrInvalidLongitude),
		errors.Is(err, apperrors.ErrInvalidCoordinates):
		return "INVALID_COORDINATES"
	case errors.Is(err, apperrors.ErrRateLimitExceeded):
		return "RATE_LIMIT"
	default:
		return "INTERNAL_ERROR"
	}
}
