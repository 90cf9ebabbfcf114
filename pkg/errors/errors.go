package errors

import "errors"

var (
	// Session errors
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session ID")

	// Profile errors
	ErrProfileNotFound = errors.New("profile not found")

	// Validation errors
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidLatitude    = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude   = errors.New("longitude must be between -180 and 180")
	ErrInvalidAccuracy    = errors.New("accuracy must not be negative")
	ErrInvalidHeading     = errors.New("heading must be between 0 and 360")
	ErrInvalidSpeed       = errors.New("speed must not be negative")

	// Tracking errors
	ErrSourceUnavailable = errors.New("position source unavailable")
	ErrNotTracking       = errors.New("tracking is not active")
	ErrNotPrivileged     = errors.New("privileged access tier required")

	// Rate limit errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrTooManyRequests   = errors.New("too many requests")

	// WebSocket errors
	ErrInvalidMessageType = errors.New("invalid message type")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrLocationNotFound   = errors.New("location not found")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(err error, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: statusCode,
	}
}
