package tracker

import (
	"context"
	"errors"

	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
)

// ErrorCode classifies acquisition failures.
type ErrorCode string

const (
	PermissionDenied    ErrorCode = "permission_denied"
	PositionUnavailable ErrorCode = "position_unavailable"
	Timeout             ErrorCode = "timeout"
	Unknown             ErrorCode = "unknown"
)

var codeMessages = map[ErrorCode]string{
	PermissionDenied:    "Location permission denied",
	PositionUnavailable: "Location information is unavailable",
	Timeout:             "Location request timed out",
	Unknown:             "Unable to determine location",
}

// PositionError is an acquisition failure reported on the tracker state.
// Tracking continues after one.
type PositionError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func NewPositionError(code ErrorCode, cause error) *PositionError {
	msg, ok := codeMessages[code]
	if !ok {
		code = Unknown
		msg = codeMessages[Unknown]
	}
	return &PositionError{Code: code, Message: msg, Err: cause}
}

func (e *PositionError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *PositionError) Unwrap() error {
	return e.Err
}

// ParseErrorCode maps a reported code name to an ErrorCode.
func ParseErrorCode(s string) ErrorCode {
	switch ErrorCode(s) {
	case PermissionDenied, PositionUnavailable, Timeout:
		return ErrorCode(s)
	default:
		return Unknown
	}
}

// Classify maps any acquisition error to a PositionError.
func Classify(err error) *PositionError {
	if err == nil {
		return nil
	}

	var pe *PositionError
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewPositionError(Timeout, err)
	case errors.Is(err, apperrors.ErrSourceUnavailable):
		return NewPositionError(PositionUnavailable, err)
	default:
		return NewPositionError(Unknown, err)
	}
}
