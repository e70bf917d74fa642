package utils

import (
	"errors"
)

var (
	ErrInvalidMediaID       = errors.New("invalid media identifier")
	ErrMissingFormat        = errors.New("quality or both video_format_id and audio_format_id are required")
	ErrNotFound             = errors.New("not found")
	ErrProbeFailed          = errors.New("format probe failed")
	ErrTransferFailed       = errors.New("transfer failed")
	ErrDatabaseError        = errors.New("database operation failed")
	ErrExternalServiceError = errors.New("external service error")
	ErrConfigurationError   = errors.New("configuration error")
)

type WrappedError struct {
	Err     error
	Message string
	Context map[string]any
}

func (w *WrappedError) Error() string {
	if w.Message != "" {
		return w.Message + ": " + w.Err.Error()
	}
	return w.Err.Error()
}

func (w *WrappedError) Unwrap() error {
	return w.Err
}

func WrapError(err error, message string, ctx map[string]any) error {
	return &WrappedError{
		Err:     err,
		Message: message,
		Context: ctx,
	}
}

// RootError returns the innermost error in the chain (for user-facing messages without wrapper text).
func RootError(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		err = e
	}
	return err
}

// ErrorMessage returns the root cause text, or "" for a nil error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return RootError(err).Error()
}
