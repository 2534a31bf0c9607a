package core

import (
	"errors"
	"net/http"
)

var ErrInvalidRequest = errors.New("invalid request")

// StatusError is an error that knows which HTTP status it maps to.
type StatusError struct {
	Message string
	Code    int
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NewBadRequestError builds a 400 error
func NewBadRequestError(msg string) *StatusError {
	return &StatusError{Message: msg, Code: http.StatusBadRequest, Err: ErrInvalidRequest}
}

// StatusCode returns the HTTP status carried by err, or fallback.
func StatusCode(err error, fallback int) int {
	var se *StatusError
	if errors.As(err, &se) && se.Code != 0 {
		return se.Code
	}
	if errors.Is(err, ErrInvalidBody) || errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest
	}
	return fallback
}
