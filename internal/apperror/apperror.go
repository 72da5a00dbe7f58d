package apperror

import (
	"errors"
	"net/http"
)

type Code string

const (
	BadRequest  Code = "BAD_REQUEST"
	NotFound    Code = "NOT_FOUND"
	Internal    Code = "INTERNAL"
	Conflict    Code = "CONFLICT"
	TooLarge    Code = "TOO_LARGE"
	Unavailable Code = "UNAVAILABLE"
)

type AppError struct {
	code    Code
	message string
}

func New(code Code, message string) *AppError {
	return &AppError{code: code, message: message}
}

func (e *AppError) Error() string   { return e.message }
func (e *AppError) Code() Code      { return e.code }
func (e *AppError) Message() string { return e.message }

func (e *AppError) HTTPStatus() int {
	switch e.code {
	case BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case TooLarge:
		return http.StatusRequestEntityTooLarge
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// As reports whether err wraps an *AppError and returns it.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	ae, ok := As(err)
	return ok && ae.code == code
}
