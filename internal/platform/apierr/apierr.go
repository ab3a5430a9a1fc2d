package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/marketplace-backend/internal/domain"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// StatusForCode maps a domain error code onto an HTTP status.
func StatusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeExternalService:
		return http.StatusBadGateway
	case domain.CodeUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeAuthorization:
		return http.StatusForbidden
	case domain.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromError classifies err. Existing *Error values pass through; domain errors are mapped
// by code; anything else becomes an opaque internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	code := domain.CodeOf(err)
	if code == "" {
		return New(http.StatusInternalServerError, string(domain.CodeInternal), errors.New("internal error"))
	}
	if code == domain.CodeInternal {
		return New(http.StatusInternalServerError, string(code), errors.New("internal error"))
	}
	return New(StatusForCode(code), string(code), err)
}
