package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes failure semantics across the pipeline.
type ErrorCode string

const (
	CodeValidation      ErrorCode = "validation"
	CodeNotFound        ErrorCode = "not_found"
	CodeExternalService ErrorCode = "external_service"
	CodeUnavailable     ErrorCode = "unavailable"
	CodeAuthorization   ErrorCode = "authorization"
	CodeConflict        ErrorCode = "conflict"
	CodeInternal        ErrorCode = "internal"
)

// Error is the canonical domain error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func sentinel(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrValidation              = sentinel(CodeValidation, "invalid request")
	ErrVendorNotOnboarded      = sentinel(CodeValidation, "vendor has not finished payment onboarding")
	ErrVendorNotFound          = sentinel(CodeNotFound, "vendor not found")
	ErrProductUnavailable      = sentinel(CodeValidation, "product unavailable")
	ErrInsufficientStock       = sentinel(CodeValidation, "insufficient stock")
	ErrPriceMismatch           = sentinel(CodeValidation, "price changed")
	ErrServiceUnavailable      = sentinel(CodeUnavailable, "dependent service unavailable")
	ErrExternalService         = sentinel(CodeExternalService, "external service failed")
	ErrInvalidSignature        = sentinel(CodeAuthorization, "invalid webhook signature")
	ErrCheckoutSessionNotFound = sentinel(CodeNotFound, "checkout session not found")
	ErrIncompleteAddress       = sentinel(CodeValidation, "incomplete address")
	ErrNoRatesAvailable        = sentinel(CodeExternalService, "no shipping rates available")
	ErrOrderNotFound           = sentinel(CodeNotFound, "order not found")
	ErrNoEligibleOrders        = sentinel(CodeValidation, "no orders eligible for withdrawal")
	ErrVendorNotConnected      = sentinel(CodeValidation, "vendor payment account not connected")
	ErrLabelAlreadyPurchased   = sentinel(CodeConflict, "label already purchased")
	ErrForbidden               = sentinel(CodeAuthorization, "forbidden")
	ErrInvalidTransition       = sentinel(CodeConflict, "invalid status transition")
)

// Fail derives an error from a sentinel, keeping errors.Is(err, kind) true.
func Fail(kind *Error, op, message string) error {
	if kind == nil {
		kind = ErrValidation
	}
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = kind.Message
	}
	return &Error{Code: kind.Code, Op: strings.TrimSpace(op), Message: msg, Cause: kind}
}

// Failf is Fail with a formatted message.
func Failf(kind *Error, op, format string, args ...any) error {
	return Fail(kind, op, fmt.Sprintf(format, args...))
}

// NewError builds a domain error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates an existing error with domain error semantics.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// IsCode checks whether err (or wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the outermost domain error code when available.
func CodeOf(err error) ErrorCode {
	var dErr *Error
	if !errors.As(err, &dErr) {
		return ""
	}
	return dErr.Code
}

// MessageOf returns a caller-safe message for err.
func MessageOf(err error) string {
	var dErr *Error
	if !errors.As(err, &dErr) {
		return ""
	}
	return dErr.Message
}
