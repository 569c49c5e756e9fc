package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine-readable error codes.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeIdempotencyKeyRequired = "IDEMPOTENCY_KEY_REQUIRED"
	CodeInvalidStatus          = "INVALID_STATUS"
	CodeAccessDenied           = "ACCESS_DENIED"
	CodeTicketNotFound         = "TICKET_NOT_FOUND"
	CodeStaleData              = "STALE_DATA"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeRateLimit              = "RATE_LIMIT"
	CodeNotFound               = "NOT_FOUND"
	CodeInternal               = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewIdempotencyKeyRequired() error {
	return NewDomainError(CodeIdempotencyKeyRequired, "Idempotency-Key header is required", http.StatusBadRequest, nil)
}

func NewInvalidStatus(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidStatus, message, http.StatusBadRequest, details)
}

func NewAccessDenied(message string) error {
	return NewDomainError(CodeAccessDenied, message, http.StatusForbidden, nil)
}

func NewTicketNotFound(ticketID string) error {
	return NewDomainError(CodeTicketNotFound, "Ticket not found", http.StatusNotFound, map[string]any{"ticket_id": ticketID})
}

// NewStaleData reports an optimistic-version mismatch. Clients should re-fetch
// and retry. Negative versions are unknown and left out of the details.
func NewStaleData(ticketID string, expected, current int64) error {
	details := map[string]any{"ticket_id": ticketID}
	if expected >= 0 {
		details["expected_version"] = expected
	}
	if current >= 0 {
		details["current_version"] = current
	}
	return NewDomainError(CodeStaleData, "Ticket has been modified by another user", http.StatusConflict, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewRateLimited() error {
	return NewDomainError(CodeRateLimit, "Too many requests, please try again later.", http.StatusTooManyRequests, nil)
}

func NewRouteNotFound(path string) error {
	return NewDomainError(CodeNotFound, "route not found", http.StatusNotFound, map[string]any{"path": path})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError. Anything unrecognized
// becomes an opaque internal error.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

func MapError(err error) error {
	return ToDomainError(err)
}
