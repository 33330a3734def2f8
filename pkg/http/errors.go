package http

import (
	"fmt"
	"net/http"
)

// Error codes shared by the handlers. Normalizer codes (ERR_SYMBOL,
// ERR_TIMEFRAME, ...) pass through FieldError unchanged.
const (
	CodeBadRequest    = "ERR_BAD_REQUEST"
	CodeInvalidJSON   = "ERR_INVALID_JSON"
	CodeInvalidConfig = "ERR_INVALID_CONFIG"
	CodeUnauthorized  = "ERR_UNAUTHORIZED"
	CodeNotFound      = "ERR_NOT_FOUND"
	CodeInternal      = "ERR_INTERNAL"
)

// AppError is an error that knows its HTTP status. It is written as the
// data of the response envelope.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Field: field, Status: status}
}

// WithError attaches the underlying cause; it is logged, never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// FieldError is a 400 tied to one input field.
func FieldError(code, field, message string) *AppError {
	return NewAppError(code, field, message, http.StatusBadRequest)
}

func BadRequestError(message string) *AppError {
	return NewAppError(CodeBadRequest, "", message, http.StatusBadRequest)
}

func NotFoundError(message string) *AppError {
	return NewAppError(CodeNotFound, "", message, http.StatusNotFound)
}

func UnauthorizedError(message string) *AppError {
	return NewAppError(CodeUnauthorized, "", message, http.StatusUnauthorized)
}
