package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeUnknownStatus     = "UNKNOWN_STATUS"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeConflict          = "CONFLICT"
	CodeStorageFailure    = "STORAGE_FAILURE"
	CodeInvalidPage       = "INVALID_PAGE"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
	Details interface{}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// FieldError names one violated input constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// TransitionDetails is the payload of an ILLEGAL_TRANSITION error.
type TransitionDetails struct {
	From           string   `json:"from"`
	To             string   `json:"to"`
	AllowedTargets []string `json:"allowed_targets"`
}

func Validation(fields []FieldError) *AppError {
	msg := "validation failed"
	if len(fields) == 1 {
		msg = fields[0].Field + ": " + fields[0].Message
	}
	return &AppError{
		Code:    CodeValidation,
		Message: msg,
		Status:  http.StatusBadRequest,
		Details: fields,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func UnknownStatus(status string) *AppError {
	return &AppError{
		Code:    CodeUnknownStatus,
		Message: fmt.Sprintf("unknown status %q", status),
		Status:  http.StatusBadRequest,
	}
}

func IllegalTransition(from, to string, allowed []string) *AppError {
	if allowed == nil {
		allowed = []string{}
	}
	return &AppError{
		Code:    CodeIllegalTransition,
		Message: fmt.Sprintf("cannot move report from %s to %s", from, to),
		Status:  http.StatusBadRequest,
		Details: TransitionDetails{From: from, To: to, AllowedTargets: allowed},
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

func StorageFailure(op string, err error) *AppError {
	return &AppError{
		Code:    CodeStorageFailure,
		Message: op + " failed",
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func InvalidPage(page int) *AppError {
	return &AppError{
		Code:    CodeInvalidPage,
		Message: fmt.Sprintf("page must be >= 1, got %d", page),
		Status:  http.StatusBadRequest,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// As extracts the AppError from err, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// Storage wraps err as STORAGE_FAILURE unless it already carries an AppError.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return StorageFailure(op, err)
}
