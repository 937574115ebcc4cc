package core

import (
	"errors"
	"fmt"
)

// Error codes forming the failure taxonomy of the control plane. Every
// error surfaced to a caller carries one of these codes verbatim.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeTerminalState     = "TERMINAL_STATE"
	CodeValidation        = "VALIDATION"
	CodeUnauthorized      = "UNAUTHORIZED"
)

// BusinessError represents a business logic error with a code.
type BusinessError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e BusinessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode extracts the taxonomy code from err, or "" when err is not a
// BusinessError.
func ErrorCode(err error) string {
	var be BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsCode reports whether err is a BusinessError with the given code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

func conflictf(format string, args ...interface{}) BusinessError {
	return BusinessError{CodeConflict, fmt.Sprintf(format, args...)}
}

func invalidTransitionf(format string, args ...interface{}) BusinessError {
	return BusinessError{CodeInvalidTransition, fmt.Sprintf(format, args...)}
}

func validationf(format string, args ...interface{}) BusinessError {
	return BusinessError{CodeValidation, fmt.Sprintf(format, args...)}
}

// Fixed business errors.
var (
	ErrTaxpayerNotFound = BusinessError{CodeNotFound, "taxpayer not found"}
	ErrDeviceNotFound   = BusinessError{CodeNotFound, "device not found"}
	ErrDeviceRevoked    = BusinessError{CodeTerminalState, "device is revoked; no further status transitions are permitted"}

	ErrInvalidCredentials = BusinessError{CodeUnauthorized, "invalid username or password"}
	ErrSessionExpired     = BusinessError{CodeUnauthorized, "session expired"}
	ErrInvalidToken       = BusinessError{CodeUnauthorized, "invalid token"}
)
