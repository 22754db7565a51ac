package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message,
// so wrapped sentinels still match with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeParse             = "PARSE_ERROR"
	ErrCodeGeneration        = "GENERATION_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidChunkConfig   = NewDomainError(ErrCodeValidation, "invalid chunk configuration")
	ErrInvalidSettings      = NewDomainError(ErrCodeValidation, "invalid ai settings")
	ErrInvalidAction        = NewDomainError(ErrCodeValidation, "invalid review action")
)

// Not found errors
var (
	ErrEntryNotFound    = NewDomainError(ErrCodeNotFound, "knowledge entry not found")
	ErrResponseNotFound = NewDomainError(ErrCodeNotFound, "ai response not found")
	ErrTicketNotFound   = NewDomainError(ErrCodeNotFound, "ticket not found")
	ErrDeliveryNotFound = NewDomainError(ErrCodeNotFound, "event delivery not found")
	ErrSettingsNotFound = NewDomainError(ErrCodeNotFound, "ai settings not found")
)

// ErrStatusConflict is returned by stores when a compare-and-swap on a
// response status finds a different current status than expected.
var ErrStatusConflict = errors.New("response status changed concurrently")

// NewParseError reports ingestion input that cannot be turned into chunks.
func NewParseError(message string, cause error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeParse, message, cause)
}

// NewGenerationError reports a failed or timed out call to the generator.
func NewGenerationError(message string, cause error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeGeneration, message, cause)
}

// NewInvalidTransition reports an action that is not legal from the current status.
func NewInvalidTransition(from ResponseStatus, action ReviewAction) *DomainError {
	return NewDomainError(ErrCodeInvalidTransition,
		fmt.Sprintf("cannot %s a response in status %s", action, from))
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
