package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Application error kinds. Callers classify with errors.Is.

var (
	// ErrInvalidInput indicates an empty or malformed payload or missing configuration
	ErrInvalidInput = errors.New("invalid input")

	// ErrRequest indicates a failed HTTP call, either non-2xx or transport level
	ErrRequest = errors.New("request failed")

	// ErrConflict indicates the server rejected a write because of a stale version
	ErrConflict = errors.New("version conflict")

	// ErrTemplateRead indicates the page template exists but could not be read
	ErrTemplateRead = errors.New("template read failed")
)

// Exit codes returned by the alert action process.
const (
	ExitOK       = 0
	ExitInput    = 1
	ExitRequest  = 2
	ExitTemplate = 3
	ExitInternal = 4
)

// RequestError describes a failed HTTP call. StatusCode is zero when the
// request never got a response.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Cause      error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("connection error for %s %s: %v", e.Method, e.URL, e.Cause)
	}
	return fmt.Sprintf("HTTP %d error for %s %s: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

// Is reports ErrRequest for every request error and ErrConflict for 409s
func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrRequest:
		return true
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// InvalidInputError creates an invalid input error with context
func InvalidInputError(field, reason string) error {
	if field == "" {
		return fmt.Errorf("%s: %w", reason, ErrInvalidInput)
	}
	return fmt.Errorf("%s: %s: %w", field, reason, ErrInvalidInput)
}

// TemplateReadError wraps a non-missing-file failure while reading a template
func TemplateReadError(path string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrTemplateRead, path, cause)
}

// ExitCode maps an error returned by the alert action to a process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidInput):
		return ExitInput
	case errors.Is(err, ErrRequest):
		return ExitRequest
	case errors.Is(err, ErrTemplateRead):
		return ExitTemplate
	default:
		return ExitInternal
	}
}

// Kind returns a short label for the error class, used in diagnostics
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "input error"
	case errors.Is(err, ErrConflict):
		return "version conflict"
	case errors.Is(err, ErrRequest):
		return "request error"
	case errors.Is(err, ErrTemplateRead):
		return "template error"
	default:
		return "error"
	}
}

// Is checks if an error matches a target error (works with wrapped errors)
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
