package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// PubError is the structured error type for pubrag.
// It carries enough context for logging, CLI output and MCP error mapping.
type PubError struct {
	// Code is the unique error code (e.g., "ERR_201_GRAPH_CONNECT").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *PubError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *PubError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is works against sentinel PubErrors.
func (e *PubError) Is(target error) bool {
	if t, ok := target.(*PubError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *PubError) WithDetail(key, value string) *PubError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *PubError) WithSuggestion(suggestion string) *PubError {
	e.Suggestion = suggestion
	return e
}

// New creates a PubError. Category, severity and retryability derive from the code.
func New(code string, message string, cause error) *PubError {
	return &PubError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a PubError from an existing error, reusing its message.
func Wrap(code string, err error) *PubError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *PubError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// GraphError creates a graph query error.
func GraphError(message string, cause error) *PubError {
	return New(ErrCodeGraphQuery, message, cause)
}

// StorageError creates an index storage error.
func StorageError(message string, cause error) *PubError {
	return New(ErrCodeStoreIO, message, cause)
}

// IsRetryable reports whether err, or any PubError in its chain, is retryable.
func IsRetryable(err error) bool {
	var pe *PubError
	if stderrors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	var pe *PubError
	if stderrors.As(err, &pe) {
		return pe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the first PubError code in the chain, or "".
func GetCode(err error) string {
	var pe *PubError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// FormatForCLI renders an error for terminal output, including the suggestion.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var pe *PubError
	if !stderrors.As(err, &pe) {
		return "Error: " + err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(err.Error())
	if pe.Suggestion != "" {
		sb.WriteString("\n  Suggestion: ")
		sb.WriteString(pe.Suggestion)
	}
	return sb.String()
}
