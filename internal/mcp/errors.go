// Package mcp exposes pubrag search, subgraph extraction and answers as
// Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	perrors "github.com/Aman-CERP/pubrag/internal/errors"
	"github.com/Aman-CERP/pubrag/internal/search"
	"github.com/Aman-CERP/pubrag/internal/store"
)

// JSON-RPC error codes returned by pubrag tools.
const (
	// ErrCodeIndexNotFound indicates the persist directory holds no index.
	ErrCodeIndexNotFound = -32001

	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// ErrIndexNotFound indicates no index exists in the persist directory.
var ErrIndexNotFound = errors.New("index not found")

// MCPError is a tool error with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var pubErr *perrors.PubError
	if errors.As(err, &pubErr) {
		return mapPubError(pubErr)
	}

	switch {
	case errors.Is(err, ErrIndexNotFound), errors.Is(err, store.ErrNoManifest):
		return &MCPError{
			Code:    ErrCodeIndexNotFound,
			Message: "Index not found. Run 'pubrag index' first.",
		}
	case errors.Is(err, search.ErrEmptyQuery):
		return NewInvalidParamsError("query cannot be empty or whitespace only")
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeInternalError, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeInternalError, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

func mapPubError(pe *perrors.PubError) *MCPError {
	message := pe.Message
	if pe.Suggestion != "" {
		message = fmt.Sprintf("%s (%s)", pe.Message, pe.Suggestion)
	}

	switch pe.Code {
	case perrors.ErrCodeIndexNotFound:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	case perrors.ErrCodeQueryEmpty:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	}
	if pe.Category == perrors.CategoryStorage && pe.Code == perrors.ErrCodeStoreCorrupt {
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: message}
}
