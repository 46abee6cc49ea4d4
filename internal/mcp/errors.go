// Package mcp exposes the index over the Model Context Protocol. The
// server wraps the engine and the hybrid searcher with three stdio
// tools: search, index_status and reindex.
package mcp

import (
	"context"
	"errors"
	"fmt"

	rverrors "github.com/repovec/repovec/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeRemoteUnavailable indicates the embedder or vector store
	// could not be reached.
	ErrCodeRemoteUnavailable = -32001

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var rvErr *rverrors.RepoVecError
	if errors.As(err, &rvErr) {
		return mapRepoVecError(rvErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: err.Error(),
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// mapRepoVecError converts a coded error to an MCPError. The suggestion
// rides along in the message so clients can surface it.
func mapRepoVecError(re *rverrors.RepoVecError) *MCPError {
	message := re.Message
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s %s", re.Message, re.Suggestion)
	}

	switch re.Category {
	case rverrors.CategoryRemote:
		return &MCPError{
			Code:    ErrCodeRemoteUnavailable,
			Message: message,
		}
	case rverrors.CategoryValidation:
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: message,
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	}
}
