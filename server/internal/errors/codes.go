// Package errors classifies engine failures into stable codes for logs
// and CLI exit reporting.
package errors

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/carelink/medirank/plugin/ai"
	"github.com/carelink/medirank/plugin/recommend/retriever"
	"github.com/carelink/medirank/plugin/recommend/vecindex"
)

// ErrorCode represents a specific failure class in the ranking pipeline.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeEmbeddingUnavailable indicates the embedding gateway failed.
	ErrCodeEmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	// ErrCodeIndexNotReady indicates missing or untrained index artifacts.
	ErrCodeIndexNotReady ErrorCode = "INDEX_NOT_READY"
	// ErrCodeIndexCorrupt indicates unreadable or inconsistent artifacts.
	ErrCodeIndexCorrupt ErrorCode = "INDEX_CORRUPT"
	// ErrCodeNoCandidates indicates an empty retrieval result.
	ErrCodeNoCandidates ErrorCode = "NO_CANDIDATES"
	// ErrCodeContextCanceled indicates the request was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates the request deadline passed.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal is the fallback for unclassified failures.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// EngineError pairs a failure class with its cause.
type EngineError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// New creates an EngineError with the given code.
func New(code ErrorCode, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// Wrap attaches a code to an existing error.
func Wrap(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{Code: code, Message: message, Cause: cause}
}

// Classify maps an error to its failure class, honoring the engine's
// sentinel errors.
func Classify(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Code
	}

	switch {
	case errors.Is(err, ai.ErrEmbeddingUnavailable):
		return ErrCodeEmbeddingUnavailable
	case errors.Is(err, vecindex.ErrIndexCorrupt):
		return ErrCodeIndexCorrupt
	case errors.Is(err, vecindex.ErrIndexNotReady):
		return ErrCodeIndexNotReady
	case errors.Is(err, retriever.ErrNoCandidates):
		return ErrCodeNoCandidates
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrCodeContextCanceled
	default:
		return ErrCodeInternal
	}
}
