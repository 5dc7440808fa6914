package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a per-document pipeline failure.
type ErrorCode string

const (
	ErrTimeout            ErrorCode = "timeout"
	ErrContextCancelled   ErrorCode = "context_cancelled"
	ErrParseError         ErrorCode = "parse_error"
	ErrEmptyContent       ErrorCode = "empty_content"
	ErrDuplicateContent   ErrorCode = "duplicate_content"
	ErrStorageUnavailable ErrorCode = "storage_unavailable"
	ErrPublishFailed      ErrorCode = "publish_failed"
	ErrProcessingError    ErrorCode = "processing_error"
)

// Pipeline stages reported in PipelineError.Stage.
const (
	StageRead    = "read"
	StageParse   = "parse"
	StageExport  = "export"
	StageStore   = "store"
	StagePublish = "publish"
)

// PipelineError is a classified failure of one pipeline stage.
type PipelineError struct {
	Code    ErrorCode
	Stage   string
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Message patterns for failures that arrive from drivers as plain errors.
var (
	storagePatterns = []string{
		"connection refused",
		"no such host",
		"i/o timeout",
		"connection reset",
		"broken pipe",
		"unavailable",
		"no hosts available",
	}
	duplicatePatterns = []string{
		"duplicate key",
		"unique constraint",
		"already exists",
	}
)

// ClassifyError wraps err in a *PipelineError for stage. Errors matching no
// known condition are classified as ErrProcessingError.
func ClassifyError(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	var existing *PipelineError
	if errors.As(err, &existing) {
		return existing
	}

	pe := &PipelineError{Stage: stage, Message: err.Error(), Cause: err}
	lower := strings.ToLower(pe.Message)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Code = ErrTimeout
		pe.Message = "operation timed out"
	case errors.Is(err, context.Canceled):
		pe.Code = ErrContextCancelled
		pe.Message = "operation cancelled"
	case IsValidation(err):
		pe.Code = ErrParseError
	case IsConflict(err) || containsAny(lower, duplicatePatterns):
		pe.Code = ErrDuplicateContent
	case strings.Contains(lower, "empty content") || strings.Contains(lower, "no messages"):
		pe.Code = ErrEmptyContent
	case containsAny(lower, storagePatterns):
		if stage == StagePublish {
			pe.Code = ErrPublishFailed
		} else {
			pe.Code = ErrStorageUnavailable
		}
	default:
		pe.Code = ErrProcessingError
	}
	return pe
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// CodeOf returns the code of the first PipelineError in err's chain, or ""
// when there is none.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsErrorRetryable reports whether err carries a retryable code.
func IsErrorRetryable(err error) bool {
	return IsRetryable(CodeOf(err))
}
