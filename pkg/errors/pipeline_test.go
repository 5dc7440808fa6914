package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		stage string
		code  ErrorCode
	}{
		{"deadline", fmt.Errorf("parse: %w", context.DeadlineExceeded), StageParse, ErrTimeout},
		{"cancelled", context.Canceled, StageStore, ErrContextCancelled},
		{"validation", fmt.Errorf("%w: invalid watch link", ErrValidation), StageParse, ErrParseError},
		{"conflict", ErrConflict, StageStore, ErrDuplicateContent},
		{"unique violation", errors.New(`ERROR: duplicate key value violates unique constraint "messages_pkey"`), StageStore, ErrDuplicateContent},
		{"empty", errors.New("empty content"), StageParse, ErrEmptyContent},
		{"pg down", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), StageStore, ErrStorageUnavailable},
		{"cassandra down", errors.New("gocql: no hosts available in the pool"), StageStore, ErrStorageUnavailable},
		{"redis down", errors.New("dial tcp: lookup redis: no such host"), StagePublish, ErrPublishFailed},
		{"unknown", errors.New("something odd"), StageExport, ErrProcessingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := ClassifyError(tt.err, tt.stage)
			require.NotNil(t, pe)
			assert.Equal(t, tt.code, pe.Code)
			assert.Equal(t, tt.stage, pe.Stage)
			assert.ErrorIs(t, pe, tt.err)
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyError(nil, StageParse))
}

func TestClassifyError_KeepsExistingClassification(t *testing.T) {
	inner := ClassifyError(errors.New("connection refused"), StageStore)
	outer := ClassifyError(fmt.Errorf("batch: %w", inner), StageParse)
	assert.Same(t, inner, outer)
}

func TestPipelineError_Error(t *testing.T) {
	pe := &PipelineError{Code: ErrParseError, Stage: StageParse, Message: "bad line"}
	assert.Equal(t, "parse_error: parse: bad line", pe.Error())

	pe.Stage = ""
	assert.Equal(t, "parse_error: bad line", pe.Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	wrapped := fmt.Errorf("ctx: %w", &PipelineError{Code: ErrTimeout})
	assert.Equal(t, ErrTimeout, CodeOf(wrapped))
}

func TestIsErrorRetryable(t *testing.T) {
	assert.True(t, IsErrorRetryable(ClassifyError(errors.New("connection refused"), StageStore)))
	assert.True(t, IsErrorRetryable(ClassifyError(context.DeadlineExceeded, StageStore)))
	assert.False(t, IsErrorRetryable(ClassifyError(ErrValidation, StageParse)))
	assert.False(t, IsErrorRetryable(errors.New("plain")))
}
