package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeTable_Complete(t *testing.T) {
	codes := []ErrorCode{
		ErrTimeout, ErrContextCancelled, ErrParseError, ErrEmptyContent,
		ErrDuplicateContent, ErrStorageUnavailable, ErrPublishFailed, ErrProcessingError,
	}

	assert.Len(t, codeTable, len(codes))
	for _, code := range codes {
		assert.NotEqual(t, "Unknown error", GetDescription(code), code)
		assert.NotContains(t, GetSuggestedAction(code), "for more details", code)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrTimeout, true},
		{ErrStorageUnavailable, true},
		{ErrPublishFailed, true},
		{ErrParseError, false},
		{ErrDuplicateContent, false},
		{ErrorCode("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.code))
		})
	}
}

func TestLookupFallbacks(t *testing.T) {
	assert.Equal(t, "Unknown error", GetDescription("nope"))
	assert.Contains(t, GetSuggestedAction("nope"), "--debug")
	assert.Contains(t, GetSuggestedAction(ErrParseError), "fathom-etl parse")
}
