package errors

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "COMMON_001", ErrCodeInternal.String())
}

func TestHTTPStatusForCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeInternal, 500},
		{ErrCodeBadRequest, 400},
		{ErrCodeNotFound, 404},
		{ErrCodeValidation, 422},
		{ErrCodeHistoryNotFound, 404},
		{ErrCodeUpstreamUnavailable, 503},
		{ErrCodeGenerationMalformed, 502},
		{ErrorCode("UNKNOWN"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, HTTPStatusForCode(tt.code), tt.code)
	}
}

func TestDefaultMessageForCode(t *testing.T) {
	assert.Equal(t, "internal server error", DefaultMessageForCode(ErrCodeInternal))
	assert.Equal(t, "history record not found", DefaultMessageForCode(ErrCodeHistoryNotFound))
	assert.Equal(t, "unknown error", DefaultMessageForCode(ErrorCode("NOPE")))
}

func TestClientServerClassification(t *testing.T) {
	assert.True(t, IsClientError(ErrCodeBadRequest))
	assert.True(t, IsClientError(ErrCodeHistoryInvalid))
	assert.False(t, IsClientError(ErrCodeInternal))
	assert.True(t, IsServerError(ErrCodeHistoryPersistFailed))
	assert.False(t, IsServerError(ErrCodeBadRequest))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "COMMON", ModuleForCode(ErrCodeInternal))
	assert.Equal(t, "GEN", ModuleForCode(ErrCodeGenerationFailed))
	assert.Equal(t, "HIST", ModuleForCode(ErrCodeHistoryNotFound))
	assert.Equal(t, "UPS", ModuleForCode(ErrCodeUpstreamRejected))
	assert.Equal(t, "UNKNOWN", ModuleForCode(CodeOK))
}

func TestEveryCodeHasStatusAndMessage(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z]+_\d{3}$`)
	for code := range ErrorCodeHTTPStatus {
		assert.Regexp(t, pattern, string(code))
		_, ok := ErrorCodeMessage[code]
		assert.True(t, ok, "missing default message for %s", code)
	}
	assert.Len(t, ErrorCodeMessage, len(ErrorCodeHTTPStatus))
}
