// Package errors_test covers the AppError type, its factories and the
// error-chain helpers.
package errors_test

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/MolForge/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// New / Wrap
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"history not found", errors.CodeHistoryNotFound, "history record 42 not found"},
		{"invalid param", errors.CodeInvalidParam, "user id is required"},
		{"rate limit", errors.CodeRateLimit, "too many requests"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
			assert.Contains(t, ae.Stack, "errors_test.go")
		})
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	t.Parallel()

	ae := errors.Newf(errors.ErrCodeUpstreamRejected, "upstream returned %d", 422)
	assert.Equal(t, "upstream returned 422", ae.Message)
}

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "should not matter"))
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	t.Parallel()

	root := stderrors.New("dial tcp: connection refused")
	level1 := errors.Wrap(root, errors.CodeDatabaseError, "postgres unreachable")
	level2 := errors.Wrap(level1, errors.CodeInternal, "failed to list history")

	assert.Equal(t, level1, stderrors.Unwrap(level2))
	assert.Equal(t, root, stderrors.Unwrap(level1))
	assert.True(t, stderrors.Is(level2, root))
}

func TestWrap_PreservesOriginalCodeWhenCodeUnknown(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.CodeHistoryNotFound, "not found")
	outer := errors.Wrap(inner, errors.CodeUnknown, "adding context")

	require.NotNil(t, outer)
	assert.Equal(t, errors.CodeHistoryNotFound, outer.Code)
}

func TestWrap_OverridesCodeWhenExplicit(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.CodeHistoryNotFound, "not found")
	outer := errors.Wrap(inner, errors.CodeInternal, "unexpected state")

	assert.Equal(t, errors.CodeInternal, outer.Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Error() formatting
// ─────────────────────────────────────────────────────────────────────────────

func TestError_Format(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.CodeHistoryNotFound, "history record not found")
	assert.Equal(t, "[HIST_001] history record not found", ae.Error())

	detailed := ae.WithDetail("id=abc")
	assert.Equal(t, "[HIST_001] history record not found: id=abc", detailed.Error())
}

func TestError_EmptyMessageDoesNotPanic(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.CodeOK, "")
	assert.NotPanics(t, func() { _ = ae.Error() })
}

// ─────────────────────────────────────────────────────────────────────────────
// Builders
// ─────────────────────────────────────────────────────────────────────────────

func TestWithDetail_DoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	original := errors.New(errors.CodeNotFound, "resource missing")
	detailed := original.WithDetail("id=42")

	assert.Empty(t, original.Detail)
	assert.Equal(t, "id=42", detailed.Detail)
	assert.Equal(t, original.Code, detailed.Code)
}

func TestWithDetail_NilReceiverReturnsNil(t *testing.T) {
	t.Parallel()

	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
	assert.Nil(t, ae.WithCause(stderrors.New("x")))
}

func TestWithCause_AttachesCause(t *testing.T) {
	t.Parallel()

	root := stderrors.New("driver: bad connection")
	ae := errors.New(errors.CodeDatabaseError, "database error").WithCause(root)

	assert.Equal(t, root, stderrors.Unwrap(ae))
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain inspection
// ─────────────────────────────────────────────────────────────────────────────

func TestIsCode_ThroughForeignWrapping(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeUpstreamUnavailable, "down")
	outer := fmt.Errorf("proxy: %w", inner)

	assert.True(t, errors.IsCode(outer, errors.ErrCodeUpstreamUnavailable))
	assert.False(t, errors.IsCode(outer, errors.CodeInternal))
	assert.False(t, errors.IsCode(nil, errors.CodeInternal))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsNotFound(errors.NotFound("x")))
	assert.True(t, errors.IsNotFound(errors.New(errors.CodeHistoryNotFound, "x")))
	assert.False(t, errors.IsNotFound(errors.Internal("x")))
	assert.False(t, errors.IsNotFound(stderrors.New("plain")))
}

func TestIsValidationAndUnauthorized(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsValidation(errors.InvalidParam("bad")))
	assert.True(t, errors.IsValidation(errors.New(errors.CodeValidation, "bad")))
	assert.True(t, errors.IsUnauthorized(errors.Unauthorized("no token")))
	assert.False(t, errors.IsUnauthorized(errors.Forbidden("nope")))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.CodeRateLimit, errors.GetCode(fmt.Errorf("wrapped: %w", errors.RateLimit("slow down"))))
}

func TestFactories_SetExpectedCodes(t *testing.T) {
	t.Parallel()

	cases := map[errors.ErrorCode]*errors.AppError{
		errors.CodeNotFound:     errors.NotFound("a"),
		errors.CodeInvalidParam: errors.InvalidParam("b"),
		errors.CodeUnauthorized: errors.Unauthorized("c"),
		errors.CodeForbidden:    errors.Forbidden("d"),
		errors.CodeInternal:     errors.Internal("e"),
		errors.CodeRateLimit:    errors.RateLimit("f"),
	}
	for code, ae := range cases {
		assert.Equal(t, code, ae.Code)
		assert.True(t, strings.HasPrefix(ae.Error(), "["+string(code)+"]"))
	}
}
