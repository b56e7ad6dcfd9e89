package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", NewValidationError("payload", "missing %s", "name"), ErrValidation},
		{"authorization", &AuthorizationError{UserID: "u1", Required: "MODERATOR"}, ErrAuthorization},
		{"not found", NewNotFound("change request", "r1"), ErrNotFound},
		{"duplicate", &DuplicateEntityError{Kind: "user"}, ErrDuplicate},
		{"database", &DatabaseError{Op: "query", Stage: StageExecute}, ErrDatabase},
		{"partial", &PartialApprovalError{RequestID: "r1", Err: errors.New("boom")}, ErrPartialApproval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	assert.Equal(t, "comment: too short", NewValidationError("comment", "too short").Error())
	assert.Equal(t, "bad input", NewValidationError("", "bad input").Error())
}

func TestIsRetryable(t *testing.T) {
	transient := &DatabaseError{Op: "checkout", Stage: StageAcquire, Retryable: true, Err: ErrPoolExhausted}
	permanent := &DatabaseError{Op: "query", Stage: StageExecute, Err: errors.New("syntax error")}

	assert.True(t, IsRetryable(transient))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", transient)))
	assert.False(t, IsRetryable(permanent))
	assert.False(t, IsRetryable(NewValidationError("x", "y")))
	assert.False(t, IsRetryable(nil))
}

func TestDatabaseError_Unwrap(t *testing.T) {
	err := &DatabaseError{Op: "checkout", Stage: StageAcquire, Retryable: true, Err: ErrPoolExhausted}
	assert.ErrorIs(t, err, ErrPoolExhausted)

	stage, ok := StageOf(fmt.Errorf("ctx: %w", err))
	require.True(t, ok)
	assert.Equal(t, StageAcquire, stage)

	_, ok = StageOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestPartialApprovalError_WrapsCause(t *testing.T) {
	cause := &DatabaseError{Op: "insert", Stage: StageExecute}
	err := &PartialApprovalError{RequestID: "r-1", Err: cause}

	assert.ErrorIs(t, err, ErrDatabase)
	assert.Contains(t, err.Error(), "approval recorded but changes not applied")
	assert.Contains(t, err.Error(), "r-1")
}
