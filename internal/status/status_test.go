package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs_MatchesOnCode(t *testing.T) {
	err := Errorf(CodeConflict, "stale version, reload and retry")
	assert.ErrorIs(t, err, ErrVersionConflict)

	other := Errorf(CodeConflict, "some other conflict")
	assert.NotErrorIs(t, other, ErrVersionConflict)
}

func TestErrorIs_ThroughWrapping(t *testing.T) {
	inner := Wrap(CodeNotFound, "record not found", errors.New("sql: no rows"))
	wrapped := fmt.Errorf("loading payment: %w", inner)

	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestUnwrap_ExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeDatabase, "create payout", cause)
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf_DefaultsToDatabase(t *testing.T) {
	assert.Equal(t, CodeDatabase, CodeOf(errors.New("anonymous failure")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Errorf(CodeProvider, "timeout")))
	assert.True(t, Retryable(Errorf(CodeRateLimited, "slow down")))
	assert.True(t, Retryable(Errorf(CodeDatabase, "deadlock")))

	assert.False(t, Retryable(Errorf(CodeValidation, "bad amount")))
	assert.False(t, Retryable(Errorf(CodeConflict, "stale version")))
	assert.False(t, Retryable(Errorf(CodeForbidden, "not yours")))
	assert.False(t, Retryable(Errorf(CodeCalculation, "negative net")))
}

func TestAsError(t *testing.T) {
	e, ok := AsError(fmt.Errorf("outer: %w", ErrRateLimited))
	assert.True(t, ok)
	assert.Equal(t, CodeRateLimited, e.Code)

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
}
