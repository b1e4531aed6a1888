package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-settlement/internal/status"
)

func TestCircuitBreaker_PassesThroughWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterFailureRatio(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMinRequests(4), WithFailureRatio(0.5))
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		_, err := cb.Execute(context.Background(), func() (any, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, BreakerOpen, cb.State())

	// Open breaker rejects without calling through.
	called := false
	_, err := cb.Execute(context.Background(), func() (any, error) {
		called = true
		return nil, nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, status.CodeProvider, status.CodeOf(err))
	assert.True(t, status.Retryable(err))
}

func TestCircuitBreaker_StaysClosedBelowMinRequests(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMinRequests(10), WithFailureRatio(0.5))

	for i := 0; i < 5; i++ {
		cb.Execute(context.Background(), func() (any, error) {
			return nil, errors.New("boom")
		})
	}
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test",
		WithMinRequests(2),
		WithFailureRatio(0.5),
		WithCooldown(10*time.Millisecond),
	)

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() (any, error) {
			return nil, errors.New("boom")
		})
	}
	require.Equal(t, BreakerOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, BreakerHalfOpen, cb.State())

	_, err := cb.Execute(context.Background(), func() (any, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test",
		WithMinRequests(2),
		WithFailureRatio(0.5),
		WithCooldown(10*time.Millisecond),
	)

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() (any, error) {
			return nil, errors.New("boom")
		})
	}
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, BreakerHalfOpen, cb.State())

	cb.Execute(context.Background(), func() (any, error) {
		return nil, errors.New("still down")
	})
	assert.Equal(t, BreakerOpen, cb.State())
}

func TestCircuitBreaker_RespectsCanceledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (any, error) {
		t.Fatal("must not be called")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
