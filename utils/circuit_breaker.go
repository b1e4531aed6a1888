package utils

import (
	"context"
	"sync"
	"time"

	"event-settlement/internal/status"
)

// CircuitBreaker guards outbound provider calls. It trips open after
// the failure ratio is exceeded within a generation and half-opens
// after a cooldown so a recovering provider is probed instead of
// hammered.
type CircuitBreaker struct {
	name         string
	maxRequests  uint32
	interval     time.Duration
	cooldown     time.Duration
	failureRatio float64

	mutex  sync.Mutex
	state  BreakerState
	counts breakerCounts
	expiry time.Time
}

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

type breakerCounts struct {
	requests            uint32
	totalSuccesses      uint32
	totalFailures       uint32
	consecutiveFailures uint32
}

// BreakerOption overrides a default threshold.
type BreakerOption func(*CircuitBreaker)

func WithFailureRatio(ratio float64) BreakerOption {
	return func(cb *CircuitBreaker) { cb.failureRatio = ratio }
}

func WithCooldown(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.cooldown = d }
}

func WithMinRequests(n uint32) BreakerOption {
	return func(cb *CircuitBreaker) { cb.maxRequests = n }
}

func NewCircuitBreaker(name string, opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxRequests:  20,
		interval:     60 * time.Second,
		cooldown:     30 * time.Second,
		failureRatio: 0.6,
		state:        BreakerClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs req unless the breaker is open. An open breaker returns
// a retryable PROVIDER_API_ERROR without invoking req.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cb.beforeRequest(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(false)
			panic(r)
		}
	}()

	result, err := req()
	cb.afterRequest(err == nil)
	return result, err
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.currentState(time.Now())
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	state := cb.currentState(time.Now())
	if state == BreakerOpen {
		return status.Errorf(status.CodeProvider, "%s circuit breaker open, provider temporarily unavailable", cb.name)
	}
	cb.counts.requests++
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	state := cb.currentState(time.Now())
	if success {
		cb.counts.totalSuccesses++
		cb.counts.consecutiveFailures = 0
		if state == BreakerHalfOpen {
			cb.state = BreakerClosed
			cb.newGeneration(time.Now())
		}
		return
	}

	cb.counts.totalFailures++
	cb.counts.consecutiveFailures++
	if state == BreakerHalfOpen || cb.readyToTrip() {
		cb.state = BreakerOpen
		cb.expiry = time.Now().Add(cb.cooldown)
		cb.counts = breakerCounts{}
	}
}

func (cb *CircuitBreaker) readyToTrip() bool {
	return cb.counts.requests >= cb.maxRequests &&
		float64(cb.counts.totalFailures)/float64(cb.counts.requests) >= cb.failureRatio
}

// currentState assumes the mutex is held.
func (cb *CircuitBreaker) currentState(now time.Time) BreakerState {
	switch cb.state {
	case BreakerClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.newGeneration(now)
		}
	case BreakerOpen:
		if cb.expiry.Before(now) {
			cb.state = BreakerHalfOpen
		}
	}
	return cb.state
}

func (cb *CircuitBreaker) newGeneration(now time.Time) {
	cb.counts = breakerCounts{}
	if cb.state == BreakerClosed {
		cb.expiry = now.Add(cb.interval)
	} else {
		cb.expiry = time.Time{}
	}
}
