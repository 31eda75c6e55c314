package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("llm", Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		OnStateChange: func(_ string, _ State, to State) {
			transitions = append(transitions, to)
		},
	})

	fail := func() error { return errors.New("upstream down") }
	ctx := context.Background()

	assert.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateClosed, cb.State())
	assert.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	clock := time.Now()
	cb := NewCircuitBreaker("llm", Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Second,
	})
	cb.now = func() time.Time { return clock }

	ctx := context.Background()
	assert.Error(t, cb.Execute(ctx, func() error { return errors.New("x") }))
	assert.Equal(t, StateOpen, cb.State())

	clock = clock.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	assert.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCallerCancellationIsNotAFailure(t *testing.T) {
	cb := NewCircuitBreaker("llm", Config{FailureThreshold: 1})

	err := cb.Execute(context.Background(), func() error { return context.Canceled })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().TotalSuccesses)
}
