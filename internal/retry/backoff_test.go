package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	b := NewExponentialBackoff(WithMaxRetries(3), WithBaseDelay(time.Millisecond), WithoutJitter())

	calls := 0
	err := b.Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_Exhausted(t *testing.T) {
	b := NewExponentialBackoff(WithMaxRetries(2), WithBaseDelay(time.Millisecond), WithoutJitter())
	cause := errors.New("boom")

	calls := 0
	err := b.Retry(context.Background(), func() error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, b.Attempts())
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	b := NewExponentialBackoff(WithMaxRetries(10), WithBaseDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- b.Retry(ctx, func() error {
			calls++
			return errors.New("fail")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop after cancel")
	}
}

func TestDelay_GrowsAndCaps(t *testing.T) {
	b := NewExponentialBackoff(WithBaseDelay(10*time.Millisecond), WithMaxDelay(50*time.Millisecond), WithoutJitter())

	assert.Equal(t, 10*time.Millisecond, b.Delay(0))
	assert.Equal(t, 20*time.Millisecond, b.Delay(1))
	assert.Equal(t, 40*time.Millisecond, b.Delay(2))
	assert.Equal(t, 50*time.Millisecond, b.Delay(3))
}

func TestDelay_JitterBounded(t *testing.T) {
	b := NewExponentialBackoff(WithBaseDelay(100 * time.Millisecond))
	for i := 0; i < 20; i++ {
		d := b.Delay(0)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}
