package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, time.Second, p.Backoff(10))
}

func TestRetry(t *testing.T) {
	p := RetryPolicy{Attempts: 3, Base: time.Millisecond}
	calls := 0
	err := Retry(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), p, func(context.Context) error {
		calls++
		return Permanent{Err: errors.New("bad key")}
	})
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)

	calls = 0
	err = Retry(context.Background(), p, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, RetryPolicy{Attempts: 5, Base: time.Hour}, func(context.Context) error {
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenBucketLimiter(t *testing.T) {
	l := NewTokenBucketLimiter(1000, 2)
	ctx := context.Background()
	assert.NoError(t, l.Wait(ctx))
	assert.NoError(t, l.Wait(ctx))
	assert.NoError(t, l.Wait(ctx))

	slow := NewTokenBucketLimiter(0.001, 1)
	assert.NoError(t, slow.Wait(ctx))
	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, slow.Wait(cctx), context.DeadlineExceeded)
}

func TestTokenBucketRefill(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewTokenBucketLimiter(2, 2)
	l.now = func() time.Time { return now }
	l.refill = now

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	// 长时间空闲也只积攒 burst 个
	now = now.Add(time.Hour)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestSupervise(t *testing.T) {
	p := SupervisePolicy{MaxRestarts: 2, Backoff: time.Millisecond}

	runs := 0
	err := Supervise(context.Background(), p, nil, func(context.Context) error {
		runs++
		return errors.New("read: connection reset")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, runs, "initial run plus two restarts")

	runs = 0
	err = Supervise(context.Background(), p, nil, func(context.Context) error {
		runs++
		return ErrHeartbeatTimeout
	})
	assert.ErrorIs(t, err, ErrHeartbeatTimeout)
	assert.Equal(t, 1, runs)

	ctx, cancel := context.WithCancel(context.Background())
	runs = 0
	err = Supervise(ctx, SupervisePolicy{Backoff: time.Millisecond}, nil, func(context.Context) error {
		runs++
		if runs == 2 {
			cancel()
		}
		return ErrGoingAway
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, runs)
}
