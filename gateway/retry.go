package gateway

import (
	"context"
	"time"
)

// RetryPolicy 是指数退避重试参数。
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultRetry 用于 REST 查询。
var DefaultRetry = RetryPolicy{Attempts: 3, Base: 500 * time.Millisecond, Max: 5 * time.Second}

// Backoff 返回第 attempt 次失败后的等待时间（attempt 从 0 开始）。
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	return d
}

// Retry 执行 fn 直到成功、遇到不可重试错误或用完次数。
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || IsPermanent(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(p.Backoff(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
