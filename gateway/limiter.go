package gateway

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 在发送每个 REST 请求前调用。
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// TokenBucketLimiter 令牌桶：每秒补充 perSec 个令牌，最多积攒 burst 个。
// Bitfinex 认证接口约 90 次/分钟，IDEX 按 IP 限速，默认值见各自的构造函数。
type TokenBucketLimiter struct {
	perSec float64
	burst  float64
	now    func() time.Time

	mu     sync.Mutex
	avail  float64
	refill time.Time
}

func NewTokenBucketLimiter(perSec float64, burst int) *TokenBucketLimiter {
	if perSec <= 0 {
		perSec = 1
	}
	if burst < 1 {
		burst = 1
	}
	l := &TokenBucketLimiter{perSec: perSec, burst: float64(burst), now: time.Now}
	l.avail = l.burst
	l.refill = l.now()
	return l
}

// take 补充令牌后尝试取一个；失败时返回还需等待的时长。调用方持有锁。
func (l *TokenBucketLimiter) take() time.Duration {
	t := l.now()
	if elapsed := t.Sub(l.refill); elapsed > 0 {
		l.avail = min(l.burst, l.avail+elapsed.Seconds()*l.perSec)
	}
	l.refill = t
	if l.avail >= 1 {
		l.avail--
		return 0
	}
	return time.Duration((1-l.avail)/l.perSec*float64(time.Second)) + time.Millisecond
}

// Allow 不等待，令牌不足直接返回 false。
func (l *TokenBucketLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.take() == 0
}

// Wait 阻塞到拿到令牌；ctx 结束时返回 ctx.Err()，不消耗令牌。
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		wait := l.take()
		l.mu.Unlock()
		if wait == 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
