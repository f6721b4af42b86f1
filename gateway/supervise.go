package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kleros/market-maker/infrastructure/logger"
	"github.com/kleros/market-maker/metrics"
)

// SupervisePolicy 控制会话断开后的重连。
type SupervisePolicy struct {
	MaxRestarts int           // 连续重启上限，0 表示不限
	Backoff     time.Duration // 普通错误后的等待
	ResetAfter  time.Duration // 会话存活超过该时间后清零重启计数
}

// DefaultSupervise 与旧版行为一致：出错 10s 后重连，1001 立即重连。
var DefaultSupervise = SupervisePolicy{MaxRestarts: 10, Backoff: 10 * time.Second, ResetAfter: 5 * time.Minute}

// Supervise 反复执行 run，直到 ctx 结束、遇到不可重试错误或超过重启上限。
func Supervise(ctx context.Context, p SupervisePolicy, log *logger.Logger, run func(ctx context.Context) error) error {
	if log == nil {
		log = logger.NewNop()
	}
	restarts := 0
	for {
		start := time.Now()
		err := run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("session ended")
		}
		if IsPermanent(err) {
			return err
		}
		if p.ResetAfter > 0 && time.Since(start) >= p.ResetAfter {
			restarts = 0
		}
		restarts++
		if p.MaxRestarts > 0 && restarts > p.MaxRestarts {
			return fmt.Errorf("giving up after %d restarts: %w", p.MaxRestarts, err)
		}
		metrics.WsReconnects.Inc()

		wait := p.Backoff
		if errors.Is(err, ErrGoingAway) {
			wait = 0
		}
		log.Warn("session restart", zap.Error(err), zap.Int("restart", restarts), zap.Duration("wait", wait))
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}
	}
}
