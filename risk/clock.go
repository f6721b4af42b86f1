package risk

import "time"

// Clock 抽象时间便于测试。
type Clock interface {
	Now() time.Time
}

// ClockFunc 把函数适配为 Clock。
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// NowUTC 默认使用 UTC 时间。
var NowUTC Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
