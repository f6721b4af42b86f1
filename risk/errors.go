package risk

import "errors"

var (
	// ErrInvariantDecreased 表示成交后 k 低于容忍下限，属于致命错误。
	ErrInvariantDecreased = errors.New("invariant decreased")
	// ErrKillSwitch 表示成交次数或连续异常次数超过上限。
	ErrKillSwitch = errors.New("kill switch triggered")
)
