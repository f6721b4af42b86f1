package config

import "fmt"

// ValidateLadder 检查可热更新的阶梯参数，不依赖当前储备。
func ValidateLadder(l LadderConfig) error {
	if err := l.EngineConfig().Validate(); err != nil {
		return ErrInvalid(fmt.Sprintf("ladder: %v", err))
	}
	return nil
}

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }
