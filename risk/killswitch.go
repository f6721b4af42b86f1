package risk

import (
	"fmt"
	"sync"
)

// KillSwitch 统计成交：总成交数超过 MaxFills，或连续异常成交超过
// MaxConsecutiveAnomalies 时返回 ErrKillSwitch。上限为 0 表示不限制。
type KillSwitch struct {
	MaxFills                int
	MaxConsecutiveAnomalies int

	mu      sync.Mutex
	fills   int
	streak  int
	tripped bool
}

func NewKillSwitch(maxFills, maxAnomalies int) *KillSwitch {
	return &KillSwitch{MaxFills: maxFills, MaxConsecutiveAnomalies: maxAnomalies}
}

// Record 记录一笔已应用的成交。一旦触发，后续调用都会返回错误。
func (k *KillSwitch) Record(anomalous bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.fills++
	if anomalous {
		k.streak++
	} else {
		k.streak = 0
	}
	if k.MaxFills > 0 && k.fills > k.MaxFills {
		k.tripped = true
	}
	if k.MaxConsecutiveAnomalies > 0 && k.streak > k.MaxConsecutiveAnomalies {
		k.tripped = true
	}
	if k.tripped {
		return fmt.Errorf("%w: fills=%d consecutive anomalies=%d", ErrKillSwitch, k.fills, k.streak)
	}
	return nil
}

// Tripped 返回是否已触发。
func (k *KillSwitch) Tripped() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tripped
}

// Fills 返回已记录的成交数。
func (k *KillSwitch) Fills() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.fills
}
