package alert

import (
	"fmt"
	"sync"
	"time"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// 引擎与风控发出的告警类型
const (
	TypeStarted            = "Started"
	TypeStopped            = "Stopped"
	TypeKillSwitch         = "KillSwitch"
	TypeInvariantViolation = "InvariantViolation"
	TypeAnomalousFill      = "AnomalousFill"
	TypeReconcile          = "Reconcile"
)

// Alert 一条告警。Fields 会原样出现在日志与 webhook 文本中。
type Alert struct {
	Level     Level
	Type      string
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// key 是限流维度：同一类型的告警共享窗口，消息内容（例如对账计数）不同也会被合并。
func (a Alert) key() string {
	if a.Type != "" {
		return string(a.Level) + ":" + a.Type
	}
	return string(a.Level) + ":" + a.Message
}

// Channel 告警通道
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 同一个 key 在 interval 内只放行一次，并记录期间被压下的条数。
type Throttler struct {
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastSent   map[string]time.Time
	suppressed map[string]int
}

func NewThrottler(interval time.Duration) *Throttler {
	t := &Throttler{interval: interval, now: time.Now}
	t.Clear()
	return t
}

// Allow 只关心是否放行。
func (t *Throttler) Allow(key string) bool {
	ok, _ := t.Pass(key)
	return ok
}

// Pass 放行时返回上一窗口内被压下的条数并清零。
func (t *Throttler) Pass(key string) (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, seen := t.lastSent[key]; seen && now.Sub(last) < t.interval {
		t.suppressed[key]++
		return false, 0
	}
	t.lastSent[key] = now
	n := t.suppressed[key]
	delete(t.suppressed, key)
	return true, n
}

// Clear 清空窗口与计数。
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
	t.suppressed = make(map[string]int)
}

// Manager 把告警分发到所有通道。CRITICAL 不限流。
type Manager struct {
	throttle *Throttler

	mu       sync.RWMutex
	channels []Channel
}

func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{channels: channels, throttle: NewThrottler(throttleInterval)}
}

// SendAlert 只有全部通道都失败时返回错误。
func (m *Manager) SendAlert(a Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if a.Level != LevelCritical {
		ok, dropped := m.throttle.Pass(a.key())
		if !ok {
			return nil
		}
		if dropped > 0 {
			fields := make(map[string]interface{}, len(a.Fields)+1)
			for k, v := range a.Fields {
				fields[k] = v
			}
			fields["suppressed"] = dropped
			a.Fields = fields
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var lastErr error
	delivered := 0
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			lastErr = fmt.Errorf("alert channel %s: %w", ch.Name(), err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return lastErr
	}
	return nil
}

// Send 按类型决定级别，错误被丢弃。risk.Notifier 通过它发告警。
func (m *Manager) Send(typ, msg string) {
	_ = m.SendAlert(Alert{Level: LevelFor(typ), Type: typ, Message: msg})
}

// Notify 带附加字段发送，返回投递错误。
func (m *Manager) Notify(typ, msg string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelFor(typ), Type: typ, Message: msg, Fields: fields})
}

// LevelFor 返回告警类型对应的级别，未知类型按 ERROR 处理。
func LevelFor(typ string) Level {
	switch typ {
	case TypeKillSwitch, TypeInvariantViolation:
		return LevelCritical
	case TypeAnomalousFill, TypeReconcile:
		return LevelWarning
	case TypeStarted, TypeStopped:
		return LevelInfo
	}
	return LevelError
}

func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Channels 返回通道名称。
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.channels))
	for i, ch := range m.channels {
		names[i] = ch.Name()
	}
	return names
}

func (m *Manager) ResetThrottle() { m.throttle.Clear() }
