package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kleros/market-maker/infrastructure/logger"
)

// LogChannel 把告警写入结构化日志
type LogChannel struct {
	log  *logger.Logger
	name string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, log *logger.Logger) *LogChannel {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogChannel{log: log.Named("alert"), name: name}
}

func (c *LogChannel) Send(a Alert) error {
	fields := []zap.Field{
		zap.String("level", string(a.Level)),
		zap.String("type", a.Type),
		zap.Time("ts", a.Timestamp),
	}
	for _, k := range sortedKeys(a.Fields) {
		fields = append(fields, zap.Any(k, a.Fields[k]))
	}
	lvl := zapcore.WarnLevel
	if a.Level == LevelInfo {
		lvl = zapcore.InfoLevel
	} else if a.Level == LevelError || a.Level == LevelCritical {
		lvl = zapcore.ErrorLevel
	}
	c.log.Log(lvl, a.Message, fields...)
	return nil
}

func (c *LogChannel) Name() string { return c.name }

// WebhookChannel 以 {"text": "..."} POST 到 Slack 兼容的 webhook
type WebhookChannel struct {
	name   string
	url    string
	client *http.Client
}

// NewWebhookChannel 创建 webhook 通道
func NewWebhookChannel(name, url string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookChannel{name: name, url: url, client: client}
}

func (c *WebhookChannel) Send(a Alert) error {
	body, err := json.Marshal(map[string]string{"text": Format(a)})
	if err != nil {
		return err
	}
	resp, err := c.client.Post(c.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func (c *WebhookChannel) Name() string { return c.name }

// Format 生成一行文本，字段按 key 排序。
func Format(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", a.Level)
	if a.Type != "" {
		fmt.Fprintf(&b, " %s:", a.Type)
	}
	b.WriteString(" " + a.Message)
	for _, k := range sortedKeys(a.Fields) {
		fmt.Fprintf(&b, " %s=%v", k, a.Fields[k])
	}
	return b.String()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MockChannel 模拟告警通道（用于测试）
type MockChannel struct {
	name      string
	mu        sync.Mutex
	alerts    []Alert
	shouldErr bool
}

// NewMockChannel 创建模拟告警通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

func (c *MockChannel) Send(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *MockChannel) Name() string { return c.name }

// GetAlerts 获取所有接收到的告警
func (c *MockChannel) GetAlerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

// SetShouldError 设置是否返回错误
func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldErr = shouldErr
}

// Count 返回接收到的告警数量
func (c *MockChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}
