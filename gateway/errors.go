package gateway

import "errors"

var (
	// ErrNotConnected 表示 WebSocket 会话尚未建立或已经断开。
	ErrNotConnected = errors.New("gateway not connected")
	// ErrHeartbeatTimeout 表示超过心跳超时未收到任何消息，进程应退出由外部拉起。
	ErrHeartbeatTimeout = errors.New("websocket heartbeat timeout")
	// ErrAuthFailed 表示交易所拒绝了认证，重试没有意义。
	ErrAuthFailed = errors.New("websocket authentication failed")
	// ErrGoingAway 表示服务端以 1001 关闭连接，可以立即重连。
	ErrGoingAway = errors.New("websocket going away")
	// ErrBadResponse 表示 REST 返回了无法解析或非预期的内容。
	ErrBadResponse = errors.New("unexpected exchange response")
)

// Permanent 包装一个不应重试的错误。
type Permanent struct{ Err error }

func (p Permanent) Error() string { return p.Err.Error() }
func (p Permanent) Unwrap() error { return p.Err }

// IsPermanent 判断错误是否不应重试。
func IsPermanent(err error) bool {
	var p Permanent
	return errors.As(err, &p) || errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrHeartbeatTimeout)
}
