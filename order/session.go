package order

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxClientID 是交易所接受的客户端订单号上限（2^45）。
const maxClientID int64 = 1 << 45

// Session 持有一次交易会话的订单编号状态，替代全局计数器。
type Session struct {
	ID string

	mu   sync.Mutex
	next int64
}

// NewSession 以随机起点创建会话，避免重启后与当天已用的 cid 冲突。
func NewSession() *Session {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return NewSessionFrom(r.Int63n(maxClientID))
}

// NewSessionFrom 以固定起点创建会话，便于测试。
func NewSessionFrom(start int64) *Session {
	if start < 0 {
		start = 0
	}
	return &Session{ID: uuid.New().String(), next: start % maxClientID}
}

// NextClientID 返回下一个客户端订单号，超过上限后回绕。
func (s *Session) NextClientID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next = (s.next + 1) % maxClientID
	return id
}

// Assign 为订单分配内部 ID 和客户端订单号。
func (s *Session) Assign(o *Order) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.ClientID == 0 {
		o.ClientID = s.NextClientID()
	}
}
