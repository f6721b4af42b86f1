package store

import (
	"context"
	"sync"

	"github.com/kleros/market-maker/inventory"
)

// MemoryStore 只保存在进程内，用于模拟与 dry run。
type MemoryStore struct {
	mu      sync.Mutex
	reserve inventory.Reserve
	ok      bool
	saves   int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// NewMemoryStoreWith 预置一个储备，Bootstrap 会直接使用它。
func NewMemoryStoreWith(r inventory.Reserve) *MemoryStore {
	return &MemoryStore{reserve: r, ok: true}
}

func (s *MemoryStore) Load(context.Context) (inventory.Reserve, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserve, s.ok, nil
}

func (s *MemoryStore) Save(_ context.Context, r inventory.Reserve) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserve, s.ok = r, true
	s.saves++
	return nil
}

// Saves 返回 Save 调用次数。
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error { return nil }
