package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/inventory"
)

// fileRecord 是储备文件的 JSON 结构。eth/pnk 是旧版本写入的字段名。
type fileRecord struct {
	Base  *decimal.Decimal `json:"base,omitempty"`
	Quote *decimal.Decimal `json:"quote,omitempty"`
	PNK   *decimal.Decimal `json:"pnk,omitempty"`
	ETH   *decimal.Decimal `json:"eth,omitempty"`
}

// FileStore 把储备写成单个 JSON 文件。写入先落到临时文件再 rename，
// 进程在写入中途退出也不会留下半个文件。
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (inventory.Reserve, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return inventory.Reserve{}, false, nil
	}
	if err != nil {
		return inventory.Reserve{}, false, fmt.Errorf("read reserve file: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return inventory.Reserve{}, false, fmt.Errorf("decode reserve file %s: %w", s.path, err)
	}
	base, quote := rec.Base, rec.Quote
	if base == nil {
		base = rec.PNK
	}
	if quote == nil {
		quote = rec.ETH
	}
	if base == nil || quote == nil {
		return inventory.Reserve{}, false, fmt.Errorf("reserve file %s: missing base or quote", s.path)
	}
	r, err := inventory.NewReserve(*base, *quote)
	if err != nil {
		return inventory.Reserve{}, false, fmt.Errorf("reserve file %s: %w", s.path, err)
	}
	return r, true, nil
}

func (s *FileStore) Save(_ context.Context, r inventory.Reserve) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(fileRecord{Base: &r.Base, Quote: &r.Quote})
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".reserve-*")
	if err != nil {
		return fmt.Errorf("create temp reserve file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write reserve file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync reserve file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace reserve file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
