package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/kleros/market-maker/inventory"
)

// ErrUnknownDriver 表示配置了不支持的持久化后端。
var ErrUnknownDriver = errors.New("unknown reserve store driver")

// ReserveStore 持久化虚拟储备，保证重启后从上次成交后的状态继续。
type ReserveStore interface {
	// Load 读取最近一次保存的储备，不存在时 ok 为 false。
	Load(ctx context.Context) (r inventory.Reserve, ok bool, err error)
	Save(ctx context.Context, r inventory.Reserve) error
	Close() error
}

// Config 选择持久化后端。
type Config struct {
	Driver string `yaml:"driver"` // file | postgres | memory
	Path   string `yaml:"path"`   // file: 储备文件路径
	DSN    string `yaml:"dsn"`    // postgres: 连接串
	Pair   string `yaml:"pair"`   // postgres: 同库多交易对时区分
}

// DefaultConfig 与旧版本保持一致，写到工作目录下的储备文件。
func DefaultConfig() Config {
	return Config{Driver: "file", Path: "ethfinex_reserve.txt", Pair: "PNKETH"}
}

// Open 根据配置打开储备存储。
func Open(ctx context.Context, cfg Config) (ReserveStore, error) {
	switch cfg.Driver {
	case "", "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file store: empty path")
		}
		return NewFileStore(cfg.Path), nil
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN, cfg.Pair)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
