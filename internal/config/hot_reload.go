package config

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	appcfg "github.com/kleros/market-maker/config"
	"github.com/kleros/market-maker/infrastructure/logger"
	"github.com/kleros/market-maker/strategy"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	PollInterval time.Duration // 目录无法监听时的轮询间隔
	Debounce     time.Duration // 最后一次写事件之后等待多久再读取，合并编辑器的连续写入
}

func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{PollInterval: 2 * time.Second, Debounce: 300 * time.Millisecond}
}

// LadderApplier 接收新的阶梯参数，engine.TradingEngine 实现该接口。
type LadderApplier interface {
	SetParams(ctx context.Context, cfg strategy.EngineConfig) error
}

// ReloadStats 热更新计数
type ReloadStats struct {
	Reloads  int
	Failures int
	Last     time.Time
}

// HotReloader 只把 ladder 段的变化应用到运行中的引擎。
// 密钥、存储、交易所等其他段的修改需要重启进程。
type HotReloader struct {
	cfg     HotReloadConfig
	path    string
	applier LadderApplier
	log     *logger.Logger

	mu      sync.Mutex
	current appcfg.LadderConfig
	stats   ReloadStats
}

// NewHotReloader initial 为进程启动时生效的阶梯参数。
func NewHotReloader(path string, cfg HotReloadConfig, initial appcfg.LadderConfig, applier LadderApplier, log *logger.Logger) (*HotReloader, error) {
	if applier == nil {
		return nil, errors.New("hot reload: ladder applier is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultHotReloadConfig().PollInterval
	}
	return &HotReloader{
		cfg:     cfg,
		path:    filepath.Clean(path),
		applier: applier,
		log:     log.Named("hot_reload"),
		current: initial,
	}, nil
}

// Run 阻塞直到 ctx 结束。监听配置文件所在目录，rename 方式保存的文件也能被捕获；
// 目录无法监听时退化为 config.Watcher 轮询。
func (h *HotReloader) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err == nil {
		if err = fw.Add(filepath.Dir(h.path)); err != nil {
			fw.Close()
		}
	}
	if err != nil {
		h.log.Warn("fsnotify unavailable, polling config", zap.Error(err))
		w := appcfg.Watcher{Path: h.path, Interval: h.cfg.PollInterval, OnError: h.reject}
		err := w.Start(ctx, func(cfg appcfg.AppConfig) { _, _ = h.apply(ctx, cfg.Ladder) })
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer fw.Close()

	// 未触发时为 nil，select 永远不会选中
	var fire <-chan time.Time
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != h.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(h.cfg.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(h.cfg.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			_, _ = h.Reload(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			h.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// Reload 立即重新读取配置文件并应用阶梯参数，返回是否有变化。
func (h *HotReloader) Reload(ctx context.Context) (bool, error) {
	cfg, err := appcfg.LoadWithEnvOverrides(h.path)
	if err != nil {
		h.reject(err)
		return false, err
	}
	return h.apply(ctx, cfg.Ladder)
}

func (h *HotReloader) apply(ctx context.Context, ladder appcfg.LadderConfig) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if reflect.DeepEqual(h.current, ladder) {
		return false, nil
	}
	if err := h.applier.SetParams(ctx, ladder.EngineConfig()); err != nil {
		h.stats.Failures++
		h.log.Error("apply ladder params failed", zap.Error(err))
		return false, err
	}
	h.current = ladder
	h.stats.Reloads++
	h.stats.Last = time.Now()
	h.log.Info("ladder params reloaded",
		zap.String("model", string(ladder.Model)),
		zap.Int("steps", ladder.Steps),
		zap.Stringer("size", ladder.SizePerStep))
	return true, nil
}

func (h *HotReloader) reject(err error) {
	h.mu.Lock()
	h.stats.Failures++
	h.mu.Unlock()
	h.log.Error("config reload rejected", zap.Error(err))
}

// Current 返回当前生效的阶梯参数。
func (h *HotReloader) Current() appcfg.LadderConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *HotReloader) Stats() ReloadStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
