package config

import (
	"context"
	"os"
	"time"
)

// Watcher 轮询文件修改时间，变化时重新加载并回调。
// 在 inotify 不可用的文件系统（NFS、部分容器挂载）上作为热更新的回退。
type Watcher struct {
	Path     string
	Interval time.Duration
	// Load 为空时使用 LoadWithEnvOverrides
	Load func(path string) (AppConfig, error)
	// OnError 接收加载失败的错误，为空则忽略
	OnError func(error)
}

// Start 阻塞直到 ctx 结束。启动时的文件版本视为已加载，不会触发回调；
// 修改时间发生任何变化（包括回退到旧文件）都会重新加载。
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Interval <= 0 {
		w.Interval = 2 * time.Second
	}
	load := w.Load
	if load == nil {
		load = LoadWithEnvOverrides
	}
	var seen time.Time
	if info, err := statFile(w.Path); err == nil {
		seen = info.ModTime()
	}

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		info, err := statFile(w.Path)
		if err != nil || info.ModTime().Equal(seen) {
			continue
		}
		seen = info.ModTime()
		cfg, err := load(w.Path)
		if err != nil {
			if w.OnError != nil {
				w.OnError(err)
			}
			continue
		}
		if onUpdate != nil {
			onUpdate(cfg)
		}
	}
}

// statFile 可在测试中替换。
var statFile = func(path string) (interface{ ModTime() time.Time }, error) {
	return os.Stat(path)
}
