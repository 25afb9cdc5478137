package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback 配置重载成功后的通知回调
type ReloadCallback func(oldConfig, newConfig *Config)

// Reloader 配置文件热重载器
// 以轮询修改时间的方式监听配置文件,重载失败时保留当前配置。
type Reloader struct {
	loader   *Loader
	path     string
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	current   *Config
	version   int
	callbacks []ReloadCallback
	lastMod   time.Time

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// ReloaderOption Reloader 可选配置
type ReloaderOption func(*Reloader)

// WithReloadInterval 设置轮询间隔
func WithReloadInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithReloaderLogger 设置日志记录器
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReloader 创建重载器并执行首次加载
func NewReloader(path string, opts ...ReloaderOption) (*Reloader, error) {
	r := &Reloader{
		loader:   NewLoader().WithConfigPath(path),
		path:     path,
		interval: 5 * time.Second,
		logger:   zap.NewNop(),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "config_reloader"))

	cfg, err := r.loader.Load()
	if err != nil {
		return nil, fmt.Errorf("config: initial load: %w", err)
	}
	r.current = cfg
	r.version = 1

	if info, err := os.Stat(path); err == nil {
		r.lastMod = info.ModTime()
	}
	return r, nil
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Version 返回配置版本号,每次成功重载递增
func (r *Reloader) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// OnReload 注册重载成功回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Start 启动轮询,重复调用返回错误
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("config: reloader already running")
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.pollLoop(ctx)
	return nil
}

// Stop 停止轮询并等待退出
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()
}

// pollLoop 按间隔比对文件修改时间,变更时触发重载
func (r *Reloader) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			info, err := os.Stat(r.path)
			if err != nil {
				continue
			}
			r.mu.RLock()
			changed := info.ModTime().After(r.lastMod)
			r.mu.RUnlock()
			if !changed {
				continue
			}
			// 重载失败时不推进 lastMod,下一轮继续重试
			if err := r.Reload(); err != nil {
				r.logger.Error("config reload failed, keeping current config", zap.Error(err))
			}
		}
	}
}

// Reload 立即重载配置文件,成功后通知全部回调并刷新修改时间基准
func (r *Reloader) Reload() error {
	newCfg, err := r.loader.Load()
	if err != nil {
		return err
	}
	info, statErr := os.Stat(r.path)

	r.mu.Lock()
	oldCfg := r.current
	r.current = newCfg
	r.version++
	version := r.version
	if statErr == nil {
		r.lastMod = info.ModTime()
	}
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	r.logger.Info("config reloaded",
		zap.Int("version", version),
		zap.String("path", r.path))

	for _, cb := range callbacks {
		cb(oldCfg, newCfg)
	}
	return nil
}
