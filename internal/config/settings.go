package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"ladder-maker-go/metrics"
	"ladder-maker-go/order"
)

// ErrEmptySettings 文件为空，多见于编辑器截断后尚未写入的中间状态。
var ErrEmptySettings = errors.New("settings file is empty")

const defaultDebounce = 300 * time.Millisecond

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled  bool          // 是否启用热更新
	Debounce time.Duration // 文件静默多久后才重载，每个新事件重新计时
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:  true,
		Debounce: defaultDebounce,
	}
}

// Settings 运行期交易对配置，对应 settings.yaml。
type Settings struct {
	BaseAssetPair    string                   `yaml:"baseAssetPair"`
	DependentPairs   []DependentPairSettings  `yaml:"dependentPairs"`
	AdditionalVolume AdditionalVolumeSettings `yaml:"additionalVolume"`
}

type DependentPairSettings struct {
	AssetPairID      string  `yaml:"assetPairId"`
	PriceMultiplier  float64 `yaml:"priceMultiplier"`
	VolumeMultiplier float64 `yaml:"volumeMultiplier"`
	Inverted         bool    `yaml:"inverted"`
}

// AdditionalVolumeSettings 梯子外侧追加的深度，Count 为 0 时关闭。
type AdditionalVolumeSettings struct {
	Count     int     `yaml:"count"`
	PriceStep float64 `yaml:"priceStep"`
	Volume    float64 `yaml:"volume"`
}

// Validate 检查交易对配置
func (s Settings) Validate() error {
	seen := map[string]bool{}
	if s.BaseAssetPair != "" {
		seen[s.BaseAssetPair] = true
	}
	for i, dp := range s.DependentPairs {
		if dp.AssetPairID == "" {
			return fmt.Errorf("dependentPairs[%d].assetPairId is required", i)
		}
		if seen[dp.AssetPairID] {
			return fmt.Errorf("asset pair %s is configured twice", dp.AssetPairID)
		}
		seen[dp.AssetPairID] = true
		if dp.PriceMultiplier < 0 || dp.VolumeMultiplier < 0 {
			return fmt.Errorf("dependent pair %s multipliers must be >= 0", dp.AssetPairID)
		}
	}
	av := s.AdditionalVolume
	if av.Count < 0 || av.PriceStep < 0 || av.Volume < 0 {
		return fmt.Errorf("additionalVolume values must be >= 0")
	}
	if av.Count > 0 && (av.PriceStep == 0 || av.Volume == 0) {
		return fmt.Errorf("additionalVolume priceStep and volume must be > 0 when count > 0")
	}
	return nil
}

// LoadSettings 读取并验证 settings 文件
func LoadSettings(path string) (Settings, error) {
	var s Settings
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return s, fmt.Errorf("read settings %s: %w", path, ErrEmptySettings)
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("parse settings yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// SettingsWatcher 监听 settings 文件，变化后整体替换。无效或空的新文件被忽略，保留旧配置。
type SettingsWatcher struct {
	config   HotReloadConfig
	path     string
	watcher  *fsnotify.Watcher
	log      *zap.Logger
	mu       sync.RWMutex
	current  Settings
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewSettingsWatcher 加载初始配置并创建监听器
func NewSettingsWatcher(path string, cfg HotReloadConfig, log *zap.Logger) (*SettingsWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	return &SettingsWatcher{
		config:   cfg,
		path:     filepath.Clean(path),
		watcher:  watcher,
		log:      log,
		current:  s,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start 启动热更新监听。监听所在目录，以便编辑器整体替换文件时也能收到事件。
func (w *SettingsWatcher) Start(ctx context.Context) error {
	if !w.config.Enabled {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch settings dir: %w", err)
	}
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	go w.watch(ctx)
	return nil
}

// Stop 停止热更新
func (w *SettingsWatcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopChan) })

	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()
	if started {
		select {
		case <-w.doneChan:
		case <-time.After(time.Second):
		}
	}
	return w.watcher.Close()
}

// watch 合并连续的写事件：最后一个事件之后静默 Debounce 才重载一次。
func (w *SettingsWatcher) watch(ctx context.Context) {
	defer close(w.doneChan)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.config.Debounce)
			} else {
				timer.Reset(w.config.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				w.log.Error("Failed to reload settings, keep previous", zap.String("path", w.path), zap.Error(err))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("Settings watcher error", zap.Error(err))
		}
	}
}

// Reload 重新读取 settings 文件
func (w *SettingsWatcher) Reload() error {
	s, err := LoadSettings(w.path)
	if err != nil {
		metrics.SettingsReloads.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.SettingsReloads.WithLabelValues("ok").Inc()
	w.mu.Lock()
	prev := w.current
	w.current = s
	w.mu.Unlock()

	w.log.Info("Settings reloaded",
		zap.String("base_pair", s.BaseAssetPair),
		zap.String("previous_base_pair", prev.BaseAssetPair),
		zap.Int("dependent_pairs", len(s.DependentPairs)),
		zap.Int("additional_count", s.AdditionalVolume.Count))
	return nil
}

// Current 当前配置副本
func (w *SettingsWatcher) Current() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := w.current
	s.DependentPairs = append([]DependentPairSettings(nil), w.current.DependentPairs...)
	return s
}

// Path settings 文件路径
func (w *SettingsWatcher) Path() string { return w.path }

// BaseAssetPair 实现 engine.Settings
func (w *SettingsWatcher) BaseAssetPair() (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.BaseAssetPair, w.current.BaseAssetPair != ""
}

// DependentPairs 实现 engine.Settings
func (w *SettingsWatcher) DependentPairs() []order.DependentPairSpec {
	w.mu.RLock()
	defer w.mu.RUnlock()
	res := make([]order.DependentPairSpec, 0, len(w.current.DependentPairs))
	for _, dp := range w.current.DependentPairs {
		res = append(res, order.DependentPairSpec{
			AssetPairID:      dp.AssetPairID,
			PriceMultiplier:  decimal.NewFromFloat(dp.PriceMultiplier),
			VolumeMultiplier: decimal.NewFromFloat(dp.VolumeMultiplier),
			Inverted:         dp.Inverted,
		})
	}
	return res
}

// Orders 按当前配置追加深度，实现 order.AdditionalVolume
func (w *SettingsWatcher) Orders(ctx context.Context, base []order.LimitOrder) ([]order.LimitOrder, error) {
	w.mu.RLock()
	av := w.current.AdditionalVolume
	w.mu.RUnlock()
	return order.DepthAdditionalVolume{
		Count:     av.Count,
		PriceStep: decimal.NewFromFloat(av.PriceStep),
		Volume:    decimal.NewFromFloat(av.Volume),
	}.Orders(ctx, base)
}

var _ order.AdditionalVolume = (*SettingsWatcher)(nil)
