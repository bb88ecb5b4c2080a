package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ladder-maker-go/infrastructure/logger"
	"ladder-maker-go/internal/store"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env           string        `yaml:"env"`
	WalletID      string        `yaml:"walletId"`
	LockTimeout   time.Duration `yaml:"lockTimeout"`
	TimerInterval time.Duration `yaml:"timerInterval"`
	// SettingsFile 运行期可热更新的交易对配置
	SettingsFile string                `yaml:"settingsFile"`
	MetricsAddr  string                `yaml:"metricsAddr"`
	Venue        VenueConfig           `yaml:"venue"`
	Feed         FeedConfig            `yaml:"feed"`
	Storage      StorageConfig         `yaml:"storage"`
	Log          logger.Config         `yaml:"log"`
	Alerts       AlertConfig           `yaml:"alerts"`
	Pairs        map[string]PairConfig `yaml:"pairs"`
	Levels       []LevelConfig         `yaml:"levels"`
}

type VenueConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	APIKey    string        `yaml:"apiKey"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rateLimit"` // 每秒请求数
	Burst     int           `yaml:"burst"`
}

type FeedConfig struct {
	URL            string        `yaml:"url"`
	PingInterval   time.Duration `yaml:"pingInterval"`
	ReconnectDelay time.Duration `yaml:"reconnectDelay"`
}

// AlertConfig 运维告警；webhookURL 为空时只写日志。
type AlertConfig struct {
	WebhookURL string        `yaml:"webhookURL"`
	Throttle   time.Duration `yaml:"throttle"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StorageConfig 未配置 redis.addr / postgres.dsn 时使用进程内存储。
type StorageConfig struct {
	Redis    store.RedisConfig    `yaml:"redis"`
	Postgres store.PostgresConfig `yaml:"postgres"`
}

// PairConfig 交易对精度（来自资产服务）。
type PairConfig struct {
	PriceAccuracy  int32   `yaml:"priceAccuracy"`
	VolumeAccuracy int32   `yaml:"volumeAccuracy"`
	MinVolume      float64 `yaml:"minVolume"`
	BaseAssetID    string  `yaml:"baseAssetId"`
	QuoteAssetID   string  `yaml:"quoteAssetId"`
}

// LevelConfig 档位仓库为空时用于初始化梯子。
type LevelConfig struct {
	Name   string  `yaml:"name"`
	Delta  float64 `yaml:"delta"`
	Volume float64 `yaml:"volume"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("LADDER_WALLET_ID"); v != "" {
		cfg.WalletID = v
	}
	if v := os.Getenv("LADDER_VENUE_API_KEY"); v != "" {
		cfg.Venue.APIKey = v
	}
	if v := os.Getenv("LADDER_REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv("LADDER_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	return cfg, Validate(cfg)
}

func read(path string) (AppConfig, error) {
	cfg := defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

func defaults() AppConfig {
	return AppConfig{
		LockTimeout:   30 * time.Second,
		TimerInterval: 5 * time.Second,
		Venue: VenueConfig{
			Timeout:   10 * time.Second,
			RateLimit: 5,
			Burst:     5,
		},
		Feed: FeedConfig{
			PingInterval:   15 * time.Second,
			ReconnectDelay: 3 * time.Second,
		},
		Alerts: AlertConfig{
			Throttle: 5 * time.Minute,
			Timeout:  5 * time.Second,
		},
		Log: logger.DefaultConfig(),
	}
}
