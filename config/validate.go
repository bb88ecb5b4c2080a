package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ladder-maker-go/order"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if cfg.WalletID == "" {
		return ErrInvalid("walletId is required (or LADDER_WALLET_ID)")
	}
	if cfg.LockTimeout <= 0 {
		return ErrInvalid("lockTimeout must be > 0")
	}
	if cfg.TimerInterval <= 0 {
		return ErrInvalid("timerInterval must be > 0")
	}
	if cfg.SettingsFile == "" {
		return ErrInvalid("settingsFile is required")
	}
	if cfg.Venue.BaseURL == "" {
		return ErrInvalid("venue.baseURL is required")
	}
	if cfg.Venue.Timeout <= 0 {
		return ErrInvalid("venue.timeout must be > 0")
	}
	if cfg.Venue.RateLimit < 0 || cfg.Venue.Burst < 0 {
		return ErrInvalid("venue.rateLimit/burst must be >= 0")
	}
	if cfg.Venue.Timeout >= cfg.LockTimeout {
		// 交易所调用在闸门内进行，必须先于闸门超时返回
		return ErrInvalid("venue.timeout must be < lockTimeout")
	}
	if cfg.Alerts.Throttle < 0 || cfg.Alerts.Timeout < 0 {
		return ErrInvalid("alerts.throttle/timeout must be >= 0")
	}
	if len(cfg.Pairs) == 0 {
		return ErrInvalid("pairs config is required")
	}
	if _, err := cfg.PairInfoProvider(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(cfg.Levels))
	for i, l := range cfg.Levels {
		if l.Name == "" {
			return fmt.Errorf("levels[%d] name is required", i)
		}
		if seen[l.Name] {
			return fmt.Errorf("level %s is duplicated", l.Name)
		}
		seen[l.Name] = true
		if l.Delta < 0 || l.Volume < 0 {
			return fmt.Errorf("level %s delta/volume must be >= 0", l.Name)
		}
	}
	return nil
}

// PairInfoProvider 从 pairs 配置构建交易对精度表。
func (cfg AppConfig) PairInfoProvider() (order.StaticPairInfo, error) {
	res := make(order.StaticPairInfo, len(cfg.Pairs))
	for id, p := range cfg.Pairs {
		info := order.PairInfo{
			AssetPairID:    id,
			PriceAccuracy:  p.PriceAccuracy,
			VolumeAccuracy: p.VolumeAccuracy,
			MinVolume:      decimal.NewFromFloat(p.MinVolume),
			BaseAssetID:    p.BaseAssetID,
			QuoteAssetID:   p.QuoteAssetID,
		}
		if err := info.Validate(); err != nil {
			return nil, fmt.Errorf("pairs: %w", err)
		}
		res[id] = info
	}
	return res, nil
}
