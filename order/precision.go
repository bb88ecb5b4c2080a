package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RoundPrice 按交易对价格精度四舍五入。
func (p PairInfo) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return price.Round(p.PriceAccuracy)
}

// RoundVolume 按数量精度四舍五入，返回非负数量。
func (p PairInfo) RoundVolume(volume decimal.Decimal) decimal.Decimal {
	return volume.Abs().Round(p.VolumeAccuracy)
}

// BelowMinVolume 判断取整后的数量是否低于最小下单量。
func (p PairInfo) BelowMinVolume(volume decimal.Decimal) bool {
	if !p.MinVolume.IsPositive() {
		return false
	}
	return p.RoundVolume(volume).LessThan(p.MinVolume)
}

// Validate 检查精度配置。
func (p PairInfo) Validate() error {
	if p.AssetPairID == "" {
		return fmt.Errorf("asset pair id is required")
	}
	if p.PriceAccuracy < 0 {
		return fmt.Errorf("pair %s priceAccuracy %d must be >= 0", p.AssetPairID, p.PriceAccuracy)
	}
	if p.VolumeAccuracy < 0 {
		return fmt.Errorf("pair %s volumeAccuracy %d must be >= 0", p.AssetPairID, p.VolumeAccuracy)
	}
	if p.MinVolume.IsNegative() {
		return fmt.Errorf("pair %s minVolume %s must be >= 0", p.AssetPairID, p.MinVolume)
	}
	return nil
}

// StaticPairInfo 固定的交易对元数据表，便于测试与简单部署。
type StaticPairInfo map[string]PairInfo

// PairInfo 实现 PairInfoProvider。
func (s StaticPairInfo) PairInfo(assetPairID string) (PairInfo, error) {
	info, ok := s[assetPairID]
	if !ok {
		return PairInfo{}, fmt.Errorf("pair %s: %w", assetPairID, ErrUnknownPair)
	}
	return info, nil
}
