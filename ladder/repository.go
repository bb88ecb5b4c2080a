package ladder

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// State 是 Level 的持久化快照。
type State struct {
	Name              string          `json:"name"`
	Delta             decimal.Decimal `json:"delta"`
	OriginalVolume    decimal.Decimal `json:"originalVolume"`
	Seeded            bool            `json:"seeded"`
	Reference         decimal.Decimal `json:"reference"`
	VolumeSell        decimal.Decimal `json:"volumeSell"`
	VolumeBuy         decimal.Decimal `json:"volumeBuy"`
	Inventory         decimal.Decimal `json:"inventory"`
	OppositeInventory decimal.Decimal `json:"oppositeInventory"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Repository 档位配置与状态的持久化。
type Repository interface {
	List(ctx context.Context) ([]State, error)
	Add(ctx context.Context, s State) error
	Delete(ctx context.Context, name string) error
	UpdateSettings(ctx context.Context, name string, delta, volume decimal.Decimal) error
	SaveStates(ctx context.Context, states []State) error
}

// Snapshot 导出当前状态。
func (l *Level) Snapshot() State {
	return State{
		Name:              l.Name,
		Delta:             l.Delta,
		OriginalVolume:    l.OriginalVolume,
		Seeded:            l.seeded,
		Reference:         l.Reference,
		VolumeSell:        l.VolumeSell,
		VolumeBuy:         l.VolumeBuy,
		Inventory:         l.Inventory,
		OppositeInventory: l.OppositeInventory,
		UpdatedAt:         l.UpdatedAt,
	}
}

// FromState 从快照恢复。容量被截断到档量以内，符号按侧规范。
func FromState(s State) (*Level, error) {
	l, err := NewLevel(s.Name, s.Delta, s.OriginalVolume)
	if err != nil {
		return nil, err
	}
	if s.Seeded {
		l.seeded = true
		l.setReference(s.Reference)
	}
	l.VolumeSell = clampCapacity(s.VolumeSell.Abs(), l.OriginalVolume).Neg()
	l.VolumeBuy = clampCapacity(s.VolumeBuy.Abs(), l.OriginalVolume)
	l.Inventory = s.Inventory
	l.OppositeInventory = s.OppositeInventory
	l.UpdatedAt = s.UpdatedAt
	return l, nil
}

func clampCapacity(v, max decimal.Decimal) decimal.Decimal {
	if v.GreaterThan(max) {
		return max
	}
	return v
}
