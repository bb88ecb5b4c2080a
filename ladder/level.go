package ladder

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Level 梯子上的一档：围绕自己的参考价挂一买一卖。
//
// 容量带符号：VolumeSell <= 0，其绝对值为剩余可卖量；VolumeBuy >= 0 为剩余可买量。
// 某一侧被整档吃掉后，参考价移到成交价并重新补满。
type Level struct {
	Name           string
	Delta          decimal.Decimal
	OriginalVolume decimal.Decimal

	Reference decimal.Decimal
	Buy       decimal.Decimal
	Sell      decimal.Decimal

	VolumeSell decimal.Decimal
	VolumeBuy  decimal.Decimal

	Inventory         decimal.Decimal
	OppositeInventory decimal.Decimal

	UpdatedAt time.Time

	seeded bool
}

// Execution 描述一次 ApplyFill 在本档的结果。
type Execution struct {
	Level  string
	Price  decimal.Decimal
	Volume decimal.Decimal // 本档吸收的带符号数量
	Full   bool            // 整档成交并上移参考价
}

// NewLevel 创建一档，容量为满档，参考价未设置。
func NewLevel(name string, delta, volume decimal.Decimal) (*Level, error) {
	if name == "" {
		return nil, fmt.Errorf("level name is required")
	}
	if delta.IsNegative() {
		return nil, fmt.Errorf("level %s delta %s must be >= 0", name, delta)
	}
	if volume.IsNegative() {
		return nil, fmt.Errorf("level %s volume %s must be >= 0", name, volume)
	}
	l := &Level{
		Name:           name,
		Delta:          delta,
		OriginalVolume: volume,
	}
	l.rearm()
	return l, nil
}

// Seeded 参考价是否已设置。
func (l Level) Seeded() bool {
	return l.seeded
}

// Active 是否参与报价与成交分配。
func (l Level) Active() bool {
	return l.seeded && l.OriginalVolume.IsPositive()
}

// Seed 仅在未设置参考价时设置，返回是否生效。
func (l *Level) Seed(price decimal.Decimal) bool {
	if l.seeded {
		return false
	}
	l.seeded = true
	l.setReference(price)
	return true
}

// ApplyFill 把带符号成交量记到本档，返回本档吸收不了的剩余量。
// 负数为卖出，正数为买入。
func (l *Level) ApplyFill(volume decimal.Decimal) (decimal.Decimal, Execution) {
	switch volume.Sign() {
	case -1:
		return l.applySell(volume)
	case 1:
		return l.applyBuy(volume)
	default:
		return decimal.Zero, Execution{Level: l.Name}
	}
}

func (l *Level) applySell(volume decimal.Decimal) (decimal.Decimal, Execution) {
	price := l.Sell
	if volume.LessThanOrEqual(l.VolumeSell) {
		absorbed := l.VolumeSell
		l.book(absorbed, price)
		l.ratchet(price)
		return volume.Sub(absorbed), Execution{Level: l.Name, Price: price, Volume: absorbed, Full: true}
	}
	l.VolumeSell = l.VolumeSell.Sub(volume)
	l.book(volume, price)
	return decimal.Zero, Execution{Level: l.Name, Price: price, Volume: volume}
}

func (l *Level) applyBuy(volume decimal.Decimal) (decimal.Decimal, Execution) {
	price := l.Buy
	if volume.GreaterThanOrEqual(l.VolumeBuy) {
		absorbed := l.VolumeBuy
		l.book(absorbed, price)
		l.ratchet(price)
		return volume.Sub(absorbed), Execution{Level: l.Name, Price: price, Volume: absorbed, Full: true}
	}
	l.VolumeBuy = l.VolumeBuy.Sub(volume)
	l.book(volume, price)
	return decimal.Zero, Execution{Level: l.Name, Price: price, Volume: volume}
}

func (l *Level) book(volume, price decimal.Decimal) {
	l.Inventory = l.Inventory.Add(volume)
	l.OppositeInventory = l.OppositeInventory.Sub(volume.Mul(price))
	l.UpdatedAt = time.Now().UTC()
}

// ratchet 把参考价移到刚成交的价格并补满两侧容量。
func (l *Level) ratchet(price decimal.Decimal) {
	l.setReference(price)
	l.rearm()
}

// UpdateSettings 修改档距与档量，参考价不变，容量按新档量补满。
func (l *Level) UpdateSettings(delta, volume decimal.Decimal) error {
	if delta.IsNegative() {
		return fmt.Errorf("level %s delta %s must be >= 0", l.Name, delta)
	}
	if volume.IsNegative() {
		return fmt.Errorf("level %s volume %s must be >= 0", l.Name, volume)
	}
	l.Delta = delta
	l.OriginalVolume = volume
	if l.seeded {
		l.setReference(l.Reference)
	}
	l.rearm()
	return nil
}

func (l *Level) setReference(price decimal.Decimal) {
	l.Reference = price
	l.Buy = price.Sub(l.Delta)
	l.Sell = price.Add(l.Delta)
	l.UpdatedAt = time.Now().UTC()
}

func (l *Level) rearm() {
	l.VolumeSell = l.OriginalVolume.Neg()
	l.VolumeBuy = l.OriginalVolume
}

// Clone 返回副本。
func (l *Level) Clone() Level {
	return *l
}
