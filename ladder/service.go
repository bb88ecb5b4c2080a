package ladder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ladder-maker-go/infrastructure/logger"
	"ladder-maker-go/order"
)

var (
	ErrLevelExists   = errors.New("level already exists")
	ErrLevelNotFound = errors.New("level not found")
)

// Service 持有全部档位：增删改、设置参考价、持久化快照、生成订单集。
type Service struct {
	repo Repository
	log  *zap.Logger

	// persist 串行化所有仓库写入，快照与写入之间不会插入删除
	persist sync.Mutex

	mu     sync.RWMutex
	levels map[string]*Level

	seedPrice decimal.Decimal
	seeded    bool
}

func NewService(repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		log:    log,
		levels: make(map[string]*Level),
	}
}

// Start 从仓库恢复档位，必须在任何参考价设置之前调用。
func (s *Service) Start(ctx context.Context) error {
	states, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load levels: %w", err)
	}
	levels := make(map[string]*Level, len(states))
	for _, st := range states {
		l, err := FromState(st)
		if err != nil {
			return fmt.Errorf("restore level %s: %w", st.Name, err)
		}
		levels[l.Name] = l
	}

	s.mu.Lock()
	s.levels = levels
	s.mu.Unlock()

	s.log.Info("Levels restored", zap.Int("count", len(levels)))
	return nil
}

// Add 新增一档；名称重复返回 ErrLevelExists。
// 梯子已设置过参考价时，新档用最近一次的初始价设置。
func (s *Service) Add(ctx context.Context, name string, delta, volume decimal.Decimal) error {
	l, err := NewLevel(name, delta, volume)
	if err != nil {
		return err
	}

	s.persist.Lock()
	defer s.persist.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.levels[name]; ok {
		return fmt.Errorf("add %s: %w", name, ErrLevelExists)
	}
	if s.seeded {
		l.Seed(s.seedPrice)
	}
	if err := s.repo.Add(ctx, l.Snapshot()); err != nil {
		return fmt.Errorf("persist level %s: %w", name, err)
	}
	s.levels[name] = l
	s.log.Info("Level added",
		logger.LadderLevel(name),
		logger.Decimal("delta", delta),
		logger.Decimal("volume", volume))
	return nil
}

// Delete 删除一档；不存在返回 ErrLevelNotFound。
func (s *Service) Delete(ctx context.Context, name string) error {
	s.persist.Lock()
	defer s.persist.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.levels[name]; !ok {
		return fmt.Errorf("delete %s: %w", name, ErrLevelNotFound)
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete level %s: %w", name, err)
	}
	delete(s.levels, name)
	s.log.Info("Level deleted", logger.LadderLevel(name))
	return nil
}

// Update 修改档距与档量，参考价不变。
func (s *Service) Update(ctx context.Context, name string, delta, volume decimal.Decimal) error {
	s.persist.Lock()
	defer s.persist.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.levels[name]
	if !ok {
		return fmt.Errorf("update %s: %w", name, ErrLevelNotFound)
	}
	if err := s.repo.UpdateSettings(ctx, name, delta, volume); err != nil {
		return fmt.Errorf("update level %s: %w", name, err)
	}
	if err := l.UpdateSettings(delta, volume); err != nil {
		return err
	}
	s.log.Info("Level updated",
		logger.LadderLevel(name),
		logger.Decimal("delta", delta),
		logger.Decimal("volume", volume))
	return nil
}

// Levels 返回按名称排序的档位副本。
func (s *Service) Levels() []Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Level, 0, len(s.levels))
	for _, l := range s.sortedLocked() {
		res = append(res, l.Clone())
	}
	return res
}

// Len 档位数量。
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.levels)
}

// SeedReference 用一个外部价格设置所有尚未设置参考价的档位。
// 已设置的档位保持不变，冷启动之后不会把在线梯子整体重置。
func (s *Service) SeedReference(price decimal.Decimal) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seedPrice = price
	s.seeded = true
	n := 0
	for _, l := range s.levels {
		if l.Seed(price) {
			n++
		}
	}
	s.log.Info("Reference seeded",
		zap.Stringer("price", price),
		zap.Int("seeded_levels", n))
	return n
}

// SaveStates 持久化所有档位快照。
func (s *Service) SaveStates(ctx context.Context) error {
	s.persist.Lock()
	defer s.persist.Unlock()

	s.mu.RLock()
	states := make([]State, 0, len(s.levels))
	for _, l := range s.sortedLocked() {
		states = append(states, l.Snapshot())
	}
	s.mu.RUnlock()
	if err := s.repo.SaveStates(ctx, states); err != nil {
		return fmt.Errorf("save level states: %w", err)
	}
	return nil
}

// Orders 生成当前期望订单：每档每个未耗尽的方向一笔，数量为剩余容量。
// 档量为零或未设置参考价的档位不报价。
func (s *Service) Orders() []order.LimitOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]order.LimitOrder, 0, len(s.levels)*2)
	for _, l := range s.sortedLocked() {
		if !l.Active() {
			continue
		}
		if !l.VolumeSell.IsZero() {
			res = append(res, order.NewLimitOrder(l.Sell, l.VolumeSell, order.TradeTypeSell))
		}
		if !l.VolumeBuy.IsZero() {
			res = append(res, order.NewLimitOrder(l.Buy, l.VolumeBuy, order.TradeTypeBuy))
		}
	}
	return res
}

// BestSell 卖价最低的可用档位；价格相同按名称字典序。skip 中的档位被排除。
func (s *Service) BestSell(skip map[string]bool) (string, bool) {
	return s.best(skip, func(a, b *Level) bool {
		if c := a.Sell.Cmp(b.Sell); c != 0 {
			return c < 0
		}
		return a.Name < b.Name
	})
}

// BestBuy 买价最高的可用档位；价格相同按名称字典序。
func (s *Service) BestBuy(skip map[string]bool) (string, bool) {
	return s.best(skip, func(a, b *Level) bool {
		if c := a.Buy.Cmp(b.Buy); c != 0 {
			return c > 0
		}
		return a.Name < b.Name
	})
}

func (s *Service) best(skip map[string]bool, better func(a, b *Level) bool) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *Level
	for _, l := range s.levels {
		if !l.Active() || skip[l.Name] {
			continue
		}
		if found == nil || better(l, found) {
			found = l
		}
	}
	if found == nil {
		return "", false
	}
	return found.Name, true
}

// ApplyFill 把带符号成交量记到指定档位。
func (s *Service) ApplyFill(name string, volume decimal.Decimal) (decimal.Decimal, Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.levels[name]
	if !ok {
		return volume, Execution{}, fmt.Errorf("fill %s: %w", name, ErrLevelNotFound)
	}
	remainder, exec := l.ApplyFill(volume)
	return remainder, exec, nil
}

// TotalInventory 所有档位库存之和。
func (s *Service) TotalInventory() (decimal.Decimal, decimal.Decimal) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, opp := decimal.Zero, decimal.Zero
	for _, l := range s.levels {
		inv = inv.Add(l.Inventory)
		opp = opp.Add(l.OppositeInventory)
	}
	return inv, opp
}

func (s *Service) sortedLocked() []*Level {
	res := make([]*Level, 0, len(s.levels))
	for _, l := range s.levels {
		res = append(res, l)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}
