package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ladder-maker-go/ladder"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// MemoryLevelRepository 进程内的档位仓库，未配置数据库时使用。
type MemoryLevelRepository struct {
	mu     sync.RWMutex
	states map[string]ladder.State
	saves  int
}

func NewMemoryLevelRepository(initial ...ladder.State) *MemoryLevelRepository {
	r := &MemoryLevelRepository{states: make(map[string]ladder.State, len(initial))}
	for _, s := range initial {
		r.states[s.Name] = s
	}
	return r
}

func (r *MemoryLevelRepository) List(_ context.Context) ([]ladder.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]ladder.State, 0, len(r.states))
	for _, s := range r.states {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (r *MemoryLevelRepository) Add(_ context.Context, s ladder.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[s.Name]; ok {
		return fmt.Errorf("level %s: %w", s.Name, ErrExists)
	}
	r.states[s.Name] = s
	return nil
}

func (r *MemoryLevelRepository) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[name]; !ok {
		return fmt.Errorf("level %s: %w", name, ErrNotFound)
	}
	delete(r.states, name)
	return nil
}

func (r *MemoryLevelRepository) UpdateSettings(_ context.Context, name string, delta, volume decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[name]
	if !ok {
		return fmt.Errorf("level %s: %w", name, ErrNotFound)
	}
	s.Delta = delta
	s.OriginalVolume = volume
	s.VolumeSell = volume.Neg()
	s.VolumeBuy = volume
	r.states[name] = s
	return nil
}

func (r *MemoryLevelRepository) SaveStates(_ context.Context, states []ladder.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range states {
		r.states[s.Name] = s
	}
	r.saves++
	return nil
}

// SaveCount 已执行 SaveStates 的次数。
func (r *MemoryLevelRepository) SaveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

// Get 返回某档的持久化快照。
func (r *MemoryLevelRepository) Get(name string) (ladder.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[name]
	return s, ok
}

// MemoryPriceStore 进程内的初始价存储。
type MemoryPriceStore struct {
	mu        sync.RWMutex
	price     decimal.Decimal
	ok        bool
	updatedAt time.Time
}

func NewMemoryPriceStore() *MemoryPriceStore {
	return &MemoryPriceStore{}
}

func (p *MemoryPriceStore) Get(_ context.Context) (decimal.Decimal, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.price, p.ok, nil
}

func (p *MemoryPriceStore) Set(_ context.Context, price decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
	p.ok = true
	p.updatedAt = time.Now().UTC()
	return nil
}

// Clear 删除已保存的价格。
func (p *MemoryPriceStore) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = decimal.Zero
	p.ok = false
}
