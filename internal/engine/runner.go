package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimerHandler 定时触发的对象，由 *Coordinator 实现。
type TimerHandler interface {
	HandleTimer(ctx context.Context) error
}

// Runner 按固定间隔触发 HandleTimer。
type Runner struct {
	handler  TimerHandler
	interval time.Duration
	log      *zap.Logger

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	started  bool
}

// NewRunner 创建定时器，interval<=0 时默认 1 秒。
func NewRunner(handler TimerHandler, interval time.Duration, log *zap.Logger) *Runner {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		handler:  handler,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Run 阻塞运行直到 ctx 取消或 Stop。只能调用一次。
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("runner already started")
	}
	r.started = true
	r.mu.Unlock()

	defer close(r.doneChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("Timer started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stopChan:
			return nil
		case <-ticker.C:
			if err := r.handler.HandleTimer(ctx); err != nil {
				// 下一次 tick 会重新对账
				r.log.Warn("Timer handling failed", zap.Error(err))
			}
		}
	}
}

// Stop 停止循环并等待退出
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })

	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if started {
		<-r.doneChan
	}
}
