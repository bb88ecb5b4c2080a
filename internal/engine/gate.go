package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrGateTimeout 在超时时间内没能拿到闸门，本次事件被丢弃。
var ErrGateTimeout = errors.New("can't take coordinator lock in time")

// gate 单写者闸门，获取有超时上限。
type gate struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

func newGate(timeout time.Duration) *gate {
	return &gate{sem: semaphore.NewWeighted(1), timeout: timeout}
}

// acquire 成功时返回释放函数。调用方 ctx 取消时返回 ctx 的错误。
func (g *gate) acquire(ctx context.Context) (func(), error) {
	actx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if err := g.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrGateTimeout
	}
	return func() { g.sem.Release(1) }, nil
}
