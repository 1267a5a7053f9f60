package common

import (
	"context"
	"sync"
	"time"
)

// StartLoopOnce 通过 once 保证循环只启动一次。
// tick > 0 时创建 ticker 并把通道传给 run，否则 tickC 为 nil。
// 返回的 cancel 只停止该循环；未实际启动时返回空函数。
func StartLoopOnce(
	parent context.Context,
	once *sync.Once,
	tick time.Duration,
	run func(loopCtx context.Context, tickC <-chan time.Time),
) context.CancelFunc {
	stop := context.CancelFunc(func() {})
	once.Do(func() {
		loopCtx, cancel := context.WithCancel(parent)
		stop = cancel
		go func() {
			defer cancel()
			var tickC <-chan time.Time
			if tick > 0 {
				ticker := time.NewTicker(tick)
				defer ticker.Stop()
				tickC = ticker.C
			}
			run(loopCtx, tickC)
		}()
	})
	return stop
}
