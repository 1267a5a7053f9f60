// Package sigchan 合并式信号 channel：只通知“发生过”，不传递数据。
package sigchan

import "sync"

// Chan 缓冲为 1 时多次 Emit 会合并为一次唤醒，读者醒来后自行读取最新状态
type Chan struct {
	c         chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// New bufferSize <= 0 时按 1 处理
func New(bufferSize int) *Chan {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 非阻塞发送；channel 已满或已关闭时丢弃
func (c *Chan) Emit() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 用于 select
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Close 关闭后 C() 立即可读；重复调用无副作用
func (c *Chan) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.c)
		c.mu.Unlock()
	})
}

func (c *Chan) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
