// Package slotclock 账本 slot 时钟：单调推进，向订阅者广播“slot 已前进”。
package slotclock

import (
	"sync"
	"sync/atomic"

	"github.com/betbot/jitbot/internal/ports"
	"github.com/betbot/jitbot/pkg/sigchan"
)

// Clock 实现 ports.SlotSource。
// SetSlot 只接受更大的 slot；订阅是合并式的，醒来后调用 CurrentSlot 读取最新值。
type Clock struct {
	slot atomic.Uint64

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*sigchan.Chan
}

func New() *Clock {
	return &Clock{subs: make(map[uint64]*sigchan.Chan)}
}

func (c *Clock) CurrentSlot() uint64 {
	return c.slot.Load()
}

// SetSlot 返回 slot 是否前进
func (c *Clock) SetSlot(slot uint64) bool {
	for {
		cur := c.slot.Load()
		if slot <= cur {
			return false
		}
		if c.slot.CompareAndSwap(cur, slot) {
			break
		}
	}

	c.mu.Lock()
	for _, ch := range c.subs {
		ch.Emit()
	}
	c.mu.Unlock()
	return true
}

func (c *Clock) Subscribe() ports.SlotSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	s := &subscription{clock: c, id: c.nextID, ch: sigchan.New(1)}
	c.subs[s.id] = s.ch
	return s
}

// Subscribers 当前订阅数
func (c *Clock) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

type subscription struct {
	clock *Clock
	id    uint64
	ch    *sigchan.Chan
}

func (s *subscription) C() <-chan struct{} { return s.ch.C() }

func (s *subscription) Close() {
	s.clock.mu.Lock()
	delete(s.clock.subs, s.id)
	s.clock.mu.Unlock()
	s.ch.Close()
}
