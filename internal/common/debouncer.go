package common

import (
	"sync"
	"time"
)

// Debouncer 基于时间的节流门：距离上次放行不足 interval 时拒绝。并发安全。
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	dropped  int
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Allow 检查并在放行时记录 now。返回自上次放行以来被拒绝的次数。
func (d *Debouncer) Allow(now time.Time) (ok bool, suppressed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.interval > 0 && !d.last.IsZero() && now.Sub(d.last) < d.interval {
		d.dropped++
		return false, 0
	}
	suppressed = d.dropped
	d.dropped = 0
	d.last = now
	return true, suppressed
}

// AllowNow 等价于 Allow(time.Now())
func (d *Debouncer) AllowNow() (bool, int) { return d.Allow(time.Now()) }

// Reset 清空上次放行时间，下一次 Allow 必定放行
func (d *Debouncer) Reset() {
	d.mu.Lock()
	d.last = time.Time{}
	d.dropped = 0
	d.mu.Unlock()
}
