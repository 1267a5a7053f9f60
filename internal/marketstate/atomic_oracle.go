package marketstate

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/betbot/jitbot/internal/domain"
)

var (
	ErrOracleUnavailable = errors.New("oracle price unavailable")
	ErrOracleStale       = errors.New("oracle price stale")
)

// AtomicOracle 单个市场的预言机价格快照（锁自由读取）。
//
// 高频写入（feed）与高频读取（预测/重新评估）解耦，读取不持锁。
type AtomicOracle struct {
	price           atomic.Int64
	slot            atomic.Uint64
	updatedAtUnixMs atomic.Int64
}

type OracleSnapshot struct {
	Price     int64
	Slot      uint64
	UpdatedAt time.Time
}

func (o *AtomicOracle) Load() OracleSnapshot {
	ms := o.updatedAtUnixMs.Load()
	var t time.Time
	if ms > 0 {
		t = time.UnixMilli(ms)
	}
	return OracleSnapshot{Price: o.price.Load(), Slot: o.slot.Load(), UpdatedAt: t}
}

// Update 写入新价格。slot 回退的更新直接丢弃（乱序消息）。
func (o *AtomicOracle) Update(price int64, slot uint64) bool {
	for {
		cur := o.slot.Load()
		if slot < cur {
			return false
		}
		if o.slot.CompareAndSwap(cur, slot) {
			break
		}
	}
	o.price.Store(price)
	o.updatedAtUnixMs.Store(time.Now().UnixMilli())
	return true
}

func (o *AtomicOracle) IsFresh(maxAge time.Duration) bool {
	ms := o.updatedAtUnixMs.Load()
	if ms <= 0 {
		return false
	}
	if maxAge <= 0 {
		return true
	}
	return time.Since(time.UnixMilli(ms)) <= maxAge
}

// OracleBook 所有市场的预言机价格，实现 ports.OracleSource。
type OracleBook struct {
	maxAge time.Duration

	mu      sync.RWMutex
	markets map[domain.MarketID]*AtomicOracle
}

// NewOracleBook maxAge <= 0 表示不做新鲜度检查
func NewOracleBook(maxAge time.Duration) *OracleBook {
	return &OracleBook{maxAge: maxAge, markets: make(map[domain.MarketID]*AtomicOracle)}
}

func (b *OracleBook) Update(market domain.MarketID, price int64, slot uint64) bool {
	return b.entry(market).Update(price, slot)
}

// OraclePrice 返回最新价格；从未收到或已过期时返回错误
func (b *OracleBook) OraclePrice(market domain.MarketID) (int64, error) {
	b.mu.RLock()
	o, ok := b.markets[market]
	b.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrOracleUnavailable, market)
	}
	if !o.IsFresh(b.maxAge) {
		return 0, fmt.Errorf("%w: %s updated_at=%s", ErrOracleStale, market, o.Load().UpdatedAt.Format(time.RFC3339Nano))
	}
	return o.price.Load(), nil
}

// Snapshot 返回所有市场的当前价格（控制面展示用）
func (b *OracleBook) Snapshot() map[domain.MarketID]OracleSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[domain.MarketID]OracleSnapshot, len(b.markets))
	for m, o := range b.markets {
		out[m] = o.Load()
	}
	return out
}

func (b *OracleBook) entry(market domain.MarketID) *AtomicOracle {
	b.mu.RLock()
	o, ok := b.markets[market]
	b.mu.RUnlock()
	if ok {
		return o
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok = b.markets[market]; ok {
		return o
	}
	o = &AtomicOracle{}
	b.markets[market] = o
	return o
}
