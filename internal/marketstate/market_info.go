package marketstate

import (
	"sync"

	"github.com/betbot/jitbot/internal/domain"
)

// MarketInfo 静态市场参数表（来自配置），实现 ports.MarketInfoSource
type MarketInfo struct {
	mu           sync.RWMutex
	minOrderSize map[domain.MarketID]uint64
}

func NewMarketInfo() *MarketInfo {
	return &MarketInfo{minOrderSize: make(map[domain.MarketID]uint64)}
}

func (m *MarketInfo) SetMinOrderSize(market domain.MarketID, size uint64) {
	m.mu.Lock()
	m.minOrderSize[market] = size
	m.mu.Unlock()
}

func (m *MarketInfo) MinOrderSize(market domain.MarketID) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.minOrderSize[market]
	return v, ok
}
