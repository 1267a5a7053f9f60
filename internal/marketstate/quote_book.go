package marketstate

import (
	"sort"
	"sync"

	"github.com/betbot/jitbot/internal/domain"
)

// QuoteBook 每个市场最新的 maker 报价参数，后写覆盖前写，不做版本管理。
// 调度任务每次评估都重新读取，所以更新会在下一次评估时生效。
type QuoteBook struct {
	mu     sync.RWMutex
	quotes map[domain.MarketID]domain.QuoteParams
}

func NewQuoteBook() *QuoteBook {
	return &QuoteBook{quotes: make(map[domain.MarketID]domain.QuoteParams)}
}

func (b *QuoteBook) Set(market domain.MarketID, q domain.QuoteParams) {
	b.mu.Lock()
	b.quotes[market] = q
	b.mu.Unlock()
}

func (b *QuoteBook) Get(market domain.MarketID) (domain.QuoteParams, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[market]
	return q, ok
}

func (b *QuoteBook) Delete(market domain.MarketID) {
	b.mu.Lock()
	delete(b.quotes, market)
	b.mu.Unlock()
}

type MarketQuote struct {
	Market domain.MarketID
	Quote  domain.QuoteParams
}

// Snapshot 按 (type, index) 排序返回所有报价
func (b *QuoteBook) Snapshot() []MarketQuote {
	b.mu.RLock()
	out := make([]MarketQuote, 0, len(b.quotes))
	for m, q := range b.quotes {
		out = append(out, MarketQuote{Market: m, Quote: q})
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Market.Type != out[j].Market.Type {
			return out[i].Market.Type < out[j].Market.Type
		}
		return out[i].Market.Index < out[j].Market.Index
	})
	return out
}
