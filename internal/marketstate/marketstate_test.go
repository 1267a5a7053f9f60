package marketstate

import (
	"errors"
	"testing"
	"time"

	"github.com/betbot/jitbot/internal/domain"
)

func TestOracleBook_UnknownAndStale(t *testing.T) {
	b := NewOracleBook(20 * time.Millisecond)
	m := domain.PerpMarket(0)

	if _, err := b.OraclePrice(m); !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}

	b.Update(m, 100_000_000, 10)
	p, err := b.OraclePrice(m)
	if err != nil || p != 100_000_000 {
		t.Fatalf("got=%d err=%v", p, err)
	}

	time.Sleep(40 * time.Millisecond)
	if _, err := b.OraclePrice(m); !errors.Is(err, ErrOracleStale) {
		t.Fatalf("expected stale, got %v", err)
	}
}

func TestOracleBook_DropsOutOfOrderSlots(t *testing.T) {
	b := NewOracleBook(0)
	m := domain.SpotMarket(1)
	b.Update(m, 10, 5)
	if b.Update(m, 9, 4) {
		t.Fatalf("older slot must be rejected")
	}
	if p, _ := b.OraclePrice(m); p != 10 {
		t.Fatalf("got=%d want=10", p)
	}
	if snap := b.Snapshot()[m]; snap.Slot != 5 {
		t.Fatalf("slot got=%d want=5", snap.Slot)
	}
}

func TestQuoteBook_LastWriteWins(t *testing.T) {
	qb := NewQuoteBook()
	m := domain.PerpMarket(2)
	qb.Set(m, domain.QuoteParams{Bid: 1})
	qb.Set(m, domain.QuoteParams{Bid: 2})
	q, ok := qb.Get(m)
	if !ok || q.Bid != 2 {
		t.Fatalf("got=%+v ok=%v", q, ok)
	}
	qb.Set(domain.SpotMarket(0), domain.QuoteParams{})
	snap := qb.Snapshot()
	if len(snap) != 2 || snap[0].Market != m {
		t.Fatalf("unexpected snapshot order: %+v", snap)
	}
	qb.Delete(m)
	if _, ok := qb.Get(m); ok {
		t.Fatalf("expected quote removed")
	}
}
