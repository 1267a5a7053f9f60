package jitter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/metrics"
)

func fastSniperConfig() SniperConfig {
	return SniperConfig{
		MaxAttempts:        3,
		RetryDelay:         time.Millisecond,
		Cooldown:           time.Millisecond,
		ReevaluateInterval: 5 * time.Millisecond,
	}
}

func startSniper(t *testing.T, h *harness, s *Sniper) *Jitter {
	t.Helper()
	j := h.jitter(s)
	require.NoError(t, j.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = j.Stop(ctx)
	})
	return j
}

func TestSniperConfig_Defaults(t *testing.T) {
	cfg := SniperConfig{}.withDefaults()
	assert.Equal(t, 10, cfg.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 3*time.Second, cfg.Cooldown)
	assert.Equal(t, 50*time.Millisecond, cfg.ReevaluateInterval)
}

func TestSniper_SubmitsAtPredictedSlot(t *testing.T) {
	h := newHarness(t)
	// maker 买入 bid=95：100 -> 90 在第 5 个 slot 到达 94.44 <= 95
	h.quotes.Set(perp0, limitQuote(95, 105))
	j := startSniper(t, h, h.sniper(fastSniperConfig(), nil))

	j.OnAccountUpdate(context.Background(), update(auctionOrder(1)))

	for slot := uint64(1001); slot <= 1004; slot++ {
		h.clock.SetSlot(slot)
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, h.client.Calls(), "must not submit before the predicted slot")

	h.clock.SetSlot(1005)
	require.Eventually(t, func() bool { return h.client.Calls() == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, uint64(1005), h.client.SubmitSlots()[0])
	assert.Equal(t, domain.PostOnlyNone, h.client.Requests()[0].PostOnly)
	require.Eventually(t, func() bool { return h.registry.Len() == 0 }, time.Second, 2*time.Millisecond)
}

func TestSniper_RetryBoundOnPersistentNotCrossed(t *testing.T) {
	h := newHarness(t)
	// 起始价即穿越
	h.quotes.Set(perp0, limitQuote(101, 105))
	h.client.respond = func(int) (string, error) {
		return "", &domain.ProgramError{Code: domain.ErrBidNotCrossed}
	}
	startSniper(t, h, h.sniper(fastSniperConfig(), nil)).
		OnAccountUpdate(context.Background(), update(auctionOrder(2)))

	require.Eventually(t, func() bool { return h.registry.Len() == 0 && h.client.Calls() > 0 }, time.Second, 2*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, h.client.Calls())
}

func TestSniper_OracleMoveAdvancesTarget(t *testing.T) {
	h := newHarness(t)
	// oracle 报价：bid = oracle - 5
	q := limitQuote(-5, 5)
	q.PriceType = domain.PriceTypeOracle
	h.quotes.Set(perp0, q)
	h.oracle.Update(perp0, 80*domain.PricePrecision, 1000)

	o := auctionOrder(3)
	o.Price = 90 * domain.PricePrecision // 限价 90 > bid 75，不会穿越
	startSniper(t, h, h.sniper(fastSniperConfig(), nil)).
		OnAccountUpdate(context.Background(), update(o))

	h.clock.SetSlot(1005)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, h.client.Calls())

	// 预言机上涨到 100 => bid 95，第 5 个 slot 即穿越，当前 slot 已到达
	h.oracle.Update(perp0, 100*domain.PricePrecision, 1005)
	require.Eventually(t, func() bool { return h.client.Calls() == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, uint64(1005), h.client.SubmitSlots()[0])
}

func TestSniper_ExpiresWithoutCross(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(80, 120))
	o := auctionOrder(4)
	o.Price = 90 * domain.PricePrecision

	before := metrics.AuctionsExpired.Value()
	startSniper(t, h, h.sniper(fastSniperConfig(), nil)).
		OnAccountUpdate(context.Background(), update(o))

	require.Eventually(t, func() bool { return h.registry.Len() == 1 }, time.Second, 2*time.Millisecond)
	h.clock.SetSlot(1011)
	require.Eventually(t, func() bool { return h.registry.Len() == 0 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 0, h.client.Calls())
	assert.Equal(t, before+1, metrics.AuctionsExpired.Value())
}

func TestSniper_NoLimitForcesFinalAttemptAfterAuction(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(80, 120))
	startSniper(t, h, h.sniper(fastSniperConfig(), nil)).
		OnAccountUpdate(context.Background(), update(auctionOrder(5)))

	h.clock.SetSlot(1010)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, h.client.Calls())

	h.clock.SetSlot(1011)
	require.Eventually(t, func() bool { return h.client.Calls() == 1 }, time.Second, 2*time.Millisecond)
}

func TestSniper_RiskCapAbandonsBeforeWaiting(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(101, 105))
	startSniper(t, h, h.sniper(fastSniperConfig(), fixedPosition(10*domain.BasePrecision))).
		OnAccountUpdate(context.Background(), update(auctionOrder(6)))

	require.Eventually(t, func() bool { return h.registry.Len() == 0 }, time.Second, 2*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, h.client.Calls())
}

func TestSniper_QuoteRemovedWhileWaitingAbandons(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(95, 105))
	startSniper(t, h, h.sniper(fastSniperConfig(), nil)).
		OnAccountUpdate(context.Background(), update(auctionOrder(7)))

	require.Eventually(t, func() bool { return h.registry.Len() == 1 }, time.Second, 2*time.Millisecond)
	h.quotes.Delete(perp0)
	require.Eventually(t, func() bool { return h.registry.Len() == 0 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 0, h.client.Calls())
}

func TestSniper_WaitReleasesSubscription(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(95, 105))
	j := startSniper(t, h, h.sniper(fastSniperConfig(), nil))
	j.OnAccountUpdate(context.Background(), update(auctionOrder(8)))

	require.Eventually(t, func() bool { return h.clock.Subscribers() == 1 }, time.Second, 2*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, j.Stop(ctx))
	assert.Equal(t, 0, h.clock.Subscribers())
	assert.Equal(t, 0, h.registry.Len())
}
