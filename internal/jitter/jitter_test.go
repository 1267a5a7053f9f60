package jitter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/jitbot/internal/crossing"
	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/execution"
	"github.com/betbot/jitbot/internal/marketstate"
	"github.com/betbot/jitbot/internal/metrics"
	"github.com/betbot/jitbot/internal/ports"
	"github.com/betbot/jitbot/internal/risk"
	"github.com/betbot/jitbot/internal/slotclock"
)

var perp0 = domain.PerpMarket(0)

// scriptedClient 线程安全的 FillClient，按调用序号返回脚本结果
type scriptedClient struct {
	clock *slotclock.Clock

	mu      sync.Mutex
	reqs    []ports.FillRequest
	signed  []ports.SignedMsgFillRequest
	slots   []uint64
	respond func(n int) (string, error)
}

func (c *scriptedClient) next(req ports.FillRequest) (string, error) {
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	c.slots = append(c.slots, c.clock.CurrentSlot())
	n := len(c.reqs)
	respond := c.respond
	c.mu.Unlock()
	if respond == nil {
		return "tx", nil
	}
	return respond(n)
}

func (c *scriptedClient) SubmitFill(_ context.Context, req ports.FillRequest) (string, error) {
	return c.next(req)
}

func (c *scriptedClient) SubmitSignedMsgFill(_ context.Context, req ports.SignedMsgFillRequest) (string, error) {
	c.mu.Lock()
	c.signed = append(c.signed, req)
	c.mu.Unlock()
	return c.next(req.FillRequest)
}

func (c *scriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reqs)
}

func (c *scriptedClient) Requests() []ports.FillRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.FillRequest(nil), c.reqs...)
}

func (c *scriptedClient) SubmitSlots() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.slots...)
}

type fixedPosition int64

func (p fixedPosition) Position(context.Context, domain.MarketID, *uint16) (int64, error) {
	return int64(p), nil
}

type harness struct {
	clock    *slotclock.Clock
	oracle   *marketstate.OracleBook
	quotes   *marketstate.QuoteBook
	markets  *marketstate.MarketInfo
	registry *execution.Registry
	client   *scriptedClient
	filler   *execution.Filler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    slotclock.New(),
		oracle:   marketstate.NewOracleBook(0),
		quotes:   marketstate.NewQuoteBook(),
		markets:  marketstate.NewMarketInfo(),
		registry: execution.NewRegistry(0, 8),
	}
	h.clock.SetSlot(1000)
	h.oracle.Update(perp0, 100*domain.PricePrecision, 1000)
	h.markets.SetMinOrderSize(perp0, 1_000_000)
	h.client = &scriptedClient{clock: h.clock}
	h.filler = execution.NewFiller(execution.FillerConfig{}, execution.FillerDeps{
		Client: h.client,
		Quotes: h.quotes,
		Slots:  h.clock,
	})
	return h
}

func (h *harness) jitter(strategy Strategy) *Jitter {
	return New(Config{}, Deps{
		Registry: h.registry,
		Quotes:   h.quotes,
		Slots:    h.clock,
		Markets:  h.markets,
		Oracle:   h.oracle,
	}, strategy)
}

func (h *harness) sniper(cfg SniperConfig, positions ports.PositionSource) *Sniper {
	return NewSniper(cfg, crossing.NewPredictor(h.quotes, h.oracle), h.filler, risk.NewPositionGuard(positions), h.clock)
}

// auctionOrder taker 做空，100 -> 90，持续 10 个 slot，起始 slot 1000
func auctionOrder(id uint64) domain.Order {
	return domain.Order{
		OrderID:           id,
		Slot:              1000,
		MarketType:        domain.MarketTypePerp,
		MarketIndex:       0,
		OrderType:         domain.OrderTypeMarket,
		Direction:         domain.DirectionShort,
		Status:            domain.OrderStatusOpen,
		BaseAssetAmount:   uint64(domain.BasePrecision),
		AuctionDuration:   10,
		AuctionStartPrice: 100 * domain.PricePrecision,
		AuctionEndPrice:   90 * domain.PricePrecision,
	}
}

func limitQuote(bid, ask int64) domain.QuoteParams {
	return domain.QuoteParams{
		Bid:         bid * domain.PricePrecision,
		Ask:         ask * domain.PricePrecision,
		MinPosition: -10 * domain.BasePrecision,
		MaxPosition: 10 * domain.BasePrecision,
		PriceType:   domain.PriceTypeLimit,
	}
}

func update(orders ...domain.Order) ports.AccountUpdate {
	return ports.AccountUpdate{
		Taker:    domain.UserAccount{Authority: "auth1", Orders: orders},
		TakerKey: "taker1",
		Slot:     1000,
	}
}

// recordingStrategy 记录被接收的订单，可选择阻塞到 ctx 结束或 release 关闭
type recordingStrategy struct {
	mu      sync.Mutex
	jobs    []execution.FillJob
	block   bool
	release chan struct{}
	panics  bool
}

func newRecordingStrategy(block bool) *recordingStrategy {
	return &recordingStrategy{block: block, release: make(chan struct{})}
}

func (s *recordingStrategy) Name() string { return "recording" }

func (s *recordingStrategy) OnOrderAccepted(ctx context.Context, job execution.FillJob) {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	if s.panics {
		panic("boom")
	}
	if s.block {
		select {
		case <-ctx.Done():
		case <-s.release:
		}
	}
}

func (s *recordingStrategy) Jobs() []execution.FillJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]execution.FillJob(nil), s.jobs...)
}

func TestIntake_Pipeline(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(95, 105))
	strat := newRecordingStrategy(false)
	j := h.jitter(strat)
	require.NoError(t, j.Start(context.Background()))
	defer j.Stop(context.Background())

	notOpen := auctionOrder(1)
	notOpen.Status = domain.OrderStatusFilled

	noAuction := auctionOrder(2)
	noAuction.Slot = 900

	filtered := auctionOrder(3)

	unregistered := auctionOrder(4)
	unregistered.MarketIndex = 7

	tooSmall := auctionOrder(5)
	tooSmall.BaseAssetAmount = 2_000_000
	tooSmall.BaseAssetAmountFilled = 1_000_000

	accepted := auctionOrder(6)

	j.SetUserFilter(func(_ domain.UserAccount, _ string, o domain.Order) bool {
		return o.OrderID == 3
	})
	j.OnAccountUpdate(context.Background(), update(notOpen, noAuction, filtered, unregistered, tooSmall, accepted))

	require.Eventually(t, func() bool { return len(strat.Jobs()) == 1 }, time.Second, 5*time.Millisecond)
	job := strat.Jobs()[0]
	assert.Equal(t, uint64(6), job.Order.OrderID)
	assert.Equal(t, domain.NewOrderSignature("taker1", 6), job.Task.Signature)
	assert.Equal(t, "taker1", job.TakerKey)
	assert.Nil(t, job.SignedMsg)
	assert.Equal(t, int64(1), j.Accepted())
	require.Eventually(t, func() bool { return h.registry.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestIntake_ConcurrentDuplicatesSingleFlight(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(95, 105))
	strat := newRecordingStrategy(true)
	j := h.jitter(strat)
	require.NoError(t, j.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.OnAccountUpdate(context.Background(), update(auctionOrder(42)))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(strat.Jobs()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.registry.Len())
	ongoing := j.Ongoing()
	require.Len(t, ongoing, 1)
	assert.Equal(t, "taker1-42", ongoing[0].Signature)

	close(strat.release)
	require.Eventually(t, func() bool { return h.registry.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Len(t, strat.Jobs(), 1)

	// 释放后同一订单可以再次被接收
	prev := strat.Jobs()
	j.OnAccountUpdate(context.Background(), update(auctionOrder(42)))
	require.Eventually(t, func() bool { return len(strat.Jobs()) == len(prev)+1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, j.Stop(context.Background()))
}

func TestIntake_ReleaseAfterPanic(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(95, 105))
	strat := newRecordingStrategy(false)
	strat.panics = true
	j := h.jitter(strat)
	require.NoError(t, j.Start(context.Background()))
	defer j.Stop(context.Background())

	before := metrics.TaskPanics.Value()
	j.OnAccountUpdate(context.Background(), update(auctionOrder(9)))

	require.Eventually(t, func() bool { return metrics.TaskPanics.Value() == before+1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.registry.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, h.registry.Check(domain.NewOrderSignature("taker1", 9)))
}

func TestIntake_RejectsWhenNotRunning(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(95, 105))
	strat := newRecordingStrategy(false)
	j := h.jitter(strat)

	j.OnAccountUpdate(context.Background(), update(auctionOrder(1)))
	assert.Empty(t, strat.Jobs())
	assert.Equal(t, 0, h.registry.Len())

	require.NoError(t, j.Start(context.Background()))
	assert.ErrorIs(t, j.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, j.Stop(context.Background()))
	require.NoError(t, j.Stop(context.Background()))
}

func TestStop_CancelsRunningTasks(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(95, 105))
	strat := newRecordingStrategy(true)
	j := h.jitter(strat)
	require.NoError(t, j.Start(context.Background()))

	j.OnAccountUpdate(context.Background(), update(auctionOrder(1), auctionOrder(2)))
	require.Eventually(t, func() bool { return len(strat.Jobs()) == 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, j.Stop(ctx))
	assert.Equal(t, 0, h.registry.Len())
	assert.False(t, j.Running())
}

func TestRegisterMarketQuote(t *testing.T) {
	h := newHarness(t)
	j := h.jitter(newRecordingStrategy(false))

	bad := limitQuote(95, 105)
	bad.MinPosition, bad.MaxPosition = 5, -5
	assert.ErrorIs(t, j.UpdatePerpParams(0, bad), ErrInvalidQuote)

	require.NoError(t, j.UpdatePerpParams(0, limitQuote(95, 105)))
	require.NoError(t, j.UpdateSpotParams(1, limitQuote(1, 2)))
	quotes := j.Quotes()
	require.Len(t, quotes, 2)
	assert.Equal(t, perp0, quotes[0].Market)
	assert.Equal(t, domain.SpotMarket(1), quotes[1].Market)

	j.RemoveMarketQuote(perp0)
	assert.Len(t, j.Quotes(), 1)
}

type stubAccounts struct {
	key string
	err error
}

func (s stubAccounts) TakerAccount(_ context.Context, authority string, sub uint16) (string, domain.UserAccount, error) {
	return s.key, domain.UserAccount{Authority: authority, SubAccountID: sub}, s.err
}

func signedMsg(uuid string) domain.SignedMsgOrder {
	dur := uint8(10)
	start := 100 * domain.PricePrecision
	end := 90 * domain.PricePrecision
	return domain.SignedMsgOrder{
		UUID:             uuid,
		TakerAuthority:   "auth1",
		SigningAuthority: "signer1",
		Slot:             1000,
		Params: domain.SignedMsgOrderParams{
			OrderType:         domain.OrderTypeMarket,
			MarketIndex:       0,
			Direction:         domain.DirectionShort,
			BaseAssetAmount:   uint64(domain.BasePrecision),
			AuctionDuration:   &dur,
			AuctionStartPrice: &start,
			AuctionEndPrice:   &end,
		},
	}
}

func TestSignedMsg_EntersSamePipeline(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(95, 105))
	h.clock.SetSlot(1002)
	strat := newRecordingStrategy(false)
	j := New(Config{}, Deps{
		Registry: h.registry,
		Quotes:   h.quotes,
		Slots:    h.clock,
		Markets:  h.markets,
		Oracle:   h.oracle,
		Accounts: stubAccounts{key: "takerKey1"},
	}, strat)
	require.NoError(t, j.Start(context.Background()))
	defer j.Stop(context.Background())

	j.OnSignedMsgOrder(context.Background(), signedMsg("ab"))

	require.Eventually(t, func() bool { return len(strat.Jobs()) == 1 }, time.Second, 5*time.Millisecond)
	job := strat.Jobs()[0]
	require.NotNil(t, job.SignedMsg)
	assert.Equal(t, "signer1", job.SignedMsg.SigningAuthority)
	assert.Equal(t, domain.UUIDToOrderID("ab"), job.Order.OrderID)
	assert.Equal(t, "takerKey1", job.TakerKey)
	assert.Equal(t, domain.MarketTypePerp, job.Order.MarketType)
	// 2 个 slot 后：100 - 10*2/9 = 97.777778
	assert.Equal(t, int64(97_777_778), job.Order.Price)
}

func TestSignedMsg_AccountResolutionFailureRejects(t *testing.T) {
	h := newHarness(t)
	h.quotes.Set(perp0, limitQuote(95, 105))
	strat := newRecordingStrategy(false)
	j := New(Config{}, Deps{
		Registry: h.registry,
		Quotes:   h.quotes,
		Slots:    h.clock,
		Oracle:   h.oracle,
		Accounts: stubAccounts{err: errors.New("not found")},
	}, strat)
	require.NoError(t, j.Start(context.Background()))
	defer j.Stop(context.Background())

	j.OnSignedMsgOrder(context.Background(), signedMsg("ab"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, strat.Jobs())
}

func TestDefaultSignedMsgDecoder_RequiresAuctionParams(t *testing.T) {
	msg := signedMsg("x")
	msg.Params.AuctionDuration = nil
	_, err := DefaultSignedMsgDecoder(msg, 1000, 0)
	assert.ErrorIs(t, err, ErrIncompleteSignedMsg)

	var calls atomic.Int32
	decoder := SignedMsgDecoder(func(m domain.SignedMsgOrder, slot uint64, oracle int64) (domain.Order, error) {
		calls.Add(1)
		return DefaultSignedMsgDecoder(m, slot, oracle)
	})
	o, err := decoder(signedMsg("x"), 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100*domain.PricePrecision), o.Price)
	assert.Equal(t, int32(1), calls.Load())
}
