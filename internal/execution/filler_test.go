package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/betbot/jitbot/internal/crossing"
	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/events"
	"github.com/betbot/jitbot/internal/marketstate"
	"github.com/betbot/jitbot/internal/ports"
	"github.com/betbot/jitbot/internal/ports/mocks"
	"github.com/betbot/jitbot/internal/risk"
)

type memJournal struct {
	events []events.FillAttemptEvent
}

func (j *memJournal) Record(_ context.Context, ev events.FillAttemptEvent) error {
	j.events = append(j.events, ev)
	return nil
}

func (j *memJournal) Close() error { return nil }

type stubReferrers struct {
	info *domain.ReferrerInfo
	err  error
}

func (s stubReferrers) ReferrerInfo(context.Context, string) (*domain.ReferrerInfo, error) {
	return s.info, s.err
}

type fixedPosition int64

func (p fixedPosition) Position(context.Context, domain.MarketID, *uint16) (int64, error) {
	return int64(p), nil
}

var perp0 = domain.MarketID{Type: domain.MarketTypePerp, Index: 0}

func testJob() FillJob {
	o := domain.Order{
		OrderID:         7,
		Slot:            100,
		MarketType:      domain.MarketTypePerp,
		MarketIndex:     0,
		Direction:       domain.DirectionShort,
		Status:          domain.OrderStatusOpen,
		BaseAssetAmount: uint64(domain.BasePrecision),
		AuctionDuration: 10,
	}
	sig := domain.NewOrderSignature("taker1", o.OrderID)
	return FillJob{
		Task:     NewTask(sig, o.Market(), "test"),
		Order:    o,
		TakerKey: "taker1",
		Taker:    domain.UserAccount{Authority: "auth1"},
	}
}

func testQuotes() *marketstate.QuoteBook {
	qb := marketstate.NewQuoteBook()
	qb.Set(perp0, domain.QuoteParams{Bid: -1_000_000, Ask: 1_000_000, MaxPosition: 10 * domain.BasePrecision, MinPosition: -10 * domain.BasePrecision, PriceType: domain.PriceTypeOracle})
	return qb
}

func fastPolicy(max int) RetryPolicy {
	return RetryPolicy{MaxAttempts: max, RetryDelay: time.Millisecond, DefaultPostOnly: domain.PostOnlyMustPostOnly}
}

func TestFill_SuccessFirstAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockFillClient(ctrl)
	j := &memJournal{}
	ref := &domain.ReferrerInfo{Referrer: "ref1", ReferrerStats: "stats1"}

	client.EXPECT().SubmitFill(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req ports.FillRequest) (string, error) {
		assert.Equal(t, uint64(7), req.TakerOrderID)
		assert.Equal(t, int64(-1_000_000), req.Bid)
		assert.Equal(t, domain.PostOnlyMustPostOnly, req.PostOnly)
		assert.Equal(t, ref, req.Referrer)
		assert.Equal(t, uint32(1_400_000), req.ComputeUnits)
		assert.NotEmpty(t, req.RequestID)
		return "tx1", nil
	})

	f := NewFiller(FillerConfig{ComputeUnits: 1_400_000}, FillerDeps{Client: client, Quotes: testQuotes(), Referrers: stubReferrers{info: ref}, Journal: j})
	job := testJob()
	out := f.Fill(context.Background(), job, fastPolicy(3))

	assert.Equal(t, ResultFilled, out.Result)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, "tx1", out.TxSig)
	assert.Equal(t, 1, job.Task.Attempts())
	require.Len(t, j.events, 1)
	assert.True(t, j.events[0].Succeeded())
}

func TestFill_RetriesNotCrossedUntilBound(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockFillClient(ctrl)
	client.EXPECT().SubmitFill(gomock.Any(), gomock.Any()).
		Return("", &domain.ProgramError{Code: domain.ErrBidNotCrossed}).Times(4)

	j := &memJournal{}
	f := NewFiller(FillerConfig{}, FillerDeps{Client: client, Quotes: testQuotes(), Journal: j})
	out := f.Fill(context.Background(), testJob(), fastPolicy(4))

	assert.Equal(t, ResultExhausted, out.Result)
	assert.Equal(t, 4, out.Attempts)
	assert.Equal(t, ClassNotCrossed, out.Class)
	assert.Len(t, j.events, 4)
}

func TestFill_StaleOracleThenSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockFillClient(ctrl)
	gomock.InOrder(
		client.EXPECT().SubmitFill(gomock.Any(), gomock.Any()).Return("", errors.New("Program log: custom program error: 0x1793")),
		client.EXPECT().SubmitFill(gomock.Any(), gomock.Any()).Return("tx2", nil),
	)

	f := NewFiller(FillerConfig{}, FillerDeps{Client: client, Quotes: testQuotes()})
	out := f.Fill(context.Background(), testJob(), fastPolicy(5))

	assert.Equal(t, ResultFilled, out.Result)
	assert.Equal(t, 2, out.Attempts)
}

func TestFill_UnfillableAbandonsImmediately(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockFillClient(ctrl)
	client.EXPECT().SubmitFill(gomock.Any(), gomock.Any()).
		Return("", &domain.ProgramError{Code: domain.ErrTakerOrderNotFound}).Times(1)

	f := NewFiller(FillerConfig{}, FillerDeps{Client: client, Quotes: testQuotes()})
	out := f.Fill(context.Background(), testJob(), fastPolicy(10))

	assert.Equal(t, ResultAbandoned, out.Result)
	assert.Equal(t, ClassUnfillable, out.Class)
	assert.Equal(t, 1, out.Attempts)
}

func TestFill_UnclassifiedCoolsDownAndTripsBreaker(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockFillClient(ctrl)
	client.EXPECT().SubmitFill(gomock.Any(), gomock.Any()).Return("", errors.New("blockhash not found")).Times(1)

	cb := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{MaxConsecutiveErrors: 1})
	policy := fastPolicy(10)
	policy.Cooldown = 20 * time.Millisecond

	f := NewFiller(FillerConfig{}, FillerDeps{Client: client, Quotes: testQuotes(), Breaker: cb})
	start := time.Now()
	out := f.Fill(context.Background(), testJob(), policy)

	assert.Equal(t, ResultCooldownAbandoned, out.Result)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.ErrorIs(t, cb.AllowTrading(), risk.ErrCircuitBreakerOpen)

	// 熔断后不再提交
	out = f.Fill(context.Background(), testJob(), policy)
	assert.Equal(t, ResultAbandoned, out.Result)
	assert.ErrorIs(t, out.Err, risk.ErrCircuitBreakerOpen)
}

func TestFill_ReferrerFailureAbandons(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockFillClient(ctrl)

	f := NewFiller(FillerConfig{}, FillerDeps{Client: client, Quotes: testQuotes(), Referrers: stubReferrers{err: errors.New("rpc down")}})
	out := f.Fill(context.Background(), testJob(), fastPolicy(3))

	assert.Equal(t, ResultAbandoned, out.Result)
	assert.Equal(t, 0, out.Attempts)
}

func TestFill_QuoteRemovedAbandons(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockFillClient(ctrl)

	f := NewFiller(FillerConfig{}, FillerDeps{Client: client, Quotes: marketstate.NewQuoteBook()})
	out := f.Fill(context.Background(), testJob(), fastPolicy(3))

	assert.Equal(t, ResultAbandoned, out.Result)
	assert.ErrorIs(t, out.Err, crossing.ErrMarketNotRegistered)
}

func TestFill_RecheckRiskAbandonsAtCap(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockFillClient(ctrl)

	// taker 做空 => maker 买入，持仓已到 max
	guard := risk.NewPositionGuard(fixedPosition(10 * domain.BasePrecision))
	policy := fastPolicy(3)
	policy.RecheckRisk = true

	f := NewFiller(FillerConfig{}, FillerDeps{Client: client, Quotes: testQuotes(), Guard: guard})
	out := f.Fill(context.Background(), testJob(), policy)

	assert.Equal(t, ResultAbandoned, out.Result)
	assert.ErrorIs(t, out.Err, risk.ErrRiskCapExceeded)
}

func TestFill_QuoteUpdateAppliesToNextAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockFillClient(ctrl)
	qb := testQuotes()

	var bids []int64
	client.EXPECT().SubmitFill(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req ports.FillRequest) (string, error) {
		bids = append(bids, req.Bid)
		if len(bids) == 1 {
			qb.Set(perp0, domain.QuoteParams{Bid: -2_000_000, Ask: 2_000_000, PriceType: domain.PriceTypeOracle})
			return "", &domain.ProgramError{Code: domain.ErrBidNotCrossed}
		}
		return "tx", nil
	}).Times(2)

	f := NewFiller(FillerConfig{}, FillerDeps{Client: client, Quotes: qb})
	out := f.Fill(context.Background(), testJob(), fastPolicy(3))

	require.Equal(t, ResultFilled, out.Result)
	assert.Equal(t, []int64{-1_000_000, -2_000_000}, bids)
}

func TestFill_SignedMsgUsesSignedPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockFillClient(ctrl)
	client.EXPECT().SubmitSignedMsgFill(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req ports.SignedMsgFillRequest) (string, error) {
		assert.Equal(t, "signer1", req.SigningAuthority)
		assert.Equal(t, "uuid0001", req.SignedMsg.UUID)
		return "tx-signed", nil
	})

	job := testJob()
	job.SignedMsg = &domain.SignedMsgOrder{UUID: "uuid0001", SigningAuthority: "signer1"}
	f := NewFiller(FillerConfig{}, FillerDeps{Client: client, Quotes: testQuotes()})
	out := f.Fill(context.Background(), job, fastPolicy(1))

	assert.Equal(t, ResultFilled, out.Result)
	assert.Equal(t, "tx-signed", out.TxSig)
}

func TestFill_CanceledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockFillClient(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFiller(FillerConfig{}, FillerDeps{Client: client, Quotes: testQuotes()})
	out := f.Fill(ctx, testJob(), fastPolicy(3))
	assert.Equal(t, ResultCanceled, out.Result)
}
