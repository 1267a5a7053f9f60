package server

import (
	"time"

	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/jitter"
	"github.com/betbot/jitbot/internal/marketstate"
)

type Status struct {
	Running           bool          `json:"running"`
	Strategy          string        `json:"strategy"`
	DryRun            bool          `json:"dry_run"`
	Slot              uint64        `json:"slot"`
	InFlight          int           `json:"in_flight"`
	Accepted          int64         `json:"accepted"`
	Markets           int           `json:"markets"`
	BreakerHalted     bool          `json:"breaker_halted"`
	ConsecutiveErrors int64         `json:"consecutive_errors"`
	Oracles           []OracleView  `json:"oracles,omitempty"`
	Uptime            time.Duration `json:"uptime_ns"`
	StartedAt         time.Time     `json:"started_at"`
}

type OracleView struct {
	Market    string    `json:"market"`
	Price     string    `json:"price"`
	Slot      uint64    `json:"slot"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AuctionsResponse struct {
	Auctions []jitter.AuctionInfo `json:"auctions"`
}

// QuoteView 价格/数量以十进制字符串展示
type QuoteView struct {
	MarketType   string  `json:"market_type"`
	MarketIndex  uint16  `json:"market_index"`
	Bid          string  `json:"bid"`
	Ask          string  `json:"ask"`
	MinPosition  string  `json:"min_position"`
	MaxPosition  string  `json:"max_position"`
	PriceType    string  `json:"price_type"`
	SubAccountID *uint16 `json:"sub_account_id,omitempty"`
	PostOnly     string  `json:"post_only,omitempty"`
}

func newQuoteView(mq marketstate.MarketQuote) QuoteView {
	q := mq.Quote
	v := QuoteView{
		MarketType:   mq.Market.Type.String(),
		MarketIndex:  mq.Market.Index,
		Bid:          domain.FormatPrice(q.Bid),
		Ask:          domain.FormatPrice(q.Ask),
		MinPosition:  domain.FormatBase(q.MinPosition),
		MaxPosition:  domain.FormatBase(q.MaxPosition),
		PriceType:    q.PriceType.String(),
		SubAccountID: q.SubAccountID,
	}
	if q.PostOnly != nil {
		v.PostOnly = q.PostOnly.String()
	}
	return v
}

// QuoteRequest PUT /api/quotes/:market_type/:market_index 请求体
type QuoteRequest struct {
	Bid          string  `json:"bid"`
	Ask          string  `json:"ask"`
	MinPosition  string  `json:"min_position"`
	MaxPosition  string  `json:"max_position"`
	PriceType    string  `json:"price_type"`
	SubAccountID *uint16 `json:"sub_account_id,omitempty"`
	PostOnly     string  `json:"post_only,omitempty"`
}

func (r QuoteRequest) toQuoteParams() (domain.QuoteParams, error) {
	var (
		q   domain.QuoteParams
		err error
	)
	if q.Bid, err = domain.ParsePrice(r.Bid); err != nil {
		return q, err
	}
	if q.Ask, err = domain.ParsePrice(r.Ask); err != nil {
		return q, err
	}
	if q.MinPosition, err = domain.ParseBase(r.MinPosition); err != nil {
		return q, err
	}
	if q.MaxPosition, err = domain.ParseBase(r.MaxPosition); err != nil {
		return q, err
	}
	if q.PriceType, err = domain.ParsePriceType(r.PriceType); err != nil {
		return q, err
	}
	if r.PostOnly != "" {
		p, err := domain.ParsePostOnly(r.PostOnly)
		if err != nil {
			return q, err
		}
		q.PostOnly = &p
	}
	q.SubAccountID = r.SubAccountID
	return q, nil
}

func newQuoteViewFor(market domain.MarketID, q domain.QuoteParams) QuoteView {
	return newQuoteView(marketstate.MarketQuote{Market: market, Quote: q})
}
