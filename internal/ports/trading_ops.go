package ports

import (
	"context"

	"github.com/betbot/jitbot/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_ports.go -package=mocks github.com/betbot/jitbot/internal/ports FillClient,OracleSource

// Small capability interfaces consumed by the scheduler and implemented by adapters.

type OracleSource interface {
	// OraclePrice returns the latest oracle price (1e6 precision) for the market.
	OraclePrice(market domain.MarketID) (int64, error)
}

type MarketInfoSource interface {
	// MinOrderSize returns the market's minimum order size in base units.
	MinOrderSize(market domain.MarketID) (uint64, bool)
}

type ReferrerResolver interface {
	// ReferrerInfo returns nil when the taker has no referrer.
	ReferrerInfo(ctx context.Context, authority string) (*domain.ReferrerInfo, error)
}

type PositionSource interface {
	// Position returns the maker's signed base position for the market.
	Position(ctx context.Context, market domain.MarketID, subAccountID *uint16) (int64, error)
}

type AccountResolver interface {
	// TakerAccount resolves a signing authority + sub account into the taker account key and snapshot.
	TakerAccount(ctx context.Context, authority string, subAccountID uint16) (string, domain.UserAccount, error)
}

// FillRequest is everything needed to build one jit fill transaction.
type FillRequest struct {
	RequestID        string               `json:"request_id"`
	TakerKey         string               `json:"taker_key"`
	Taker            domain.UserAccount   `json:"taker"`
	TakerOrderID     uint64               `json:"taker_order_id"`
	MarketType       domain.MarketType    `json:"market_type"`
	MarketIndex      uint16               `json:"market_index"`
	MaxPosition      int64                `json:"max_position"`
	MinPosition      int64                `json:"min_position"`
	Bid              int64                `json:"bid"`
	Ask              int64                `json:"ask"`
	PostOnly         domain.PostOnlyParam `json:"post_only"`
	PriceType        domain.PriceType     `json:"price_type"`
	Referrer         *domain.ReferrerInfo `json:"referrer,omitempty"`
	SubAccountID     *uint16              `json:"sub_account_id,omitempty"`
	ComputeUnits     uint32               `json:"compute_units,omitempty"`
	ComputeUnitPrice uint64               `json:"compute_unit_price,omitempty"`
}

// SignedMsgFillRequest fills a pre-confirmation order; the taker order placement
// instruction is built from SignedMsg ahead of the fill.
type SignedMsgFillRequest struct {
	FillRequest
	SigningAuthority string                `json:"signing_authority"`
	SignedMsg        domain.SignedMsgOrder `json:"signed_msg"`
}

type FillClient interface {
	SubmitFill(ctx context.Context, req FillRequest) (string, error)
	SubmitSignedMsgFill(ctx context.Context, req SignedMsgFillRequest) (string, error)
}
