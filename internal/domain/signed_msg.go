package domain

// SignedMsgOrderParams 预确认（签名消息）订单中已解码的下单参数
type SignedMsgOrderParams struct {
	OrderType         OrderType `json:"order_type"`
	MarketIndex       uint16    `json:"market_index"`
	Direction         Direction `json:"direction"`
	BaseAssetAmount   uint64    `json:"base_asset_amount"`
	Price             int64     `json:"price"`
	AuctionDuration   *uint8    `json:"auction_duration,omitempty"`
	AuctionStartPrice *int64    `json:"auction_start_price,omitempty"`
	AuctionEndPrice   *int64    `json:"auction_end_price,omitempty"`
	OraclePriceOffset *int64    `json:"oracle_price_offset,omitempty"`
}

// SignedMsgOrder 预确认订单消息：原始签名消息 + 解码参数 + 签名者身份
type SignedMsgOrder struct {
	UUID             string               `json:"uuid"`
	TakerAuthority   string               `json:"taker_authority"`
	SigningAuthority string               `json:"signing_authority"`
	SubAccountID     uint16               `json:"sub_account_id"`
	Slot             uint64               `json:"slot"`
	Params           SignedMsgOrderParams `json:"params"`
	Raw              []byte               `json:"raw"`
	Signature        []byte               `json:"signature"`
}
