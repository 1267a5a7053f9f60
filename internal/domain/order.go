package domain

// Direction 订单方向（始终描述 taker 一侧）
type Direction uint8

const (
	DirectionLong Direction = iota
	DirectionShort
)

func (d Direction) String() string {
	if d == DirectionShort {
		return "short"
	}
	return "long"
}

// Opposite 返回对手方向（maker 的方向）
func (d Direction) Opposite() Direction {
	if d == DirectionShort {
		return DirectionLong
	}
	return DirectionShort
}

// OrderStatus 订单状态
type OrderStatus uint8

const (
	OrderStatusInit OrderStatus = iota
	OrderStatusOpen
	OrderStatusFilled
	OrderStatusCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusOpen:
		return "open"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCanceled:
		return "canceled"
	default:
		return "init"
	}
}

// OrderType 订单类型
type OrderType uint8

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeTriggerMarket
	OrderTypeTriggerLimit
	// OrderTypeOracle 拍卖起止价是相对预言机价格的偏移
	OrderTypeOracle
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeTriggerMarket:
		return "trigger_market"
	case OrderTypeTriggerLimit:
		return "trigger_limit"
	case OrderTypeOracle:
		return "oracle"
	default:
		return "market"
	}
}

// Order taker 挂出的荷兰式拍卖订单快照。
// 对本进程而言它是只读快照，状态变化由外部推送新快照驱动。
type Order struct {
	OrderID     uint64      `json:"order_id"`
	Slot        uint64      `json:"slot"` // 拍卖起始 slot
	MarketIndex uint16      `json:"market_index"`
	MarketType  MarketType  `json:"market_type"`
	OrderType   OrderType   `json:"order_type"`
	Direction   Direction   `json:"direction"`
	Status      OrderStatus `json:"status"`

	Price             int64 `json:"price"`               // 静态限价，0 表示无
	OraclePriceOffset int64 `json:"oracle_price_offset"` // 相对预言机的限价偏移，0 表示无

	BaseAssetAmount       uint64 `json:"base_asset_amount"`
	BaseAssetAmountFilled uint64 `json:"base_asset_amount_filled"`

	AuctionDuration   uint8 `json:"auction_duration"`
	AuctionStartPrice int64 `json:"auction_start_price"`
	AuctionEndPrice   int64 `json:"auction_end_price"`
}

// Market 返回订单所属市场
func (o Order) Market() MarketID {
	return MarketID{Type: o.MarketType, Index: o.MarketIndex}
}

// Remaining 剩余未成交数量
func (o Order) Remaining() uint64 {
	if o.BaseAssetAmountFilled >= o.BaseAssetAmount {
		return 0
	}
	return o.BaseAssetAmount - o.BaseAssetAmountFilled
}

// IsOpen 检查订单是否开放中
func (o Order) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

// UserAccount taker 账户快照
type UserAccount struct {
	Authority    string  `json:"authority"`
	Delegate     string  `json:"delegate,omitempty"`
	SubAccountID uint16  `json:"sub_account_id"`
	Orders       []Order `json:"orders"`
}

// ReferrerInfo 成交请求附带的推荐人路由信息
type ReferrerInfo struct {
	Referrer      string `json:"referrer"`
	ReferrerStats string `json:"referrer_stats"`
}
