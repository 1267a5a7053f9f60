// Package crossing 预测拍卖价格何时穿越 maker 报价。
package crossing

import (
	"fmt"

	"github.com/betbot/jitbot/internal/auction"
	"github.com/betbot/jitbot/internal/domain"
)

// Snapshot 一次评估的结果，随用随算，不落盘。
type Snapshot struct {
	SlotsUntilCross   uint64
	WillCross         bool
	Bid               int64 // 换算后的绝对 bid
	Ask               int64 // 换算后的绝对 ask
	AuctionStartPrice int64
	AuctionEndPrice   int64
	StepSize          int64
	OraclePrice       int64

	// ViaLimit 穿越来自拍卖结束后的限价回落（或无限价时的最后一次尝试）
	ViaLimit bool
	// Malformed 拍卖参数非法（duration == 0），按不会穿越处理
	Malformed bool
}

// TargetSlot 等待目标：会穿越时为预测穿越 slot，否则为拍卖结束后的下一个 slot。
func (s Snapshot) TargetSlot(o domain.Order) uint64 {
	if s.WillCross {
		return o.Slot + s.SlotsUntilCross
	}
	return ExpirySlot(o)
}

// ExpirySlot 拍卖结束后的第一个可回落 slot
func ExpirySlot(o domain.Order) uint64 {
	return o.Slot + uint64(o.AuctionDuration) + 1
}

func (s Snapshot) String() string {
	return fmt.Sprintf("willCross=%v slotsUntilCross=%d bid=%s ask=%s start=%s end=%s step=%s oracle=%s viaLimit=%v",
		s.WillCross, s.SlotsUntilCross,
		domain.FormatPrice(s.Bid), domain.FormatPrice(s.Ask),
		domain.FormatPrice(s.AuctionStartPrice), domain.FormatPrice(s.AuctionEndPrice),
		domain.FormatPrice(s.StepSize), domain.FormatPrice(s.OraclePrice), s.ViaLimit)
}

// Predict 纯函数：相同输入必然得到相同输出。
//
// maker 与 taker 方向相反：
//   - taker 做空 => maker 买入，价格 <= bid 时穿越
//   - taker 做多 => maker 卖出，价格 >= ask 时穿越
func Predict(o domain.Order, q domain.QuoteParams, oraclePrice int64) Snapshot {
	bid, ask := q.ResolveBidAsk(oraclePrice)
	snap := Snapshot{
		Bid:         bid,
		Ask:         ask,
		OraclePrice: oraclePrice,
	}

	if o.AuctionDuration == 0 {
		snap.Malformed = true
		return snap
	}

	duration := uint64(o.AuctionDuration)
	snap.AuctionStartPrice = auction.PriceAt(o, o.Slot, oraclePrice)
	snap.AuctionEndPrice = auction.PriceAt(o, o.Slot+duration-1, oraclePrice)
	snap.StepSize = auction.StepSize(o)

	for k := uint64(0); k < duration; k++ {
		if crosses(o.Direction, auction.PriceAt(o, o.Slot+k, oraclePrice), bid, ask) {
			snap.SlotsUntilCross = k
			snap.WillCross = true
			return snap
		}
	}

	// 拍卖带内没有穿越：看拍卖结束后的限价
	limit, ok := auction.LimitPrice(o, oraclePrice, ExpirySlot(o))
	if !ok || crosses(o.Direction, limit, bid, ask) {
		snap.SlotsUntilCross = duration + 1
		snap.WillCross = true
		snap.ViaLimit = true
	}
	return snap
}

func crosses(taker domain.Direction, price, bid, ask int64) bool {
	if taker == domain.DirectionShort {
		return price <= bid
	}
	return price >= ask
}
