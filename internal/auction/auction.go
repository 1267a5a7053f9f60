// Package auction 荷兰式拍卖价格模型（纯函数）。
//
// 拍卖窗口为 [Slot, Slot+AuctionDuration-1]，窗口内在起止价之间线性插值，
// 插值分母为 AuctionDuration-1；窗口结束后订单回落到静态限价。
package auction

import "github.com/betbot/jitbot/internal/domain"

// IsComplete 拍卖是否已结束（观测 slot 已越过窗口）
func IsComplete(o domain.Order, slot uint64) bool {
	if o.AuctionDuration == 0 {
		return true
	}
	return elapsed(o, slot) >= uint64(o.AuctionDuration)
}

// HasAuctionPrice 观测 slot 时订单是否仍处于有效拍卖中
func HasAuctionPrice(o domain.Order, slot uint64) bool {
	if IsComplete(o, slot) {
		return false
	}
	return o.AuctionStartPrice != 0 || o.AuctionEndPrice != 0
}

// StepSize 每个 slot 的价格变化量。duration <= 1 时为 0。
func StepSize(o domain.Order) int64 {
	if o.AuctionDuration <= 1 {
		return 0
	}
	return (o.AuctionEndPrice - o.AuctionStartPrice) / int64(o.AuctionDuration-1)
}

// PriceAt 计算 slot 时刻的拍卖价格。
// slot 会被夹到窗口内；oracle 类订单的起止价是偏移，叠加在查询时刻的 oraclePrice 上。
func PriceAt(o domain.Order, slot uint64, oraclePrice int64) int64 {
	p := interpolate(o, slot)
	if o.OrderType == domain.OrderTypeOracle {
		return oraclePrice + p
	}
	return p
}

// LimitPrice 订单在 slot 时刻的有效限价。
//   - 拍卖进行中：拍卖价
//   - 拍卖结束后：有预言机偏移时为 oracle+offset，否则为静态限价
//   - 都没有时返回 false（订单不会仅凭价格独立成交）
func LimitPrice(o domain.Order, oraclePrice int64, slot uint64) (int64, bool) {
	if HasAuctionPrice(o, slot) {
		return PriceAt(o, slot, oraclePrice), true
	}
	if o.OraclePriceOffset != 0 {
		return oraclePrice + o.OraclePriceOffset, true
	}
	if o.Price != 0 {
		return o.Price, true
	}
	return 0, false
}

func interpolate(o domain.Order, slot uint64) int64 {
	if o.AuctionDuration <= 1 {
		return o.AuctionStartPrice
	}
	last := uint64(o.AuctionDuration - 1)
	k := elapsed(o, slot)
	if k >= last {
		return o.AuctionEndPrice
	}
	delta := o.AuctionEndPrice - o.AuctionStartPrice
	return o.AuctionStartPrice + delta*int64(k)/int64(last)
}

func elapsed(o domain.Order, slot uint64) uint64 {
	if slot <= o.Slot {
		return 0
	}
	return slot - o.Slot
}
