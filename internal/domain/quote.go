package domain

import (
	"fmt"
	"strings"
)

// PriceType maker 报价模式
type PriceType uint8

const (
	// PriceTypeLimit Bid/Ask 为绝对价格
	PriceTypeLimit PriceType = iota
	// PriceTypeOracle Bid/Ask 为相对预言机价格的偏移
	PriceTypeOracle
)

func (p PriceType) String() string {
	if p == PriceTypeOracle {
		return "oracle"
	}
	return "limit"
}

// ParsePriceType 解析 "limit" / "oracle"
func ParsePriceType(s string) (PriceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "limit":
		return PriceTypeLimit, nil
	case "oracle":
		return PriceTypeOracle, nil
	default:
		return 0, fmt.Errorf("未知的报价模式: %q", s)
	}
}

// PostOnlyParam 成交指令的 post-only 模式
type PostOnlyParam uint8

const (
	PostOnlyNone PostOnlyParam = iota
	PostOnlyMustPostOnly
	PostOnlyTryPostOnly
	PostOnlySlide
)

func (p PostOnlyParam) String() string {
	switch p {
	case PostOnlyMustPostOnly:
		return "must_post_only"
	case PostOnlyTryPostOnly:
		return "try_post_only"
	case PostOnlySlide:
		return "slide"
	default:
		return "none"
	}
}

// ParsePostOnly 解析 post-only 模式
func ParsePostOnly(s string) (PostOnlyParam, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return PostOnlyNone, nil
	case "must_post_only", "must":
		return PostOnlyMustPostOnly, nil
	case "try_post_only", "try":
		return PostOnlyTryPostOnly, nil
	case "slide":
		return PostOnlySlide, nil
	default:
		return 0, fmt.Errorf("未知的 post-only 模式: %q", s)
	}
}

// QuoteParams maker 在某个市场上的报价参数。
// MinPosition/MaxPosition 为 base 精度的持仓上下限。
type QuoteParams struct {
	Bid          int64
	Ask          int64
	MinPosition  int64
	MaxPosition  int64
	PriceType    PriceType
	SubAccountID *uint16
	PostOnly     *PostOnlyParam
}

// ResolveBidAsk 把报价换算成绝对价格
func (q QuoteParams) ResolveBidAsk(oraclePrice int64) (bid, ask int64) {
	if q.PriceType == PriceTypeOracle {
		return oraclePrice + q.Bid, oraclePrice + q.Ask
	}
	return q.Bid, q.Ask
}

// PostOnlyOr 返回配置的 post-only 模式，未配置时返回 def
func (q QuoteParams) PostOnlyOr(def PostOnlyParam) PostOnlyParam {
	if q.PostOnly != nil {
		return *q.PostOnly
	}
	return def
}

// ExceedsRiskCap 判断 maker 当前持仓是否已经到达吃掉这笔 taker 订单方向上的上限。
// taker 做空时 maker 买入，持仓 >= MaxPosition 即拒绝；taker 做多时 maker 卖出，持仓 <= MinPosition 即拒绝。
func (q QuoteParams) ExceedsRiskCap(taker Direction, position int64) bool {
	if taker == DirectionShort {
		return position >= q.MaxPosition
	}
	return position <= q.MinPosition
}
