package domain

import (
	"fmt"
	"strings"
)

// MarketType 市场类型
type MarketType uint8

const (
	MarketTypePerp MarketType = iota
	MarketTypeSpot
)

func (t MarketType) String() string {
	if t == MarketTypeSpot {
		return "spot"
	}
	return "perp"
}

// ParseMarketType 解析 "perp" / "spot"
func ParseMarketType(s string) (MarketType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "perp", "perpetual":
		return MarketTypePerp, nil
	case "spot":
		return MarketTypeSpot, nil
	default:
		return 0, fmt.Errorf("未知的市场类型: %q", s)
	}
}

// MarketID 市场标识（类型 + 索引）
type MarketID struct {
	Type  MarketType
	Index uint16
}

func (m MarketID) String() string {
	return fmt.Sprintf("%s-%d", m.Type, m.Index)
}

// PerpMarket 便捷构造
func PerpMarket(index uint16) MarketID { return MarketID{Type: MarketTypePerp, Index: index} }

// SpotMarket 便捷构造
func SpotMarket(index uint16) MarketID { return MarketID{Type: MarketTypeSpot, Index: index} }
