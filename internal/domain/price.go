package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// 定点精度：
//   - 价格：1e6（1.000000 = 1_000_000）
//   - 数量：1e9（base 资产）
const (
	PricePrecisionExp = 6
	BasePrecisionExp  = 9

	PricePrecision int64 = 1_000_000
	BasePrecision  int64 = 1_000_000_000
)

// ParsePrice 把 "101.25" 这样的十进制字符串换算成 1e6 定点价格（截断多余精度）
func ParsePrice(s string) (int64, error) {
	return parseFixed(s, PricePrecisionExp)
}

// ParseBase 把十进制数量换算成 1e9 定点数量
func ParseBase(s string) (int64, error) {
	return parseFixed(s, BasePrecisionExp)
}

// FormatPrice 以十进制字符串展示定点价格
func FormatPrice(p int64) string {
	return decimal.New(p, -PricePrecisionExp).String()
}

// FormatBase 以十进制字符串展示定点数量
func FormatBase(b int64) string {
	return decimal.New(b, -BasePrecisionExp).String()
}

// PriceToDecimal 转换为 decimal（用于日志/接口输出）
func PriceToDecimal(p int64) decimal.Decimal {
	return decimal.New(p, -PricePrecisionExp)
}

func parseFixed(s string, exp int32) (int64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("无法解析数值 %q: %w", s, err)
	}
	return d.Shift(exp).Truncate(0).IntPart(), nil
}
