package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/ports"
)

// ErrRiskCapExceeded maker 持仓已经到达该方向上的上限
var ErrRiskCapExceeded = errors.New("position risk cap exceeded")

// PositionGuard 用 maker 实时持仓检查报价参数中的 min/max position。
type PositionGuard struct {
	positions ports.PositionSource
}

// NewPositionGuard positions 为 nil 时检查总是通过
func NewPositionGuard(positions ports.PositionSource) *PositionGuard {
	return &PositionGuard{positions: positions}
}

// Check 返回 ErrRiskCapExceeded 表示应放弃该订单；其他错误是持仓查询失败（资源错误）。
func (g *PositionGuard) Check(ctx context.Context, o domain.Order, q domain.QuoteParams) error {
	if g == nil || g.positions == nil {
		return nil
	}
	pos, err := g.positions.Position(ctx, o.Market(), q.SubAccountID)
	if err != nil {
		return fmt.Errorf("查询持仓失败: %w", err)
	}
	if q.ExceedsRiskCap(o.Direction, pos) {
		return fmt.Errorf("%w: market=%s taker=%s position=%s min=%s max=%s", ErrRiskCapExceeded,
			o.Market(), o.Direction, domain.FormatBase(pos), domain.FormatBase(q.MinPosition), domain.FormatBase(q.MaxPosition))
	}
	return nil
}
