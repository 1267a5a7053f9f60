package crossing

import (
	"errors"
	"fmt"

	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/marketstate"
	"github.com/betbot/jitbot/internal/ports"
)

// ErrMarketNotRegistered 市场没有报价参数
var ErrMarketNotRegistered = errors.New("market not registered")

// Predictor 用当前报价与预言机价格重新评估订单
type Predictor struct {
	quotes *marketstate.QuoteBook
	oracle ports.OracleSource
}

func NewPredictor(quotes *marketstate.QuoteBook, oracle ports.OracleSource) *Predictor {
	return &Predictor{quotes: quotes, oracle: oracle}
}

// Evaluate 返回的错误都属于资源错误（报价被移除、预言机不可用），调用方应放弃该订单。
func (p *Predictor) Evaluate(o domain.Order) (Snapshot, domain.QuoteParams, error) {
	q, ok := p.quotes.Get(o.Market())
	if !ok {
		return Snapshot{}, q, fmt.Errorf("%w: %s", ErrMarketNotRegistered, o.Market())
	}
	oraclePrice, err := p.oracle.OraclePrice(o.Market())
	if err != nil {
		return Snapshot{}, q, fmt.Errorf("获取预言机价格失败: %w", err)
	}
	return Predict(o, q, oraclePrice), q, nil
}
