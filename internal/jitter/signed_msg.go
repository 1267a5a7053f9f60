package jitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/auction"
	"github.com/betbot/jitbot/internal/domain"
)

var ErrIncompleteSignedMsg = errors.New("signed msg order missing auction params")

// SignedMsgDecoder 把预确认订单消息转换成等价的 Order 快照。
// slot 为当前 slot，oraclePrice 为该市场当前预言机价格。
type SignedMsgDecoder func(msg domain.SignedMsgOrder, slot uint64, oraclePrice int64) (domain.Order, error)

// DefaultSignedMsgDecoder 预确认订单只支持永续市场；订单号由 uuid 折算，
// 限价取当前 slot 的拍卖价格。
func DefaultSignedMsgDecoder(msg domain.SignedMsgOrder, slot uint64, oraclePrice int64) (domain.Order, error) {
	p := msg.Params
	if p.AuctionDuration == nil || p.AuctionStartPrice == nil || p.AuctionEndPrice == nil {
		return domain.Order{}, fmt.Errorf("%w: uuid=%s", ErrIncompleteSignedMsg, msg.UUID)
	}
	o := domain.Order{
		OrderID:           domain.UUIDToOrderID(msg.UUID),
		Slot:              msg.Slot,
		MarketIndex:       p.MarketIndex,
		MarketType:        domain.MarketTypePerp,
		OrderType:         p.OrderType,
		Direction:         p.Direction,
		Status:            domain.OrderStatusOpen,
		BaseAssetAmount:   p.BaseAssetAmount,
		AuctionDuration:   *p.AuctionDuration,
		AuctionStartPrice: *p.AuctionStartPrice,
		AuctionEndPrice:   *p.AuctionEndPrice,
	}
	if p.OraclePriceOffset != nil {
		o.OraclePriceOffset = *p.OraclePriceOffset
	}
	o.Price = auction.PriceAt(o, slot, oraclePrice)
	return o, nil
}

// OnSignedMsgOrder 实现 ports.SignedMsgHandler：解码后进入与普通订单相同的 intake 流水线
func (j *Jitter) OnSignedMsgOrder(ctx context.Context, msg domain.SignedMsgOrder) {
	entry := log.WithFields(logrus.Fields{"uuid": msg.UUID, "signer": msg.SigningAuthority})
	if j.deps.Accounts == nil {
		entry.Debug("未配置账户解析器，忽略预确认订单")
		j.reject("no_account_resolver")
		return
	}

	slot := j.deps.Slots.CurrentSlot()
	market := domain.PerpMarket(msg.Params.MarketIndex)
	var oraclePrice int64
	if j.deps.Oracle != nil {
		p, err := j.deps.Oracle.OraclePrice(market)
		if err != nil {
			entry.WithError(err).Debug("预确认订单：预言机价格不可用")
			j.reject("oracle_unavailable")
			return
		}
		oraclePrice = p
	}

	o, err := j.deps.Decoder(msg, slot, oraclePrice)
	if err != nil {
		entry.WithError(err).Warn("解码预确认订单失败")
		j.reject("decode_failed")
		return
	}

	takerKey, taker, err := j.deps.Accounts.TakerAccount(ctx, msg.TakerAuthority, msg.SubAccountID)
	if err != nil {
		entry.WithError(err).Warn("解析 taker 账户失败")
		j.reject("account_unresolved")
		return
	}

	signed := msg
	j.consider(candidate{
		order:     o,
		taker:     taker,
		takerKey:  takerKey,
		slot:      slot,
		signedMsg: &signed,
	})
}
