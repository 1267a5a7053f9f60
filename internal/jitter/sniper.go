package jitter

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/auction"
	"github.com/betbot/jitbot/internal/crossing"
	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/execution"
	"github.com/betbot/jitbot/internal/metrics"
	"github.com/betbot/jitbot/internal/ports"
	"github.com/betbot/jitbot/internal/risk"
)

const SniperName = "sniper"

// SniperConfig 零值字段使用默认值
type SniperConfig struct {
	MaxAttempts        int
	RetryDelay         time.Duration
	Cooldown           time.Duration
	ReevaluateInterval time.Duration
	RecheckRisk        bool
}

func (c SniperConfig) withDefaults() SniperConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 3 * time.Second
	}
	if c.ReevaluateInterval <= 0 {
		c.ReevaluateInterval = 50 * time.Millisecond
	}
	return c
}

// Sniper 预测穿越 slot，等到该 slot 再提交。
//
// 状态：PREDICT -> WAIT -> (CROSSED | EXPIRED) -> SUBMIT -> DONE
type Sniper struct {
	cfg       SniperConfig
	predictor *crossing.Predictor
	filler    *execution.Filler
	guard     *risk.PositionGuard
	slots     ports.SlotSource
}

func NewSniper(cfg SniperConfig, predictor *crossing.Predictor, filler *execution.Filler, guard *risk.PositionGuard, slots ports.SlotSource) *Sniper {
	return &Sniper{
		cfg:       cfg.withDefaults(),
		predictor: predictor,
		filler:    filler,
		guard:     guard,
		slots:     slots,
	}
}

func (s *Sniper) Name() string { return SniperName }

func (s *Sniper) Config() SniperConfig { return s.cfg }

func (s *Sniper) policy() execution.RetryPolicy {
	return execution.RetryPolicy{
		MaxAttempts:     s.cfg.MaxAttempts,
		RetryDelay:      s.cfg.RetryDelay,
		Cooldown:        s.cfg.Cooldown,
		DefaultPostOnly: domain.PostOnlyNone,
		RecheckRisk:     s.cfg.RecheckRisk,
	}
}

func (s *Sniper) OnOrderAccepted(ctx context.Context, job execution.FillJob) {
	o := job.Order
	entry := log.WithFields(logrus.Fields{
		"sig":      job.Task.Signature.String(),
		"market":   o.Market().String(),
		"strategy": SniperName,
	})

	job.Task.SetState(execution.TaskPredict)
	snap, q, err := s.predictor.Evaluate(o)
	if err != nil {
		entry.WithError(err).Warn("评估拍卖失败，放弃订单")
		metrics.Abandons.Add("resource", 1)
		return
	}
	if snap.Malformed {
		entry.Warn("拍卖参数非法（duration=0），放弃订单")
		metrics.Abandons.Add("malformed", 1)
		return
	}

	if err := s.guard.Check(ctx, o, q); err != nil {
		if errors.Is(err, risk.ErrRiskCapExceeded) {
			entry.Info(err.Error())
			metrics.Abandons.Add("risk", 1)
		} else {
			entry.WithError(err).Warn("风控检查失败，放弃订单")
			metrics.Abandons.Add("resource", 1)
		}
		return
	}

	entry.WithFields(logrus.Fields{
		"taker":        o.Direction.String(),
		"order_slot":   o.Slot,
		"current_slot": s.slots.CurrentSlot(),
		"target_slot":  snap.TargetSlot(o),
	}).Infof("预测: %s", snap)

	job.Task.SetState(execution.TaskWait)
	res := s.wait(ctx, o, snap)
	switch res.kind {
	case waitCanceled:
		return
	case waitAbandoned:
		entry.WithError(res.err).Warn("等待期间资源不可用，放弃订单")
		metrics.Abandons.Add("resource", 1)
		return
	case waitExpired:
		entry.WithField("slot", res.slot).Info("拍卖结束仍未穿越")
		metrics.AuctionsExpired.Add(1)
		return
	}

	expected := res.snap.AuctionStartPrice + int64(res.snap.SlotsUntilCross)*res.snap.StepSize
	entry.WithFields(logrus.Fields{
		"expected_price": domain.FormatPrice(expected),
		"actual_price":   domain.FormatPrice(auction.PriceAt(o, res.slot, res.snap.OraclePrice)),
		"target_slot":    res.snap.TargetSlot(o),
		"got_slot":       res.slot,
		"bid":            domain.FormatPrice(res.snap.Bid),
		"ask":            domain.FormatPrice(res.snap.Ask),
	}).Info("🎯 到达穿越 slot，开始提交")

	out := s.filler.Fill(ctx, job, s.policy())
	entry.Infof("调度结束: %s", out)
}

type waitKind uint8

const (
	waitCrossed waitKind = iota
	waitExpired
	waitCanceled
	waitAbandoned
)

type waitResult struct {
	kind waitKind
	slot uint64
	snap crossing.Snapshot
	err  error
}

// wait 在 slot 推进通知、周期性重新评估、ctx 取消三者之间 select。
// 重新评估会随预言机/报价变化移动目标 slot，评估失败即放弃。订阅与 ticker 在返回前释放。
func (s *Sniper) wait(ctx context.Context, o domain.Order, snap crossing.Snapshot) waitResult {
	sub := s.slots.Subscribe()
	defer sub.Close()
	ticker := time.NewTicker(s.cfg.ReevaluateInterval)
	defer ticker.Stop()

	expiry := crossing.ExpirySlot(o)
	for {
		slot := s.slots.CurrentSlot()
		if snap.WillCross && slot >= snap.TargetSlot(o) {
			return waitResult{kind: waitCrossed, slot: slot, snap: snap}
		}
		if !snap.WillCross && slot >= expiry {
			return waitResult{kind: waitExpired, slot: slot, snap: snap}
		}

		select {
		case <-ctx.Done():
			return waitResult{kind: waitCanceled, slot: slot, snap: snap, err: ctx.Err()}
		case <-sub.C():
		case <-ticker.C:
			// 报价被移除、预言机缺失或过期：资源错误，放弃
			next, _, err := s.predictor.Evaluate(o)
			if err != nil {
				return waitResult{kind: waitAbandoned, slot: slot, snap: snap, err: err}
			}
			if next.TargetSlot(o) != snap.TargetSlot(o) || next.WillCross != snap.WillCross {
				log.WithFields(logrus.Fields{
					"market": o.Market().String(),
					"from":   snap.TargetSlot(o),
					"to":     next.TargetSlot(o),
				}).Debug("目标 slot 已变化")
			}
			snap = next
		}
	}
}
