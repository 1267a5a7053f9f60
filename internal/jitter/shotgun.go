package jitter

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/execution"
	"github.com/betbot/jitbot/internal/marketstate"
	"github.com/betbot/jitbot/internal/metrics"
)

const ShotgunName = "shotgun"

type ShotgunConfig struct {
	Cooldown time.Duration
	// RetryDelay 两次尝试之间的间隔，默认 0（假定每次提交约耗时一个 slot）
	RetryDelay  time.Duration
	PostOnly    domain.PostOnlyParam
	RecheckRisk bool
}

// DefaultShotgunConfig post-only 默认 MustPostOnly，冷却 10s
func DefaultShotgunConfig() ShotgunConfig {
	return ShotgunConfig{Cooldown: 10 * time.Second, PostOnly: domain.PostOnlyMustPostOnly}
}

// Shotgun 不做预测：拍卖期间每个 slot 提交一次，依赖 post-only 拒绝过早的成交。
type Shotgun struct {
	cfg    ShotgunConfig
	quotes *marketstate.QuoteBook
	filler *execution.Filler
}

func NewShotgun(cfg ShotgunConfig, quotes *marketstate.QuoteBook, filler *execution.Filler) *Shotgun {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	return &Shotgun{cfg: cfg, quotes: quotes, filler: filler}
}

func (s *Shotgun) Name() string { return ShotgunName }

func (s *Shotgun) Config() ShotgunConfig { return s.cfg }

func (s *Shotgun) OnOrderAccepted(ctx context.Context, job execution.FillJob) {
	o := job.Order
	entry := log.WithFields(logrus.Fields{
		"sig":      job.Task.Signature.String(),
		"market":   o.Market().String(),
		"strategy": ShotgunName,
	})

	if o.AuctionDuration == 0 {
		entry.Warn("拍卖参数非法（duration=0），放弃订单")
		metrics.Abandons.Add("malformed", 1)
		return
	}
	q, ok := s.quotes.Get(o.Market())
	if !ok {
		metrics.Abandons.Add("unregistered", 1)
		return
	}
	if noRoom(o.Direction, q) {
		entry.WithFields(logrus.Fields{
			"taker": o.Direction.String(),
			"min":   domain.FormatBase(q.MinPosition),
			"max":   domain.FormatBase(q.MaxPosition),
		}).Info("报价持仓上限为 0，放弃订单")
		metrics.Abandons.Add("zero_position", 1)
		return
	}

	job.Task.SetState(execution.TaskSubmit)
	out := s.filler.Fill(ctx, job, execution.RetryPolicy{
		MaxAttempts:     int(o.AuctionDuration),
		RetryDelay:      s.cfg.RetryDelay,
		Cooldown:        s.cfg.Cooldown,
		DefaultPostOnly: s.cfg.PostOnly,
		RecheckRisk:     s.cfg.RecheckRisk,
	})
	entry.Infof("调度结束: %s", out)
}

// noRoom 从零持仓出发该方向也无法成交：maker 买入需要 max > 0，卖出需要 min < 0
func noRoom(taker domain.Direction, q domain.QuoteParams) bool {
	if taker == domain.DirectionShort {
		return q.MaxPosition <= 0
	}
	return q.MinPosition >= 0
}
