package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/common"
	"github.com/betbot/jitbot/internal/crossing"
	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/events"
	"github.com/betbot/jitbot/internal/journal"
	"github.com/betbot/jitbot/internal/marketstate"
	"github.com/betbot/jitbot/internal/metrics"
	"github.com/betbot/jitbot/internal/ports"
	"github.com/betbot/jitbot/internal/risk"
)

var log = logrus.WithField("component", "execution")

// Result 一个订单成交序列的最终结果
type Result uint8

const (
	ResultFilled Result = iota
	// ResultAbandoned 立即放弃（不可成交 / 资源错误 / 风控 / 熔断）
	ResultAbandoned
	// ResultCooldownAbandoned 未分类错误，冷却后放弃
	ResultCooldownAbandoned
	// ResultExhausted 重试次数用尽
	ResultExhausted
	// ResultCanceled 进程停止
	ResultCanceled
)

func (r Result) String() string {
	switch r {
	case ResultFilled:
		return "filled"
	case ResultAbandoned:
		return "abandoned"
	case ResultCooldownAbandoned:
		return "cooldown_abandoned"
	case ResultExhausted:
		return "exhausted"
	default:
		return "canceled"
	}
}

// Outcome Fill 的返回值
type Outcome struct {
	Result   Result
	Attempts int
	TxSig    string
	Class    ErrorClass
	Err      error
}

// RetryPolicy 每种调度策略的提交节奏
type RetryPolicy struct {
	MaxAttempts     int
	RetryDelay      time.Duration // 快速重试之间的间隔
	Cooldown        time.Duration // 成功后 / 未分类错误后的冷却
	DefaultPostOnly domain.PostOnlyParam
	// RecheckRisk 每次提交前重新检查持仓上限
	RecheckRisk bool
}

// FillJob 一个已被接收的订单
type FillJob struct {
	Task      *Task
	Order     domain.Order
	TakerKey  string
	Taker     domain.UserAccount
	SignedMsg *domain.SignedMsgOrder // 非 nil 表示预确认订单
}

// FillerConfig 所有成交请求共用的参数
type FillerConfig struct {
	ComputeUnits     uint32
	ComputeUnitPrice uint64
}

// FillerDeps Filler 依赖的外部协作者；除 Client 与 Quotes 外均可为 nil
type FillerDeps struct {
	Client    ports.FillClient
	Quotes    *marketstate.QuoteBook
	Referrers ports.ReferrerResolver
	Guard     *risk.PositionGuard
	Breaker   *risk.CircuitBreaker
	Slots     ports.SlotSource
	Journal   journal.Sink
}

// Filler 提交成交并按错误分类决定重试/放弃
type Filler struct {
	cfg  FillerConfig
	deps FillerDeps
}

func NewFiller(cfg FillerConfig, deps FillerDeps) *Filler {
	if deps.Journal == nil {
		deps.Journal = journal.NopSink{}
	}
	return &Filler{cfg: cfg, deps: deps}
}

// Fill 对一个订单执行完整的提交序列（最多 policy.MaxAttempts 次）。
// 报价参数每次尝试前重新读取，已经发出的请求不受后续更新影响。
func (f *Filler) Fill(ctx context.Context, job FillJob, policy RetryPolicy) Outcome {
	entry := log.WithFields(logrus.Fields{
		"sig":      job.Task.Signature,
		"market":   job.Order.Market().String(),
		"strategy": job.Task.Strategy,
	})

	referrer, err := f.resolveReferrer(ctx, job)
	if err != nil {
		entry.WithError(err).Warn("获取推荐人信息失败，放弃订单")
		metrics.Abandons.Add("referrer", 1)
		return Outcome{Result: ResultAbandoned, Err: err}
	}

	last := Outcome{Result: ResultExhausted}
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Outcome{Result: ResultCanceled, Attempts: attempt - 1, Err: ctx.Err()}
		}
		if err := f.deps.Breaker.AllowTrading(); err != nil {
			entry.Warn("断路器打开，放弃订单")
			metrics.Abandons.Add("breaker", 1)
			return Outcome{Result: ResultAbandoned, Attempts: attempt - 1, Err: err}
		}
		q, ok := f.deps.Quotes.Get(job.Order.Market())
		if !ok {
			entry.Warn("市场报价已移除，放弃订单")
			metrics.Abandons.Add("unregistered", 1)
			return Outcome{Result: ResultAbandoned, Attempts: attempt - 1, Err: crossing.ErrMarketNotRegistered}
		}
		if policy.RecheckRisk {
			if err := f.deps.Guard.Check(ctx, job.Order, q); err != nil {
				entry.WithError(err).Info("提交前风控检查未通过，放弃订单")
				metrics.Abandons.Add("risk", 1)
				return Outcome{Result: ResultAbandoned, Attempts: attempt - 1, Err: err}
			}
		}

		job.Task.SetState(TaskSubmit)
		job.Task.IncAttempts()
		txSig, req, err := f.submit(ctx, job, q, referrer, policy)
		class := Classify(err)
		f.record(ctx, job, req, attempt, txSig, class, err)
		metrics.FillAttempts.Add(1)

		if err == nil {
			f.deps.Breaker.OnSuccess()
			metrics.Fills.Add(1)
			entry.WithFields(logrus.Fields{"tx": txSig, "attempt": attempt}).Info("✅ 成交提交成功")
			job.Task.SetState(TaskCooling)
			common.Sleep(ctx, policy.Cooldown)
			return Outcome{Result: ResultFilled, Attempts: attempt, TxSig: txSig}
		}

		metrics.FillErrors.Add(class.String(), 1)
		last = Outcome{Result: ResultExhausted, Attempts: attempt, Class: class, Err: err}
		switch {
		case class.Retryable():
			entry.WithFields(logrus.Fields{"attempt": attempt, "class": class.String()}).Debugf("成交未通过，重试: %v", err)
			if attempt < policy.MaxAttempts && !common.Sleep(ctx, policy.RetryDelay) {
				return Outcome{Result: ResultCanceled, Attempts: attempt, Class: class, Err: ctx.Err()}
			}
		case class == ClassUnfillable:
			entry.WithField("attempt", attempt).Infof("订单已不可成交，放弃: %v", err)
			metrics.Abandons.Add("unfillable", 1)
			return Outcome{Result: ResultAbandoned, Attempts: attempt, Class: class, Err: err}
		default:
			f.deps.Breaker.OnError()
			entry.WithField("attempt", attempt).Errorf("❌ 成交提交失败（未分类），冷却后放弃: %v", err)
			metrics.Abandons.Add("unclassified", 1)
			job.Task.SetState(TaskCooling)
			common.Sleep(ctx, policy.Cooldown)
			return Outcome{Result: ResultCooldownAbandoned, Attempts: attempt, Class: class, Err: err}
		}
	}

	entry.WithField("attempts", last.Attempts).Info("重试次数用尽，放弃订单")
	metrics.Abandons.Add("exhausted", 1)
	return last
}

func (f *Filler) resolveReferrer(ctx context.Context, job FillJob) (*domain.ReferrerInfo, error) {
	if f.deps.Referrers == nil {
		return nil, nil
	}
	return f.deps.Referrers.ReferrerInfo(ctx, job.Taker.Authority)
}

// BuildRequest 用当前报价构造成交请求
func (f *Filler) BuildRequest(job FillJob, q domain.QuoteParams, referrer *domain.ReferrerInfo, policy RetryPolicy) ports.FillRequest {
	return ports.FillRequest{
		RequestID:        uuid.NewString(),
		TakerKey:         job.TakerKey,
		Taker:            job.Taker,
		TakerOrderID:     job.Order.OrderID,
		MarketType:       job.Order.MarketType,
		MarketIndex:      job.Order.MarketIndex,
		MaxPosition:      q.MaxPosition,
		MinPosition:      q.MinPosition,
		Bid:              q.Bid,
		Ask:              q.Ask,
		PostOnly:         q.PostOnlyOr(policy.DefaultPostOnly),
		PriceType:        q.PriceType,
		Referrer:         referrer,
		SubAccountID:     q.SubAccountID,
		ComputeUnits:     f.cfg.ComputeUnits,
		ComputeUnitPrice: f.cfg.ComputeUnitPrice,
	}
}

func (f *Filler) submit(ctx context.Context, job FillJob, q domain.QuoteParams, referrer *domain.ReferrerInfo, policy RetryPolicy) (string, ports.FillRequest, error) {
	req := f.BuildRequest(job, q, referrer, policy)
	if job.SignedMsg == nil {
		txSig, err := f.deps.Client.SubmitFill(ctx, req)
		return txSig, req, err
	}
	txSig, err := f.deps.Client.SubmitSignedMsgFill(ctx, ports.SignedMsgFillRequest{
		FillRequest:      req,
		SigningAuthority: job.SignedMsg.SigningAuthority,
		SignedMsg:        *job.SignedMsg,
	})
	return txSig, req, err
}

func (f *Filler) record(ctx context.Context, job FillJob, req ports.FillRequest, attempt int, txSig string, class ErrorClass, err error) {
	ev := events.FillAttemptEvent{
		RequestID:  req.RequestID,
		Signature:  job.Task.Signature.String(),
		Strategy:   job.Task.Strategy,
		Market:     job.Order.Market().String(),
		TakerKey:   job.TakerKey,
		OrderID:    job.Order.OrderID,
		Attempt:    attempt,
		Bid:        req.Bid,
		Ask:        req.Ask,
		PostOnly:   req.PostOnly.String(),
		PreConfirm: job.SignedMsg != nil,
		TxSig:      txSig,
		Timestamp:  time.Now(),
	}
	if f.deps.Slots != nil {
		ev.Slot = f.deps.Slots.CurrentSlot()
	}
	if err != nil {
		ev.ErrorClass = class.String()
		ev.Error = err.Error()
	}
	// 审计日志失败不影响成交流程
	if jerr := f.deps.Journal.Record(context.WithoutCancel(ctx), ev); jerr != nil {
		metrics.JournalErrors.Add(1)
		log.WithError(jerr).Warn("写入成交日志失败")
	}
}

// String 便于日志输出
func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s attempts=%d class=%s err=%v", o.Result, o.Attempts, o.Class, o.Err)
	}
	return fmt.Sprintf("%s attempts=%d tx=%s", o.Result, o.Attempts, o.TxSig)
}
