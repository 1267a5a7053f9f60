// Package jitter 接收 taker 拍卖订单，去重后交给成交调度策略（Sniper / Shotgun）。
package jitter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/auction"
	"github.com/betbot/jitbot/internal/common"
	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/execution"
	"github.com/betbot/jitbot/internal/marketstate"
	"github.com/betbot/jitbot/internal/metrics"
	"github.com/betbot/jitbot/internal/ports"
)

var log = logrus.WithField("component", "jitter")

var (
	ErrAlreadyStarted = errors.New("jitter already started")
	ErrInvalidQuote   = errors.New("invalid quote params")
)

// Strategy 成交调度策略。OnOrderAccepted 在独立 goroutine 中执行，
// 返回即表示该订单的调度结束（注册表释放由 Jitter 负责）。
type Strategy interface {
	Name() string
	OnOrderAccepted(ctx context.Context, job execution.FillJob)
}

// Config intake 参数
type Config struct {
	// StatusInterval 周期性输出运行状态，<= 0 关闭
	StatusInterval time.Duration
}

// Deps 外部协作者。Registry / Quotes / Slots 必填，其余可为 nil。
type Deps struct {
	Registry   *execution.Registry
	Quotes     *marketstate.QuoteBook
	Slots      ports.SlotSource
	Markets    ports.MarketInfoSource
	Oracle     ports.OracleSource
	Auctions   ports.AuctionSource
	SignedMsgs ports.SignedMsgSource
	Accounts   ports.AccountResolver
	Decoder    SignedMsgDecoder
}

// Jitter 订单入口：校验、去重、单飞，然后把订单交给 Strategy。
type Jitter struct {
	cfg      Config
	deps     Deps
	strategy Strategy

	filterMu sync.RWMutex
	filter   ports.UserFilter

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statusOnce sync.Once
	accepted   atomic.Int64
}

func New(cfg Config, deps Deps, strategy Strategy) *Jitter {
	if deps.Decoder == nil {
		deps.Decoder = DefaultSignedMsgDecoder
	}
	return &Jitter{cfg: cfg, deps: deps, strategy: strategy}
}

// Start 注册到订单源并开始接收订单。ctx 取消等价于 Stop（不等待任务结束）。
func (j *Jitter) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return ErrAlreadyStarted
	}
	j.ctx, j.cancel = context.WithCancel(ctx)
	j.running = true
	runCtx := j.ctx
	j.mu.Unlock()

	if j.deps.Auctions != nil {
		j.deps.Auctions.OnAccountUpdate(j)
	}
	if j.deps.SignedMsgs != nil {
		j.deps.SignedMsgs.OnSignedMsgOrder(j)
	}
	if j.cfg.StatusInterval > 0 {
		common.StartLoopOnce(runCtx, &j.statusOnce, j.cfg.StatusInterval, j.statusLoop)
	}

	log.WithFields(logrus.Fields{
		"strategy": j.strategy.Name(),
		"markets":  len(j.deps.Quotes.Snapshot()),
	}).Info("🚀 Jitter 已启动")
	return nil
}

// Stop 停止接收订单，取消所有调度任务并等待退出（受 ctx 限制）。
func (j *Jitter) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	j.cancel()
	j.mu.Unlock()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("Jitter 已停止")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("等待调度任务退出超时: %w", ctx.Err())
	}
}

func (j *Jitter) Running() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.running
}

func (j *Jitter) StrategyName() string { return j.strategy.Name() }

// RegisterMarketQuote 设置/替换某市场的报价参数，下一次评估即生效。
func (j *Jitter) RegisterMarketQuote(market domain.MarketID, q domain.QuoteParams) error {
	if q.MinPosition > q.MaxPosition {
		return fmt.Errorf("%w: %s min_position %d > max_position %d", ErrInvalidQuote, market, q.MinPosition, q.MaxPosition)
	}
	j.deps.Quotes.Set(market, q)
	log.WithFields(logrus.Fields{
		"market": market.String(),
		"bid":    domain.FormatPrice(q.Bid),
		"ask":    domain.FormatPrice(q.Ask),
		"type":   q.PriceType.String(),
	}).Info("报价参数已更新")
	return nil
}

func (j *Jitter) UpdatePerpParams(marketIndex uint16, q domain.QuoteParams) error {
	return j.RegisterMarketQuote(domain.PerpMarket(marketIndex), q)
}

func (j *Jitter) UpdateSpotParams(marketIndex uint16, q domain.QuoteParams) error {
	return j.RegisterMarketQuote(domain.SpotMarket(marketIndex), q)
}

// RemoveMarketQuote 移除后，该市场新订单被拒绝，进行中的任务在下一次读取报价时放弃。
func (j *Jitter) RemoveMarketQuote(market domain.MarketID) {
	j.deps.Quotes.Delete(market)
	log.WithField("market", market.String()).Info("报价参数已移除")
}

func (j *Jitter) Quotes() []marketstate.MarketQuote {
	return j.deps.Quotes.Snapshot()
}

// SetUserFilter f 返回 true 表示跳过该订单；传 nil 取消过滤
func (j *Jitter) SetUserFilter(f ports.UserFilter) {
	j.filterMu.Lock()
	j.filter = f
	j.filterMu.Unlock()
}

// AuctionInfo 进行中调度任务的快照
type AuctionInfo struct {
	Signature string    `json:"signature"`
	Market    string    `json:"market"`
	Strategy  string    `json:"strategy"`
	State     string    `json:"state"`
	Attempts  int       `json:"attempts"`
	StartedAt time.Time `json:"started_at"`
}

// Ongoing 按开始时间排序
func (j *Jitter) Ongoing() []AuctionInfo {
	tasks := j.deps.Registry.Tasks()
	out := make([]AuctionInfo, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, AuctionInfo{
			Signature: t.Signature.String(),
			Market:    t.Market.String(),
			Strategy:  t.Strategy,
			State:     string(t.State()),
			Attempts:  t.Attempts(),
			StartedAt: t.StartedAt,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.Before(out[b].StartedAt) })
	return out
}

// Accepted 启动以来被接收的订单数
func (j *Jitter) Accepted() int64 { return j.accepted.Load() }

// OnAccountUpdate 实现 ports.AccountUpdateHandler
func (j *Jitter) OnAccountUpdate(_ context.Context, update ports.AccountUpdate) {
	slot := update.Slot
	if slot == 0 {
		slot = j.deps.Slots.CurrentSlot()
	}
	for _, o := range update.Taker.Orders {
		j.consider(candidate{
			order:    o,
			taker:    update.Taker,
			takerKey: update.TakerKey,
			slot:     slot,
		})
	}
}

type candidate struct {
	order     domain.Order
	taker     domain.UserAccount
	takerKey  string
	slot      uint64
	signedMsg *domain.SignedMsgOrder
}

// consider 单个订单的 intake 流水线。检查顺序固定；
// 标记 seen + in-flight 在启动 goroutine 之前同步完成。
func (j *Jitter) consider(c candidate) {
	o := c.order
	metrics.OrdersSeen.Add(1)

	if !j.Running() {
		j.reject("not_running")
		return
	}
	if !o.IsOpen() {
		j.reject("not_open")
		return
	}
	if !auction.HasAuctionPrice(o, c.slot) {
		j.reject("no_auction")
		return
	}
	if j.filtered(c) {
		j.reject("filtered")
		return
	}

	sig := domain.NewOrderSignature(c.takerKey, o.OrderID)
	if err := j.deps.Registry.Check(sig); err != nil {
		j.rejectDuplicate(err)
		return
	}

	market := o.Market()
	if _, ok := j.deps.Quotes.Get(market); !ok {
		j.reject("unregistered")
		return
	}
	if j.belowMinSize(o) {
		j.reject("below_min_size")
		return
	}

	task := execution.NewTask(sig, market, j.strategy.Name())
	if err := j.deps.Registry.TryAcquire(task); err != nil {
		j.rejectDuplicate(err)
		return
	}
	if !j.spawn(execution.FillJob{
		Task:      task,
		Order:     o,
		TakerKey:  c.takerKey,
		Taker:     c.taker,
		SignedMsg: c.signedMsg,
	}) {
		j.deps.Registry.Release(sig)
		j.reject("not_running")
		return
	}

	j.accepted.Add(1)
	metrics.OrdersAccepted.Add(1)
	log.WithFields(logrus.Fields{
		"sig":        sig.String(),
		"market":     market.String(),
		"direction":  o.Direction.String(),
		"slot":       c.slot,
		"preconfirm": c.signedMsg != nil,
	}).Info("📥 接收拍卖订单")
}

func (j *Jitter) filtered(c candidate) bool {
	j.filterMu.RLock()
	f := j.filter
	j.filterMu.RUnlock()
	return f != nil && f(c.taker, c.takerKey, c.order)
}

// belowMinSize 剩余数量 <= 最小下单量时拒绝；市场信息缺失时只拒绝已完全成交的订单
func (j *Jitter) belowMinSize(o domain.Order) bool {
	var minSize uint64
	if j.deps.Markets != nil {
		if v, ok := j.deps.Markets.MinOrderSize(o.Market()); ok {
			minSize = v
		}
	}
	return o.Remaining() <= minSize
}

// spawn 启动调度任务。任务的每条退出路径（包括 panic）都会释放注册表。
func (j *Jitter) spawn(job execution.FillJob) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if !j.running {
		return false
	}
	ctx := j.ctx
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer j.deps.Registry.Release(job.Task.Signature)
		defer func() {
			if r := recover(); r != nil {
				metrics.TaskPanics.Add(1)
				log.WithField("sig", job.Task.Signature.String()).Errorf("调度任务 panic: %v", r)
			}
		}()
		j.strategy.OnOrderAccepted(ctx, job)
	}()
	return true
}

func (j *Jitter) reject(reason string) {
	metrics.OrdersRejected.Add(reason, 1)
}

func (j *Jitter) rejectDuplicate(err error) {
	if errors.Is(err, execution.ErrDuplicateInFlight) {
		j.reject("in_flight")
		return
	}
	j.reject("seen")
}

func (j *Jitter) statusLoop(ctx context.Context, tickC <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tickC:
			log.WithFields(logrus.Fields{
				"strategy":  j.strategy.Name(),
				"in_flight": j.deps.Registry.Len(),
				"accepted":  j.accepted.Load(),
				"slot":      j.deps.Slots.CurrentSlot(),
			}).Info("📊 运行状态")
		}
	}
}
