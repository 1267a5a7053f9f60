package risk

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ErrCircuitBreakerOpen 表示断路器已打开，禁止继续提交成交。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// CircuitBreakerConfig 断路器配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveErrors 连续“未分类”提交错误上限（网络/签名/账户类系统性错误）。
	MaxConsecutiveErrors int64

	// AutoResumeAfter 自动熔断后多久自动恢复；<= 0 表示只能人工恢复。
	AutoResumeAfter time.Duration
}

// CircuitBreaker 高频快路径使用原子变量。
//
// 说明：
// - 价格/预言机过期类错误属于正常竞争，不计入连续错误
// - 人工 Halt 不会自动恢复
type CircuitBreaker struct {
	halted     atomic.Bool
	manualHalt atomic.Bool
	haltedAtMs atomic.Int64

	consecutiveErrors atomic.Int64

	maxConsecutiveErrors atomic.Int64
	autoResumeAfterMs    atomic.Int64
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{}
	cb.SetConfig(cfg)
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveErrors.Store(cfg.MaxConsecutiveErrors)
	cb.autoResumeAfterMs.Store(cfg.AutoResumeAfter.Milliseconds())
}

// Halt 手动熔断（如人工介入或检测到严重异常）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.manualHalt.Store(true)
	cb.trip()
}

// Resume 手动恢复（会同时清空连续错误计数）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.manualHalt.Store(false)
	cb.halted.Store(false)
	cb.consecutiveErrors.Store(0)
}

// Halted 当前是否处于熔断状态（不触发自动恢复判断）
func (cb *CircuitBreaker) Halted() bool {
	if cb == nil {
		return false
	}
	return cb.halted.Load()
}

// ConsecutiveErrors 当前连续错误数
func (cb *CircuitBreaker) ConsecutiveErrors() int64 {
	if cb == nil {
		return 0
	}
	return cb.consecutiveErrors.Load()
}

// AllowTrading 快路径检查是否允许提交。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}

	if cb.halted.Load() {
		if cb.manualHalt.Load() || !cb.autoResumeDue() {
			return ErrCircuitBreakerOpen
		}
		cb.halted.Store(false)
		cb.consecutiveErrors.Store(0)
	}

	maxErr := cb.maxConsecutiveErrors.Load()
	if maxErr > 0 && cb.consecutiveErrors.Load() >= maxErr {
		cb.trip()
		return ErrCircuitBreakerOpen
	}
	return nil
}

// OnSuccess 在一次成交成功后调用，用于清空连续错误计数。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
}

// OnError 在一次未分类提交失败后调用，用于累计连续错误计数。
func (cb *CircuitBreaker) OnError() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Add(1)
}

func (cb *CircuitBreaker) trip() {
	cb.haltedAtMs.Store(time.Now().UnixMilli())
	cb.halted.Store(true)
}

func (cb *CircuitBreaker) autoResumeDue() bool {
	after := cb.autoResumeAfterMs.Load()
	if after <= 0 {
		return false
	}
	return time.Now().UnixMilli()-cb.haltedAtMs.Load() >= after
}
