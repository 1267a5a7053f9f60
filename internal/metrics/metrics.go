package metrics

import (
	"expvar"
	"sync/atomic"
)

var (
	OrdersSeen     = expvar.NewInt("jit_orders_seen")
	OrdersAccepted = expvar.NewInt("jit_orders_accepted")
	// OrdersRejected 按拒绝原因计数（status/no_auction/user_filter/duplicate/unregistered/min_size）
	OrdersRejected = expvar.NewMap("jit_orders_rejected")

	FillAttempts = expvar.NewInt("jit_fill_attempts")
	Fills        = expvar.NewInt("jit_fills")
	// FillErrors 按错误分类计数
	FillErrors = expvar.NewMap("jit_fill_errors")
	// Abandons 按放弃原因计数
	Abandons = expvar.NewMap("jit_abandons")

	AuctionsExpired = expvar.NewInt("jit_auctions_expired")
	TaskPanics      = expvar.NewInt("jit_task_panics")
	JournalErrors   = expvar.NewInt("jit_journal_errors")
)

var inFlightSource atomic.Pointer[func() int]

func init() {
	expvar.Publish("jit_in_flight", expvar.Func(func() any {
		if f := inFlightSource.Load(); f != nil {
			return (*f)()
		}
		return 0
	}))
}

// SetInFlightSource 设置运行中任务数 gauge 的数据源（后设置的覆盖先设置的）
func SetInFlightSource(f func() int) {
	inFlightSource.Store(&f)
}
