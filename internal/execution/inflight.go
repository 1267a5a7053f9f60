package execution

import (
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/betbot/jitbot/internal/domain"
)

var (
	// ErrDuplicateInFlight 同一订单签名已有调度任务在运行
	ErrDuplicateInFlight = errors.New("duplicate in-flight")
	// ErrAlreadySeen 订单已经调度过（仍处于 seen 保留窗口内）
	ErrAlreadySeen = errors.New("order already seen")
)

// TaskState 调度任务当前阶段（仅用于观测）
type TaskState string

const (
	TaskPredict TaskState = "predict"
	TaskWait    TaskState = "wait"
	TaskSubmit  TaskState = "submit"
	TaskCooling TaskState = "cooldown"
)

// Task 单个订单调度任务的句柄
type Task struct {
	Signature domain.OrderSignature
	Market    domain.MarketID
	Strategy  string
	StartedAt time.Time

	state    atomic.Value // TaskState
	attempts atomic.Int32
}

func NewTask(sig domain.OrderSignature, market domain.MarketID, strategy string) *Task {
	t := &Task{Signature: sig, Market: market, Strategy: strategy, StartedAt: time.Now()}
	t.state.Store(TaskPredict)
	return t
}

func (t *Task) SetState(s TaskState) { t.state.Store(s) }

func (t *Task) State() TaskState { return t.state.Load().(TaskState) }

func (t *Task) IncAttempts() int { return int(t.attempts.Add(1)) }

func (t *Task) Attempts() int { return int(t.attempts.Load()) }

// Registry 订单签名级别的单飞注册表（OngoingAuctions + SeenOrders）。
//
// 约束：
// - 同一签名任意时刻最多一个任务持有
// - 检查 + 标记在同一把 shard 锁内完成，并发重复事件只会有一个成功
// - Release 必须在任务的每条退出路径上调用，否则该签名永久被锁
//
// seenRetention 控制 seen 集合的修剪：<= 0 时 Release 立即移除；
// > 0 时释放后在窗口内继续拒绝同一签名（惰性清理）。
type Registry struct {
	seenRetention time.Duration
	shards        []registryShard
}

type registryShard struct {
	mu       sync.Mutex
	inFlight map[domain.OrderSignature]*Task
	seen     map[domain.OrderSignature]time.Time // key -> expiresAt
}

// NewRegistry 创建注册表。shardCount <= 0 时默认 64。
func NewRegistry(seenRetention time.Duration, shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = 64
	}
	shards := make([]registryShard, shardCount)
	for i := range shards {
		shards[i].inFlight = make(map[domain.OrderSignature]*Task)
		shards[i].seen = make(map[domain.OrderSignature]time.Time)
	}
	return &Registry{seenRetention: seenRetention, shards: shards}
}

// Check 只读检查（intake 的快速路径），不做标记
func (r *Registry) Check(sig domain.OrderSignature) error {
	sh := r.shard(sig)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.checkLocked(sig, time.Now())
}

// TryAcquire 原子地检查并标记 seen + in-flight。
// - 成功返回 nil
// - 失败返回 ErrDuplicateInFlight / ErrAlreadySeen
func (r *Registry) TryAcquire(task *Task) error {
	now := time.Now()
	sh := r.shard(task.Signature)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if err := sh.checkLocked(task.Signature, now); err != nil {
		return err
	}
	sh.inFlight[task.Signature] = task
	return nil
}

// Release 释放签名。重复调用无副作用。
func (r *Registry) Release(sig domain.OrderSignature) {
	sh := r.shard(sig)
	sh.mu.Lock()
	delete(sh.inFlight, sig)
	if r.seenRetention > 0 {
		sh.seen[sig] = time.Now().Add(r.seenRetention)
	}
	sh.mu.Unlock()
}

// InFlight 签名是否有任务在运行
func (r *Registry) InFlight(sig domain.OrderSignature) bool {
	sh := r.shard(sig)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.inFlight[sig]
	return ok
}

// Len 当前运行中的任务数
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		n += len(sh.inFlight)
		sh.mu.Unlock()
	}
	return n
}

// Tasks 运行中任务的快照
func (r *Registry) Tasks() []*Task {
	var out []*Task
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for _, t := range sh.inFlight {
			out = append(out, t)
		}
		sh.mu.Unlock()
	}
	return out
}

func (sh *registryShard) checkLocked(sig domain.OrderSignature, now time.Time) error {
	if _, ok := sh.inFlight[sig]; ok {
		return ErrDuplicateInFlight
	}
	// 惰性清理：仅清理本 shard 中过期项，且仅在发生访问时进行
	for k, exp := range sh.seen {
		if !exp.After(now) {
			delete(sh.seen, k)
		}
	}
	if _, ok := sh.seen[sig]; ok {
		return ErrAlreadySeen
	}
	return nil
}

func (r *Registry) shard(sig domain.OrderSignature) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sig))
	idx := int(h.Sum32() % uint32(len(r.shards)))
	return &r.shards[idx]
}
