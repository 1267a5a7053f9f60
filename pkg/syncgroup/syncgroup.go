// Package syncgroup 管理一组具名的后台 goroutine：先 Add，Run 统一启动，WaitAndClear 等待并复位。
package syncgroup

import (
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "syncgroup")

type member struct {
	name string
	fn   func()
}

type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	pending []member
	running map[string]int
	panics  int
}

func NewSyncGroup() *SyncGroup {
	return &SyncGroup{running: make(map[string]int)}
}

// Add 登记一个 goroutine。本轮仍有成员运行时忽略（需先 WaitAndClear）。
func (g *SyncGroup) Add(name string, fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.running) > 0 {
		log.WithField("name", name).Warn("上一轮 goroutine 未结束，忽略 Add")
		return
	}
	g.pending = append(g.pending, member{name: name, fn: fn})
}

// Run 启动所有已登记成员并清空列表。成员 panic 会被恢复并记录，不影响其他成员。
func (g *SyncGroup) Run() {
	g.mu.Lock()
	if len(g.running) > 0 {
		g.mu.Unlock()
		return
	}
	members := g.pending
	g.pending = nil
	for _, m := range members {
		g.running[m.name]++
	}
	g.mu.Unlock()

	for _, m := range members {
		g.wg.Add(1)
		go g.run(m)
	}
}

func (g *SyncGroup) run(m member) {
	defer g.wg.Done()
	defer func() {
		r := recover()
		g.mu.Lock()
		if r != nil {
			g.panics++
		}
		if g.running[m.name]--; g.running[m.name] <= 0 {
			delete(g.running, m.name)
		}
		g.mu.Unlock()
		if r != nil {
			log.WithField("name", m.name).Errorf("goroutine panic: %v\n%s", r, debug.Stack())
		}
	}()
	m.fn()
}

// Running 当前运行中的成员数
func (g *SyncGroup) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.running {
		n += c
	}
	return n
}

// Names 当前运行中的成员名
func (g *SyncGroup) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.running))
	for name := range g.running {
		out = append(out, name)
	}
	return out
}

// Panics 启动以来恢复的 panic 次数
func (g *SyncGroup) Panics() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.panics
}

// WaitAndClear 等待所有成员结束并复位，之后可以重新 Add/Run
func (g *SyncGroup) WaitAndClear() {
	g.wg.Wait()
	g.mu.Lock()
	g.pending = nil
	g.running = make(map[string]int)
	g.mu.Unlock()
}

// Wait 等待所有成员结束（不复位）
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}
