package feed

import (
	"context"
	"sync"

	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/ports"
)

// accountHandlers 账户更新处理器列表
type accountHandlers struct {
	mu       sync.RWMutex
	handlers []ports.AccountUpdateHandler
}

func (h *accountHandlers) Add(handler ports.AccountUpdateHandler) {
	if handler == nil {
		return
	}
	h.mu.Lock()
	h.handlers = append(h.handlers, handler)
	h.mu.Unlock()
}

// snapshot 在无锁状态下遍历，避免回调期间持锁
func (h *accountHandlers) snapshot() []ports.AccountUpdateHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]ports.AccountUpdateHandler(nil), h.handlers...)
}

// Emit 串行调用（确定性优先）；单个处理器 panic 不影响其他处理器
func (h *accountHandlers) Emit(ctx context.Context, update ports.AccountUpdate) {
	for _, handler := range h.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("账户更新处理器 panic: %v", r)
				}
			}()
			handler.OnAccountUpdate(ctx, update)
		}()
	}
}

type signedMsgHandlers struct {
	mu       sync.RWMutex
	handlers []ports.SignedMsgHandler
}

func (h *signedMsgHandlers) Add(handler ports.SignedMsgHandler) {
	if handler == nil {
		return
	}
	h.mu.Lock()
	h.handlers = append(h.handlers, handler)
	h.mu.Unlock()
}

func (h *signedMsgHandlers) Emit(ctx context.Context, msg domain.SignedMsgOrder) {
	h.mu.RLock()
	handlers := append([]ports.SignedMsgHandler(nil), h.handlers...)
	h.mu.RUnlock()
	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("预确认订单处理器 panic: %v", r)
				}
			}()
			handler.OnSignedMsgOrder(ctx, msg)
		}()
	}
}
