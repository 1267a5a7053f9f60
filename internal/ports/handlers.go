package ports

import (
	"context"

	"github.com/betbot/jitbot/internal/domain"
)

// AccountUpdate is one confirmed snapshot of a taker account observed at Slot.
type AccountUpdate struct {
	Taker    domain.UserAccount
	TakerKey string
	Slot     uint64
}

// AccountUpdateHandler handles confirmed taker account snapshots.
//
// NOTE: This interface is intentionally defined in a "neutral" package to avoid
// circular dependencies between the scheduler (jitter) and infrastructure (feed).
type AccountUpdateHandler interface {
	OnAccountUpdate(ctx context.Context, update AccountUpdate)
}

// SignedMsgHandler handles pre-confirmation signed order messages.
type SignedMsgHandler interface {
	OnSignedMsgOrder(ctx context.Context, msg domain.SignedMsgOrder)
}

// AuctionSource delivers confirmed taker account updates.
type AuctionSource interface {
	OnAccountUpdate(handler AccountUpdateHandler)
}

// SignedMsgSource delivers pre-confirmation signed order messages.
type SignedMsgSource interface {
	OnSignedMsgOrder(handler SignedMsgHandler)
}

// SlotSubscription is a coalescing "slot advanced" notification.
// Readers call SlotSource.CurrentSlot after a wake to learn the new slot.
type SlotSubscription interface {
	C() <-chan struct{}
	Close()
}

// SlotSource is the ledger clock.
type SlotSource interface {
	CurrentSlot() uint64
	Subscribe() SlotSubscription
}

// UserFilter returns true when the order must be skipped.
type UserFilter func(taker domain.UserAccount, takerKey string, order domain.Order) bool
