package iap

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/iapkit/pkg/cache"
	"github.com/dmitrymomot/iapkit/pkg/logger"
)

// NotificationSource identifies what produced a notification.
type NotificationSource string

const (
	FromPurchase          NotificationSource = "purchase"
	FromIntent            NotificationSource = "intent"
	FromTransactionUpdate NotificationSource = "transaction_update"
	FromStatusUpdate      NotificationSource = "status_update"
)

// Notification is pushed to subscribers when an entitlement flag changes and
// after every intent-driven purchase attempt.
type Notification struct {
	ProductID string
	Entitled  bool
	Source    NotificationSource
	// PurchaseState is set for FromPurchase and FromIntent notifications.
	PurchaseState PurchaseState
	Err           error
}

type notifyFunc func(ctx context.Context, n Notification)

func discardNotifications(context.Context, Notification) {}

// finisher acknowledges each transaction ID at most once across the
// orchestrator and the reconciler. A failed acknowledgement is forgotten so a
// redelivered transaction is acknowledged again.
type finisher struct {
	purchaser Purchaser
	mu        sync.Mutex
	done      *cache.LRUCache[string, struct{}]
	log       *slog.Logger
}

func newFinisher(p Purchaser, log *slog.Logger) *finisher {
	return &finisher{
		purchaser: p,
		done: cache.NewLRUCache(4096,
			cache.WithTTL[string, struct{}](24*time.Hour),
		),
		log: log,
	}
}

// finish reports whether this call performed the acknowledgement.
func (f *finisher) finish(ctx context.Context, tx *Transaction) bool {
	if tx.ID != "" {
		f.mu.Lock()
		if _, seen := f.done.Get(tx.ID); seen {
			f.mu.Unlock()
			return false
		}
		f.done.Put(tx.ID, struct{}{})
		f.mu.Unlock()
	}

	if err := f.purchaser.Finish(ctx, tx); err != nil {
		f.log.WarnContext(ctx, "failed to finish transaction",
			logger.TransactionID(tx.ID),
			logger.ProductID(tx.ProductID),
			logger.Error(err),
		)
		if tx.ID != "" {
			f.done.Remove(tx.ID)
		}
	}
	return true
}
