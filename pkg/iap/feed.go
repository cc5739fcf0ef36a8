package iap

import (
	"context"
	"sync"
)

// Feed is a channel-backed UpdateStreams for producers living in the same
// process, such as a webhook receiver. Events published while no listener is
// running stay buffered until the next subscription.
type Feed struct {
	transactions chan SignedPayload
	statuses     chan SubscriptionStatus
	intents      chan PurchaseIntent

	mu     sync.RWMutex
	closed bool
}

// NewFeed creates a feed buffering up to buffer events per stream.
func NewFeed(buffer int) *Feed {
	buffer = max(buffer, 1)
	return &Feed{
		transactions: make(chan SignedPayload, buffer),
		statuses:     make(chan SubscriptionStatus, buffer),
		intents:      make(chan PurchaseIntent, buffer),
	}
}

func (f *Feed) TransactionUpdates(context.Context) <-chan SignedPayload { return f.transactions }

func (f *Feed) StatusUpdates(context.Context) <-chan SubscriptionStatus { return f.statuses }

func (f *Feed) PurchaseIntents(context.Context) <-chan PurchaseIntent { return f.intents }

// PublishTransaction enqueues a signed transaction update, blocking while the buffer is full.
func (f *Feed) PublishTransaction(ctx context.Context, p SignedPayload) error {
	return publish(ctx, f, f.transactions, p)
}

// PublishStatus enqueues a subscription status update.
func (f *Feed) PublishStatus(ctx context.Context, s SubscriptionStatus) error {
	return publish(ctx, f, f.statuses, s)
}

// PublishIntent enqueues a purchase intent.
func (f *Feed) PublishIntent(ctx context.Context, i PurchaseIntent) error {
	return publish(ctx, f, f.intents, i)
}

// Close closes all streams. Later publishes fail with ErrFeedClosed.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.transactions)
	close(f.statuses)
	close(f.intents)
	return nil
}

func publish[T any](ctx context.Context, f *Feed, ch chan T, v T) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrFeedClosed
	}
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
