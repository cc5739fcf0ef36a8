package iap

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/iapkit/pkg/logger"
)

const (
	streamTransactions = "transactions"
	streamStatuses     = "statuses"
	streamIntents      = "intents"
)

type loopExit uint8

const (
	exitCancelled loopExit = iota
	exitUpgrade
	exitClosed
)

func (e loopExit) reason() string {
	switch e {
	case exitUpgrade:
		return "upgrade"
	case exitClosed:
		return "stream_closed"
	default:
		return "cancelled"
	}
}

// UpdateReconciler consumes the transaction, subscription status and
// purchase intent streams and applies their effects to the entitlement cache.
//
// Unverified events are logged and dropped. A verified upgraded transaction
// restarts the transaction loop, since the upstream stream is known to stall
// after upgrades; a stream that closes while running is re-subscribed after a
// capped backoff. Both are counted in the loop restart metric.
type UpdateReconciler struct {
	streams      UpdateStreams
	verifier     Verifier
	cache        *EntitlementCache
	finisher     *finisher
	orchestrator *PurchaseOrchestrator
	kindOf       func(productID string) (ProductKind, bool)
	lookup       func(ctx context.Context, productID string) (Product, error)
	notify       notifyFunc
	metrics      *Metrics
	log          *slog.Logger
	now          func() time.Time

	restartDelay    time.Duration
	maxRestartDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start launches the three listener loops. Calling Start on a running reconciler is a no-op.
func (r *UpdateReconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(3)
	go r.run(ctx, streamTransactions, func(ctx context.Context) (loopExit, int) {
		return consume(ctx, r.streams.TransactionUpdates(ctx), r.handleTransaction)
	})
	go r.run(ctx, streamStatuses, func(ctx context.Context) (loopExit, int) {
		return consume(ctx, r.streams.StatusUpdates(ctx), r.handleStatus)
	})
	go r.run(ctx, streamIntents, func(ctx context.Context) (loopExit, int) {
		return consume(ctx, r.streams.PurchaseIntents(ctx), r.handleIntent)
	})
}

// Stop cancels the listener loops and waits for them to return.
func (r *UpdateReconciler) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *UpdateReconciler) run(ctx context.Context, stream string, listen func(context.Context) (loopExit, int)) {
	defer r.wg.Done()

	delay := r.restartDelay
	for {
		loopCtx, cancel := context.WithCancel(ctx)
		exit, handled := listen(loopCtx)
		cancel()

		if ctx.Err() != nil {
			return
		}

		r.metrics.loopRestarted(stream, exit.reason())
		r.log.InfoContext(ctx, "restarting update listener",
			logger.Stream(stream),
			logger.Reason(exit.reason()),
		)

		if exit == exitUpgrade {
			delay = r.restartDelay
			continue
		}
		if handled > 0 {
			delay = r.restartDelay
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		delay = min(delay*2, r.maxRestartDelay)
	}
}

// consume feeds values from ch to handle until ctx ends, ch closes, or
// handle asks for a restart by returning true.
func consume[T any](ctx context.Context, ch <-chan T, handle func(context.Context, T) bool) (loopExit, int) {
	handled := 0
	for {
		select {
		case <-ctx.Done():
			return exitCancelled, handled
		case v, ok := <-ch:
			if !ok {
				return exitClosed, handled
			}
			handled++
			if handle(ctx, v) {
				return exitUpgrade, handled
			}
		}
	}
}

func (r *UpdateReconciler) handleTransaction(ctx context.Context, payload SignedPayload) bool {
	outcome := r.verifier.Verify(ctx, payload)
	if !outcome.Confirmed() {
		r.dropUnverified(ctx, streamTransactions, outcome)
		return false
	}

	tx := outcome.Transaction
	entitled, result := classifyTransaction(tx, r.now())
	r.metrics.eventHandled(streamTransactions, result)
	r.apply(ctx, tx.ProductID, entitled, FromTransactionUpdate)
	r.finisher.finish(ctx, tx)

	return result == "upgraded"
}

// classifyTransaction maps a verified transaction to an entitlement flag and a metric label.
func classifyTransaction(tx *Transaction, now time.Time) (bool, string) {
	switch {
	case tx.IsRevoked():
		return false, "revoked"
	case tx.IsUpgraded:
		return false, "upgraded"
	case tx.IsExpired(now):
		return false, "expired"
	default:
		return true, "granted"
	}
}

func (r *UpdateReconciler) handleStatus(ctx context.Context, status SubscriptionStatus) bool {
	outcome := r.verifier.Verify(ctx, status.Transaction)
	if !outcome.Confirmed() {
		r.dropUnverified(ctx, streamStatuses, outcome)
		return false
	}

	tx := outcome.Transaction
	active := status.State == RenewalSubscribed && !tx.IsRevoked()
	r.metrics.eventHandled(streamStatuses, status.State.String())
	r.apply(ctx, tx.ProductID, active, FromStatusUpdate)
	return false
}

func (r *UpdateReconciler) handleIntent(ctx context.Context, intent PurchaseIntent) bool {
	product, err := r.lookup(ctx, intent.ProductID)
	if err != nil {
		r.log.WarnContext(ctx, "rejecting purchase intent",
			logger.Stream(streamIntents),
			logger.ProductID(intent.ProductID),
			logger.Error(err),
		)
		r.metrics.eventHandled(streamIntents, "rejected")
		r.notify(ctx, Notification{ProductID: intent.ProductID, Source: FromIntent, Err: err})
		return false
	}

	receipt, _, err := r.orchestrator.attempt(ctx, product, intent.Options)
	if err != nil {
		r.log.WarnContext(ctx, "intent-driven purchase failed",
			logger.ProductID(product.ID),
			logger.PurchaseState(receipt.State.String()),
			logger.Error(err),
		)
	}
	r.metrics.eventHandled(streamIntents, receipt.State.String())
	r.notify(ctx, Notification{
		ProductID:     product.ID,
		Entitled:      r.cache.Get(product.ID),
		Source:        FromIntent,
		PurchaseState: receipt.State,
		Err:           err,
	})
	return false
}

func (r *UpdateReconciler) apply(ctx context.Context, productID string, entitled bool, source NotificationSource) {
	kind, known := r.kindOf(productID)
	if !known {
		r.log.DebugContext(ctx, "ignoring update for unconfigured product", logger.ProductID(productID))
		return
	}
	if kind == KindConsumable {
		return
	}
	if r.cache.Set(ctx, productID, entitled) {
		r.log.InfoContext(ctx, "entitlement changed",
			logger.ProductID(productID),
			logger.Entitled(entitled),
			slog.String("source", string(source)),
		)
		r.notify(ctx, Notification{ProductID: productID, Entitled: entitled, Source: source})
	}
}

func (r *UpdateReconciler) dropUnverified(ctx context.Context, stream string, outcome VerificationOutcome) {
	attrs := []any{logger.Stream(stream), logger.Error(outcome.Err)}
	if outcome.Transaction != nil {
		attrs = append(attrs,
			logger.ProductID(outcome.Transaction.ProductID),
			logger.TransactionID(outcome.Transaction.ID),
		)
	}
	r.log.WarnContext(ctx, "dropping unverified update", attrs...)
	r.metrics.eventHandled(stream, "unverified")
}
