package iap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/iapkit/pkg/logger"
	"github.com/dmitrymomot/iapkit/pkg/statemachine"
)

const (
	evStart              = statemachine.StringEvent("start")
	evPurchased          = statemachine.StringEvent("purchased")
	evCancelled          = statemachine.StringEvent("cancelled")
	evDeferred           = statemachine.StringEvent("deferred")
	evFailed             = statemachine.StringEvent("failed")
	evVerificationFailed = statemachine.StringEvent("verification_failed")
	evUnrecognized       = statemachine.StringEvent("unrecognized")
)

// PurchaseOrchestrator drives one purchase attempt at a time through the
// remote call, verification, acknowledgement and cache update.
type PurchaseOrchestrator struct {
	purchaser Purchaser
	verifier  Verifier
	cache     *EntitlementCache
	finisher  *finisher
	machine   *statemachine.Machine
	notify    notifyFunc
	metrics   *Metrics
	now       func() time.Time
	log       *slog.Logger
}

func newPurchaseOrchestrator(p Purchaser, v Verifier, c *EntitlementCache, f *finisher, m *Metrics, notify notifyFunc, now func() time.Time, log *slog.Logger) *PurchaseOrchestrator {
	o := &PurchaseOrchestrator{
		purchaser: p,
		verifier:  v,
		cache:     c,
		finisher:  f,
		notify:    notify,
		metrics:   m,
		now:       now,
		log:       log,
	}
	o.machine = statemachine.MustNew(PurchaseNotStarted,
		statemachine.WithTransitionFromAny(PurchaseInProgress, evStart, statemachine.Except(PurchaseInProgress)),
		statemachine.WithTransition(PurchaseInProgress, PurchasePurchased, evPurchased),
		statemachine.WithTransition(PurchaseInProgress, PurchaseCancelled, evCancelled),
		statemachine.WithTransition(PurchaseInProgress, PurchasePending, evDeferred),
		statemachine.WithTransition(PurchaseInProgress, PurchaseFailed, evFailed),
		statemachine.WithTransition(PurchaseInProgress, PurchaseFailedVerification, evVerificationFailed),
		statemachine.WithTransition(PurchaseInProgress, PurchaseUnknown, evUnrecognized),
		statemachine.WithListener(o.onTransition),
	)
	return o
}

// State returns the current purchase attempt state.
func (o *PurchaseOrchestrator) State() PurchaseState {
	return o.machine.Current().(PurchaseState)
}

// Purchase runs a purchase attempt for product and notifies subscribers when
// it changes the product's entitlement.
func (o *PurchaseOrchestrator) Purchase(ctx context.Context, product Product, opts PurchaseOptions) (PurchaseReceipt, error) {
	receipt, changed, err := o.attempt(ctx, product, opts)
	if changed {
		o.notify(ctx, Notification{
			ProductID:     product.ID,
			Entitled:      o.cache.Get(product.ID),
			Source:        FromPurchase,
			PurchaseState: receipt.State,
		})
	}
	return receipt, err
}

func (o *PurchaseOrchestrator) attempt(ctx context.Context, product Product, opts PurchaseOptions) (PurchaseReceipt, bool, error) {
	if !o.purchaser.CanMakePayments(ctx) {
		return PurchaseReceipt{State: o.State()}, false, ErrPaymentsNotAllowed
	}

	if err := o.machine.Fire(ctx, evStart, product); err != nil {
		return PurchaseReceipt{State: PurchaseInProgress}, false, ErrPurchaseInProgress
	}

	result, err := o.purchaser.Purchase(ctx, product, opts)
	if err != nil {
		o.settle(ctx, evFailed)
		return PurchaseReceipt{State: PurchaseFailed}, false, errors.Join(ErrPurchaseException, err)
	}

	switch result.Outcome {
	case OutcomeSuccess:
		return o.complete(ctx, product, result.Payload)
	case OutcomeUserCancelled:
		o.settle(ctx, evCancelled)
		return PurchaseReceipt{State: PurchaseCancelled}, false, nil
	case OutcomePending:
		o.settle(ctx, evDeferred)
		return PurchaseReceipt{State: PurchasePending, CheckoutURL: result.CheckoutURL}, false, nil
	default:
		o.settle(ctx, evUnrecognized)
		return PurchaseReceipt{State: PurchaseUnknown}, false, nil
	}
}

func (o *PurchaseOrchestrator) complete(ctx context.Context, product Product, payload SignedPayload) (PurchaseReceipt, bool, error) {
	outcome := o.verifier.Verify(ctx, payload)
	if !outcome.Confirmed() {
		o.settle(ctx, evVerificationFailed)
		err := ErrTransactionVerificationFailed
		if outcome.Err != nil {
			err = errors.Join(err, outcome.Err)
		}
		return PurchaseReceipt{State: PurchaseFailedVerification}, false, err
	}

	tx := outcome.Transaction
	if tx.ProductID != product.ID {
		o.log.WarnContext(ctx, "verified transaction is for a different product",
			logger.ProductID(product.ID),
			logger.TransactionID(tx.ID),
			slog.String("transaction_product_id", tx.ProductID),
		)
		o.settle(ctx, evVerificationFailed)
		return PurchaseReceipt{State: PurchaseFailedVerification}, false,
			errors.Join(ErrTransactionVerificationFailed, ErrProductMismatch,
				fmt.Errorf("transaction %q is for %q, not %q", tx.ID, tx.ProductID, product.ID))
	}

	// The transaction is genuine and belongs to this product, so it is
	// acknowledged even when it no longer grants access.
	o.finisher.finish(ctx, tx)

	entitled, result := classifyTransaction(tx, o.now())
	changed := false
	if product.Kind != KindConsumable {
		changed = o.cache.Set(ctx, product.ID, entitled)
	}
	if !entitled {
		o.settle(ctx, evVerificationFailed)
		return PurchaseReceipt{Transaction: tx, State: PurchaseFailedVerification}, changed,
			errors.Join(ErrTransactionVerificationFailed, ErrTransactionNotActive,
				fmt.Errorf("transaction %q is %s", tx.ID, result))
	}

	o.settle(ctx, evPurchased)
	return PurchaseReceipt{Transaction: tx, State: PurchasePurchased}, changed, nil
}

// settle moves an in-progress attempt to its final state. The machine only
// leaves in-progress through settle, so Fire cannot fail here.
func (o *PurchaseOrchestrator) settle(ctx context.Context, ev statemachine.Event) {
	if err := o.machine.Fire(ctx, ev, nil); err != nil {
		o.log.ErrorContext(ctx, "unexpected purchase state transition failure", logger.Error(err))
	}
}

func (o *PurchaseOrchestrator) onTransition(ctx context.Context, from, to statemachine.State, ev statemachine.Event) {
	if from == PurchaseInProgress {
		o.metrics.purchaseFinished(to.(PurchaseState))
	}
	o.log.DebugContext(ctx, "purchase state changed",
		logger.PurchaseState(to.Name()),
		slog.String("from", from.Name()),
		slog.String("event", ev.Name()),
	)
}
