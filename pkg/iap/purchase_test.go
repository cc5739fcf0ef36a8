package iap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/iapkit/pkg/iap"
)

func productID(id string) any {
	return mock.MatchedBy(func(p iap.Product) bool { return p.ID == id })
}

func txID(id string) any {
	return mock.MatchedBy(func(tx *iap.Transaction) bool { return tx.ID == id })
}

func TestPurchaseSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	sub := f.svc.Subscribe(ctx)

	tx := iap.Transaction{ID: "tx-1", ProductID: "lifetime", PurchasedAt: time.Now()}
	f.purchaser.On("CanMakePayments", mock.Anything).Return(true)
	f.purchaser.On("Purchase", mock.Anything, productID("lifetime"), mock.Anything).
		Return(iap.PurchaseResult{Outcome: iap.OutcomeSuccess, Payload: signed(t, tx)}, nil)
	f.purchaser.On("Finish", mock.Anything, txID("tx-1")).Return(nil)

	receipt, err := f.svc.Purchase(ctx, "lifetime", iap.PurchaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, iap.PurchasePurchased, receipt.State)
	require.NotNil(t, receipt.Transaction)
	assert.Equal(t, "tx-1", receipt.Transaction.ID)
	assert.Equal(t, iap.PurchasePurchased, f.svc.PurchaseState())

	n := nextNotification(t, sub)
	assert.Equal(t, iap.Notification{
		ProductID:     "lifetime",
		Entitled:      true,
		Source:        iap.FromPurchase,
		PurchaseState: iap.PurchasePurchased,
	}, n)

	assert.Equal(t, []string{"lifetime"}, f.svc.Entitlements())
	data, err := f.store.Get(ctx, iap.DefaultCacheKey)
	require.NoError(t, err)
	assert.JSONEq(t, `["lifetime"]`, string(data))

	f.purchaser.AssertNumberOfCalls(t, "Finish", 1)
	assert.Equal(t, 1.0, counterValue(f.reg, "iapkit_purchase_attempts_total", map[string]string{"state": "purchased"}))

	// The same transaction redelivered on the update stream is not acknowledged twice.
	f.svc.Start(ctx)
	require.NoError(t, f.feed.PublishTransaction(ctx, signed(t, tx)))
	require.Eventually(t, func() bool {
		return counterValue(f.reg, "iapkit_reconciler_events_total",
			map[string]string{"stream": "transactions", "result": "granted"}) == 1
	}, 2*time.Second, 5*time.Millisecond)
	f.purchaser.AssertNumberOfCalls(t, "Finish", 1)
}

func TestPurchaseConsumableIsNotCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	tx := iap.Transaction{ID: "tx-coins", ProductID: "coins"}
	f.purchaser.On("CanMakePayments", mock.Anything).Return(true)
	f.purchaser.On("Purchase", mock.Anything, productID("coins"), mock.Anything).
		Return(iap.PurchaseResult{Outcome: iap.OutcomeSuccess, Payload: signed(t, tx)}, nil)
	f.purchaser.On("Finish", mock.Anything, txID("tx-coins")).Return(nil)

	receipt, err := f.svc.Purchase(ctx, "coins", iap.PurchaseOptions{Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, iap.PurchasePurchased, receipt.State)
	assert.Empty(t, f.svc.Entitlements())
	f.purchaser.AssertCalled(t, "Finish", mock.Anything, txID("tx-coins"))
}

func TestPurchaseOutcomes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		result  iap.PurchaseResult
		err     error
		want    iap.PurchaseState
		wantErr error
	}{
		{name: "cancelled", result: iap.PurchaseResult{Outcome: iap.OutcomeUserCancelled}, want: iap.PurchaseCancelled},
		{name: "pending", result: iap.PurchaseResult{Outcome: iap.OutcomePending, CheckoutURL: "https://pay.example/c/1"}, want: iap.PurchasePending},
		{name: "unknown", result: iap.PurchaseResult{Outcome: iap.OutcomeUnknown}, want: iap.PurchaseUnknown},
		{name: "remote error", err: errors.New("store unavailable"), want: iap.PurchaseFailed, wantErr: iap.ErrPurchaseException},
		{
			name:    "verification failure",
			result:  iap.PurchaseResult{Outcome: iap.OutcomeSuccess, Payload: iap.SignedPayload{Data: []byte(`{"id":"x","product_id":"lifetime"}`), Signature: "bad"}},
			want:    iap.PurchaseFailedVerification,
			wantErr: iap.ErrTransactionVerificationFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, nil)
			f.purchaser.On("CanMakePayments", mock.Anything).Return(true)
			f.purchaser.On("Purchase", mock.Anything, productID("lifetime"), mock.Anything).Return(tt.result, tt.err)

			receipt, err := f.svc.Purchase(ctx, "lifetime", iap.PurchaseOptions{})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, receipt.State)
			assert.Equal(t, tt.want, f.svc.PurchaseState())
			assert.Nil(t, receipt.Transaction)
			assert.Equal(t, tt.result.CheckoutURL, receipt.CheckoutURL)
			assert.Empty(t, f.svc.Entitlements())
			f.purchaser.AssertNotCalled(t, "Finish", mock.Anything, mock.Anything)
			assert.Equal(t, 1.0, counterValue(f.reg, "iapkit_purchase_attempts_total",
				map[string]string{"state": tt.want.String()}))
		})
	}
}

func TestPurchaseRejectsUnusableTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("transaction for another product", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		tx := iap.Transaction{ID: "tx-other", ProductID: "season", PurchasedAt: time.Now()}
		f.purchaser.On("CanMakePayments", mock.Anything).Return(true)
		f.purchaser.On("Purchase", mock.Anything, productID("lifetime"), mock.Anything).
			Return(iap.PurchaseResult{Outcome: iap.OutcomeSuccess, Payload: signed(t, tx)}, nil)

		receipt, err := f.svc.Purchase(ctx, "lifetime", iap.PurchaseOptions{})
		assert.ErrorIs(t, err, iap.ErrTransactionVerificationFailed)
		assert.ErrorIs(t, err, iap.ErrProductMismatch)
		assert.Equal(t, iap.PurchaseFailedVerification, receipt.State)
		assert.Nil(t, receipt.Transaction)
		assert.Empty(t, f.svc.Entitlements())
		f.purchaser.AssertNotCalled(t, "Finish", mock.Anything, mock.Anything)
	})

	t.Run("revoked transaction", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		sub := f.svc.Subscribe(ctx)
		tx := iap.Transaction{ID: "tx-refunded", ProductID: "lifetime", RevokedAt: ptr(time.Now())}
		f.purchaser.On("CanMakePayments", mock.Anything).Return(true)
		f.purchaser.On("Purchase", mock.Anything, productID("lifetime"), mock.Anything).
			Return(iap.PurchaseResult{Outcome: iap.OutcomeSuccess, Payload: signed(t, tx)}, nil)
		f.purchaser.On("Finish", mock.Anything, txID("tx-refunded")).Return(nil)

		receipt, err := f.svc.Purchase(ctx, "lifetime", iap.PurchaseOptions{})
		assert.ErrorIs(t, err, iap.ErrTransactionVerificationFailed)
		assert.ErrorIs(t, err, iap.ErrTransactionNotActive)
		assert.Equal(t, iap.PurchaseFailedVerification, receipt.State)
		require.NotNil(t, receipt.Transaction)
		assert.Empty(t, f.svc.Entitlements())
		f.purchaser.AssertNumberOfCalls(t, "Finish", 1)

		select {
		case msg := <-sub.Receive(ctx):
			t.Fatalf("unexpected notification %+v", msg.Data)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("expired transaction clears a cached grant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil, "season")
		sub := f.svc.Subscribe(ctx)
		tx := iap.Transaction{ID: "tx-old", ProductID: "season", ExpiresAt: ptr(time.Now().Add(-time.Hour))}
		f.purchaser.On("CanMakePayments", mock.Anything).Return(true)
		f.purchaser.On("Purchase", mock.Anything, productID("season"), mock.Anything).
			Return(iap.PurchaseResult{Outcome: iap.OutcomeSuccess, Payload: signed(t, tx)}, nil)
		f.purchaser.On("Finish", mock.Anything, txID("tx-old")).Return(nil)

		receipt, err := f.svc.Purchase(ctx, "season", iap.PurchaseOptions{})
		assert.ErrorIs(t, err, iap.ErrTransactionNotActive)
		assert.Equal(t, iap.PurchaseFailedVerification, receipt.State)
		assert.Empty(t, f.svc.Entitlements())

		n := nextNotification(t, sub)
		assert.Equal(t, "season", n.ProductID)
		assert.False(t, n.Entitled)
		assert.Equal(t, iap.PurchaseFailedVerification, n.PurchaseState)
	})
}

func TestPurchasePaymentsNotAllowed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.purchaser.On("CanMakePayments", mock.Anything).Return(false)

	receipt, err := f.svc.Purchase(context.Background(), "lifetime", iap.PurchaseOptions{})
	assert.ErrorIs(t, err, iap.ErrPaymentsNotAllowed)
	assert.Equal(t, iap.PurchaseNotStarted, receipt.State)
	f.purchaser.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseUnknownProduct(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	_, err := f.svc.Purchase(context.Background(), "platinum", iap.PurchaseOptions{})
	assert.ErrorIs(t, err, iap.ErrProductNotFound)
}

func TestPurchaseMutualExclusion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	f.purchaser.On("CanMakePayments", mock.Anything).Return(true)
	f.purchaser.On("Purchase", mock.Anything, productID("lifetime"), mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(iap.PurchaseResult{Outcome: iap.OutcomeUserCancelled}, nil).Once()

	done := make(chan iap.PurchaseReceipt, 1)
	go func() {
		receipt, _ := f.svc.Purchase(ctx, "lifetime", iap.PurchaseOptions{})
		done <- receipt
	}()
	<-started

	assert.Equal(t, iap.PurchaseInProgress, f.svc.PurchaseState())
	receipt, err := f.svc.Purchase(ctx, "gold", iap.PurchaseOptions{})
	assert.ErrorIs(t, err, iap.ErrPurchaseInProgress)
	assert.Equal(t, iap.PurchaseInProgress, receipt.State)

	close(release)
	assert.Equal(t, iap.PurchaseCancelled, (<-done).State)
	assert.Equal(t, iap.PurchaseCancelled, f.svc.PurchaseState())
	f.purchaser.AssertNumberOfCalls(t, "Purchase", 1)
}
