package iap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/iapkit/pkg/iap"
)

func TestParseProductKind(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]iap.ProductKind{
		"consumable":      iap.KindConsumable,
		"Non-Consumable":  iap.KindNonConsumable,
		" auto_renewable": iap.KindAutoRenewable,
		"non_renewable":   iap.KindNonRenewable,
	} {
		got, err := iap.ParseProductKind(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := iap.ParseProductKind("subscription")
	assert.ErrorIs(t, err, iap.ErrUnsupportedProductKind)
	assert.Equal(t, "unknown", iap.ProductKind(0).String())
}

func TestPurchaseStateText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "failed_verification", iap.PurchaseFailedVerification.String())
	assert.Equal(t, "failed_verification", iap.PurchaseFailedVerification.Name())
	assert.NotEmpty(t, iap.PurchasePending.Description())
	assert.Equal(t, "invalid", iap.PurchaseState(200).String())

	text, err := iap.PurchaseCancelled.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "cancelled", string(text))
}

func TestTransactionState(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tx := iap.Transaction{ID: "1", ProductID: "season"}
	assert.False(t, tx.IsRevoked())
	assert.False(t, tx.IsExpired(now))

	tx.ExpiresAt = ptr(now)
	assert.True(t, tx.IsExpired(now), "expiry is inclusive")

	tx.ExpiresAt = ptr(now.Add(time.Minute))
	assert.False(t, tx.IsExpired(now))

	tx.RevokedAt = ptr(now)
	assert.True(t, tx.IsRevoked())
}

func TestVerificationOutcomeConfirmed(t *testing.T) {
	t.Parallel()

	assert.False(t, iap.VerificationOutcome{Verified: true}.Confirmed())
	assert.False(t, iap.VerificationOutcome{Transaction: &iap.Transaction{}}.Confirmed())
	assert.True(t, iap.VerificationOutcome{Transaction: &iap.Transaction{}, Verified: true}.Confirmed())
}
