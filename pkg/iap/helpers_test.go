package iap_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/iapkit/pkg/broadcast"
	"github.com/dmitrymomot/iapkit/pkg/iap"
)

type mockPurchaser struct {
	mock.Mock
}

func (m *mockPurchaser) CanMakePayments(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *mockPurchaser) Purchase(ctx context.Context, product iap.Product, opts iap.PurchaseOptions) (iap.PurchaseResult, error) {
	args := m.Called(ctx, product, opts)
	return args.Get(0).(iap.PurchaseResult), args.Error(1)
}

func (m *mockPurchaser) Finish(ctx context.Context, tx *iap.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

type mockEntitlements struct {
	mock.Mock
}

func (m *mockEntitlements) CurrentEntitlement(ctx context.Context, productID string) (iap.SignedPayload, bool, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(iap.SignedPayload), args.Bool(1), args.Error(2)
}

func (m *mockEntitlements) SubscriptionStatuses(ctx context.Context, groupID string) ([]iap.SubscriptionStatus, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]iap.SubscriptionStatus), args.Error(1)
}

var errForged = errors.New("forged signature")

// testVerifier treats payloads signed "valid" as authentic JSON transactions.
var testVerifier = iap.VerifierFunc(func(_ context.Context, p iap.SignedPayload) iap.VerificationOutcome {
	var tx iap.Transaction
	if err := json.Unmarshal(p.Data, &tx); err != nil {
		return iap.VerificationOutcome{Err: errors.Join(iap.ErrInvalidSignedPayload, err)}
	}
	if p.Signature != "valid" {
		return iap.VerificationOutcome{Transaction: &tx, Err: errForged}
	}
	return iap.VerificationOutcome{Transaction: &tx, Verified: true}
})

func signed(t *testing.T, tx iap.Transaction) iap.SignedPayload {
	t.Helper()
	data, err := json.Marshal(tx)
	require.NoError(t, err)
	return iap.SignedPayload{Data: data, Signature: "valid"}
}

func forged(t *testing.T, tx iap.Transaction) iap.SignedPayload {
	t.Helper()
	p := signed(t, tx)
	p.Signature = "forged"
	return p
}

func testProducts() []iap.Product {
	return []iap.Product{
		{ID: "coins", Kind: iap.KindConsumable, DisplayName: "100 Coins"},
		{ID: "lifetime", Kind: iap.KindNonConsumable, DisplayName: "Lifetime", PriceID: "pri_lifetime"},
		{ID: "season", Kind: iap.KindNonRenewable, DisplayName: "Season Pass"},
		{ID: "gold", Kind: iap.KindAutoRenewable, DisplayName: "Gold", PriceID: "pri_gold",
			Subscription: &iap.SubscriptionInfo{GroupID: "vip", Level: 1}},
		{ID: "silver", Kind: iap.KindAutoRenewable, DisplayName: "Silver", PriceID: "pri_silver",
			Subscription: &iap.SubscriptionInfo{GroupID: "vip", Level: 2}},
		{ID: "bronze", Kind: iap.KindAutoRenewable, DisplayName: "Bronze",
			Subscription: &iap.SubscriptionInfo{GroupID: "vip", Level: 3}},
	}
}

func testList() iap.ProductList {
	return iap.ProductList{
		Consumables:    []string{"coins"},
		NonConsumables: []string{"lifetime"},
		NonRenewables:  []string{"season"},
		AutoRenewables: []string{"gold", "silver", "bronze"},
		Products:       testProducts(),
	}
}

type fixture struct {
	svc       iap.Service
	purchaser *mockPurchaser
	feed      *iap.Feed
	store     *iap.MemoryStore
	reg       *prometheus.Registry
}

// newFixture builds a service whose store is pre-seeded with the given entitled products.
func newFixture(t *testing.T, ents iap.EntitlementSource, seeded ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	store := iap.NewMemoryStore()
	if len(seeded) > 0 {
		data, err := json.Marshal(seeded)
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, iap.DefaultCacheKey, data))
	}
	if ents == nil {
		ents = iap.NoRemoteEntitlements{}
	}

	f := &fixture{
		purchaser: &mockPurchaser{},
		feed:      iap.NewFeed(8),
		store:     store,
		reg:       prometheus.NewRegistry(),
	}
	storefront := iap.ComposeStorefront(iap.NewStaticCatalog(testProducts()...), f.purchaser, ents, f.feed)

	svc, err := iap.NewService(ctx, iap.NewInMemSource(testList()), storefront, testVerifier, store,
		iap.WithMetrics(iap.NewMetrics(f.reg)),
		iap.WithRestartBackoff(time.Millisecond, 10*time.Millisecond),
	)
	require.NoError(t, err)
	f.svc = svc
	t.Cleanup(func() { _ = svc.Close() })
	return f
}

func nextNotification(t *testing.T, sub broadcast.Subscriber[iap.Notification]) iap.Notification {
	t.Helper()
	select {
	case msg, ok := <-sub.Receive(context.Background()):
		require.True(t, ok, "subscription closed")
		return msg.Data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return iap.Notification{}
}

// counterValue reads a counter sample from reg, or 0 when it has not been recorded.
func counterValue(reg *prometheus.Registry, name string, labels map[string]string) float64 {
	families, err := reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func ptr[T any](v T) *T { return &v }
