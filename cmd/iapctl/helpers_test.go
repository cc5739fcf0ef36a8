package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/iapkit/pkg/iap"
	"github.com/dmitrymomot/iapkit/pkg/logger"
)

const testWebhookSecret = "pdl_ntfset_test_secret"

type stubTransactions struct{}

func (stubTransactions) CreateTransaction(_ context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error) {
	var tx paddle.Transaction
	body := fmt.Sprintf(`{"id":"txn_%d","checkout":{"url":"https://pay.example/checkout?_ptxn=txn_%d"}}`, len(req.Items), len(req.Items))
	if err := json.Unmarshal([]byte(body), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func testCatalog() ([]iap.Product, iap.ProductList) {
	products := []iap.Product{
		{ID: "gold", Kind: iap.KindAutoRenewable, PriceID: "pri_gold", Subscription: &iap.SubscriptionInfo{GroupID: "vip", Level: 1}},
		{ID: "lifetime", Kind: iap.KindNonConsumable, PriceID: "pri_lifetime"},
	}
	return products, iap.ProductList{
		AutoRenewables: []string{"gold"},
		NonConsumables: []string{"lifetime"},
		Products:       products,
	}
}

// newTestApp wires an app the way newApp does, minus environment loading.
func newTestApp(t *testing.T) (*app, *prometheus.Registry) {
	t.Helper()
	ctx := context.Background()
	products, list := testCatalog()

	pdl, err := iap.NewPaddle(iap.PaddleConfig{
		APIKey:        "pdl_sdbx_apikey_test",
		WebhookSecret: testWebhookSecret,
		Environment:   "sandbox",
	}, iap.WithPaddleProducts(products...), iap.WithPaddleTransactions(stubTransactions{}))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	a := &app{
		cfg: appConfig{
			Env:         "development",
			StoreDriver: driverMemory,
			CacheKey:    iap.DefaultCacheKey,
			FeedBuffer:  8,
			WebhookPath: "/webhooks/paddle",
		},
		log:     logger.Discard(),
		store:   &storeHandle{Store: iap.NewMemoryStore(), driver: driverMemory},
		feed:    iap.NewFeed(8),
		paddle:  pdl,
		metrics: iap.NewMetrics(reg),
	}

	a.svc, err = iap.NewService(ctx, iap.NewInMemSource(list),
		iap.ComposeStorefront(iap.NewStaticCatalog(products...), pdl, iap.NoRemoteEntitlements{}, a.feed),
		pdl, a.store,
		iap.WithMetrics(a.metrics),
		iap.WithRestartBackoff(time.Millisecond, 10*time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return a, reg
}

func paddleSignature(body []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d:", ts)
	mac.Write(body)
	return fmt.Sprintf("ts=%d;h1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func completedGoldWebhook(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event_id":    "evt_01",
		"event_type":  "transaction.completed",
		"occurred_at": "2026-01-10T10:00:00.000000Z",
		"data": map[string]any{
			"id":              "txn_01",
			"status":          "completed",
			"subscription_id": "sub_01",
			"custom_data":     map[string]any{"product_id": "gold"},
			"billed_at":       "2026-01-10T10:00:00Z",
			"billing_period": map[string]any{
				"starts_at": "2026-01-10T10:00:00Z",
				"ends_at":   "2099-02-10T10:00:00Z",
			},
			"items": []any{map[string]any{"price_id": "pri_gold", "price": map[string]any{"id": "pri_gold"}}},
		},
	})
	require.NoError(t, err)
	return body
}
