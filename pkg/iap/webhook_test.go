package iap_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/iapkit/pkg/iap"
)

func postWebhook(h http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paddle", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(iap.PaddleSignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandlerRouting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("transaction event", func(t *testing.T) {
		t.Parallel()
		feed := iap.NewFeed(4)
		h := iap.NewWebhookHandler(feed)
		body := paddleWebhook(t, "transaction.completed", completedTransaction())

		rec := postWebhook(h, body, "ts=1;h1=abc")
		assert.Equal(t, http.StatusOK, rec.Code)

		select {
		case p := <-feed.TransactionUpdates(ctx):
			assert.Equal(t, body, p.Data)
			assert.Equal(t, "ts=1;h1=abc", p.Signature)
		default:
			t.Fatal("transaction was not forwarded")
		}
	})

	t.Run("subscription event", func(t *testing.T) {
		t.Parallel()
		feed := iap.NewFeed(4)
		h := iap.NewWebhookHandler(feed)
		body := paddleWebhook(t, "subscription.past_due", map[string]any{"id": "sub_01", "status": "past_due"})

		rec := postWebhook(h, body, "ts=1;h1=abc")
		assert.Equal(t, http.StatusOK, rec.Code)

		select {
		case st := <-feed.StatusUpdates(ctx):
			assert.Equal(t, iap.RenewalInBillingRetry, st.State)
			assert.Equal(t, body, st.Transaction.Data)
		default:
			t.Fatal("status was not forwarded")
		}
	})

	t.Run("unrelated event is acknowledged", func(t *testing.T) {
		t.Parallel()
		feed := iap.NewFeed(4)
		h := iap.NewWebhookHandler(feed)

		rec := postWebhook(h, paddleWebhook(t, "customer.updated", map[string]any{"id": "ctm_01"}), "ts=1;h1=abc")
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = postWebhook(h, paddleWebhook(t, "transaction.created", completedTransaction()), "ts=1;h1=abc")
		assert.Equal(t, http.StatusOK, rec.Code)

		assert.Empty(t, feed.TransactionUpdates(ctx))
		assert.Empty(t, feed.StatusUpdates(ctx))
	})
}

func TestWebhookHandlerRejects(t *testing.T) {
	t.Parallel()
	body := paddleWebhook(t, "transaction.completed", completedTransaction())

	t.Run("method", func(t *testing.T) {
		t.Parallel()
		h := iap.NewWebhookHandler(iap.NewFeed(1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/paddle", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()
		rec := postWebhook(iap.NewWebhookHandler(iap.NewFeed(1)), body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		rec := postWebhook(iap.NewWebhookHandler(iap.NewFeed(1)), []byte("{"), "ts=1;h1=abc")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		t.Parallel()
		h := iap.NewWebhookHandler(iap.NewFeed(1), iap.WithWebhookBodyLimit(16))
		rec := postWebhook(h, []byte(`{"event_type":"`+strings.Repeat("x", 64)+`"}`), "ts=1;h1=abc")
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("closed feed", func(t *testing.T) {
		t.Parallel()
		feed := iap.NewFeed(1)
		require.NoError(t, feed.Close())
		rec := postWebhook(iap.NewWebhookHandler(feed), body, "ts=1;h1=abc")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("nil feed panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { iap.NewWebhookHandler(nil) })
	})
}

// A signed Paddle webhook flows through the handler, the feed and the
// reconciler into the entitlement cache; a forged one changes nothing.
func TestPaddleWebhookEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	products := testProducts()
	pdl := newTestPaddle(t, iap.WithPaddleProducts(products...))
	feed := iap.NewFeed(8)
	storefront := iap.ComposeStorefront(iap.NewStaticCatalog(products...), pdl, iap.NoRemoteEntitlements{}, feed)
	reg := prometheus.NewRegistry()

	svc, err := iap.NewService(ctx, iap.NewInMemSource(testList()), storefront, pdl, iap.NewMemoryStore(),
		iap.WithMetrics(iap.NewMetrics(reg)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	svc.Start(ctx)

	h := iap.NewWebhookHandler(feed)

	forgedBody := paddleWebhook(t, "transaction.completed", completedTransaction())
	rec := postWebhook(h, forgedBody, paddleSignature("attacker", forgedBody))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return counterValue(reg, "iapkit_reconciler_events_total",
			map[string]string{"stream": "transactions", "result": "unverified"}) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, svc.Entitlements())

	payload := signedWebhook(t, "transaction.completed", completedTransaction())
	rec = postWebhook(h, payload.Data, payload.Signature)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		ok, err := svc.IsSubscribed(ctx, "gold")
		return err == nil && ok
	}, 2*time.Second, 5*time.Millisecond)

	cancelled := completedTransaction()
	cancelled["status"] = "canceled"
	payload = signedWebhook(t, "transaction.canceled", cancelled)
	rec = postWebhook(h, payload.Data, payload.Signature)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return len(svc.Entitlements()) == 0
	}, 2*time.Second, 5*time.Millisecond)
}
