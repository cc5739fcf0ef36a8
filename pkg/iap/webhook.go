package iap

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/iapkit/pkg/logger"
)

const defaultWebhookBodyLimit int64 = 1 << 20

// WebhookOption configures a WebhookHandler.
type WebhookOption func(*WebhookHandler)

// WithWebhookLogger sets the handler logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(h *WebhookHandler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithWebhookBodyLimit caps the accepted request body size.
func WithWebhookBodyLimit(n int64) WebhookOption {
	return func(h *WebhookHandler) {
		if n > 0 {
			h.limit = n
		}
	}
}

// WebhookHandler receives Paddle notifications and forwards them, still
// signed, into a Feed. Signature checks happen in the reconciler through the
// configured Verifier, so an unauthenticated body never changes entitlements.
type WebhookHandler struct {
	feed  *Feed
	log   *slog.Logger
	limit int64
}

// NewWebhookHandler creates a handler publishing into feed.
func NewWebhookHandler(feed *Feed, opts ...WebhookOption) *WebhookHandler {
	if feed == nil {
		panic("iap: webhook feed is required")
	}
	h := &WebhookHandler{
		feed:  feed,
		log:   logger.Discard(),
		limit: defaultWebhookBodyLimit,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Transaction events that change entitlement. Others are acknowledged and ignored.
var forwardedTransactionEvents = map[string]bool{
	"transaction.completed": true,
	"transaction.paid":      true,
	"transaction.canceled":  true,
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	signature := r.Header.Get(PaddleSignatureHeader)
	if signature == "" {
		http.Error(w, "missing signature", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var envelope struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		Data      struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.EventType == "" {
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	payload := SignedPayload{Data: body, Signature: signature}
	log := h.log.With(logger.EventType(envelope.EventType), slog.String("event_id", envelope.EventID))

	switch {
	case forwardedTransactionEvents[envelope.EventType]:
		err = h.feed.PublishTransaction(ctx, payload)
	case strings.HasPrefix(envelope.EventType, "subscription."):
		err = h.feed.PublishStatus(ctx, SubscriptionStatus{
			State:       PaddleRenewalState(envelope.Data.Status),
			Transaction: payload,
		})
	default:
		log.DebugContext(ctx, "webhook event ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err != nil {
		log.ErrorContext(ctx, "failed to enqueue webhook event", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	log.DebugContext(ctx, "webhook event enqueued")
	w.WriteHeader(http.StatusOK)
}
