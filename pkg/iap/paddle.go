package iap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleSignatureHeader carries the webhook signature.
const PaddleSignatureHeader = "Paddle-Signature"

// PaddleConfig holds configuration for the Paddle storefront.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleTransactions is the part of the Paddle API the purchaser calls.
// *paddle.SDK satisfies it.
type PaddleTransactions interface {
	CreateTransaction(ctx context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error)
}

// PaddleOption configures a Paddle storefront.
type PaddleOption func(*Paddle)

// WithPaddleProducts maps Paddle price IDs back to product IDs for webhook
// events that lack product_id in their custom data.
func WithPaddleProducts(products ...Product) PaddleOption {
	return func(p *Paddle) {
		for _, product := range products {
			if product.PriceID != "" {
				p.prices[product.PriceID] = product.ID
			}
		}
	}
}

// WithPaddleTransactions replaces the transactions API client.
func WithPaddleTransactions(client PaddleTransactions) PaddleOption {
	return func(p *Paddle) {
		if client != nil {
			p.transactions = client
		}
	}
}

// Paddle is a Purchaser and Verifier backed by Paddle Billing. Purchases
// create hosted checkouts and complete out of band; the entitlement arrives
// later as a signed webhook.
type Paddle struct {
	transactions PaddleTransactions
	verifier     *paddle.WebhookVerifier
	environment  string
	prices       map[string]string
}

// NewPaddle creates a Paddle storefront component.
func NewPaddle(cfg PaddleConfig, opts ...PaddleOption) (*Paddle, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var client *paddle.SDK
	var err error

	env := strings.ToLower(cfg.Environment)
	switch env {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		env = "production"
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	p := &Paddle{
		transactions: client,
		verifier:     paddle.NewWebhookVerifier(cfg.WebhookSecret),
		environment:  env,
		prices:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// CanMakePayments always reports true; Paddle checkouts run in the browser.
func (p *Paddle) CanMakePayments(context.Context) bool { return true }

// Purchase creates a Paddle transaction and returns its hosted checkout URL
// with OutcomePending. Paddle checkouts are always for a single unit.
func (p *Paddle) Purchase(ctx context.Context, product Product, opts PurchaseOptions) (PurchaseResult, error) {
	if product.PriceID == "" {
		return PurchaseResult{}, ErrMissingPriceID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  product.PriceID,
		Quantity: 1,
	})

	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"product_id": product.ID,
		},
	}
	if opts.AppAccountToken != uuid.Nil {
		req.CustomData["app_account_token"] = opts.AppAccountToken.String()
	}
	if opts.SuccessURL != "" {
		req.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(opts.SuccessURL),
		}
	}

	transaction, err := p.transactions.CreateTransaction(ctx, req)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if transaction == nil || transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return PurchaseResult{}, ErrNoCheckoutURL
	}

	return PurchaseResult{
		Outcome:     OutcomePending,
		CheckoutURL: *transaction.Checkout.URL,
	}, nil
}

// Finish is a no-op. Paddle stops redelivering a webhook once it receives a 2xx.
func (p *Paddle) Finish(context.Context, *Transaction) error { return nil }

// Verify checks a webhook body against its Paddle-Signature header and
// decodes the transaction it describes.
func (p *Paddle) Verify(ctx context.Context, payload SignedPayload) VerificationOutcome {
	if payload.IsZero() || payload.Signature == "" {
		return VerificationOutcome{Err: ErrInvalidSignedPayload}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload.Data))
	if err != nil {
		return VerificationOutcome{Err: fmt.Errorf("failed to create request for verification: %w", err)}
	}
	req.Header.Set(PaddleSignatureHeader, payload.Signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return VerificationOutcome{Err: errors.Join(ErrWebhookVerificationFailed, err)}
	}

	tx, derr := p.decode(payload.Data)
	if !valid {
		return VerificationOutcome{Transaction: tx, Err: ErrWebhookVerificationFailed}
	}
	if derr != nil {
		return VerificationOutcome{Transaction: tx, Err: derr}
	}
	return VerificationOutcome{Transaction: tx, Verified: true}
}

type paddleEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       paddleEventData `json:"data"`
}

type paddlePeriod struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type paddleEventData struct {
	ID                   string         `json:"id"`
	Status               string         `json:"status"`
	SubscriptionID       string         `json:"subscription_id"`
	CustomData           map[string]any `json:"custom_data"`
	CreatedAt            time.Time      `json:"created_at"`
	BilledAt             *time.Time     `json:"billed_at"`
	CanceledAt           *time.Time     `json:"canceled_at"`
	BillingPeriod        *paddlePeriod  `json:"billing_period"`
	CurrentBillingPeriod *paddlePeriod  `json:"current_billing_period"`
	Items                []struct {
		PriceID string `json:"price_id"`
		Price   *struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
}

func (d paddleEventData) customString(key string) string {
	if s, ok := d.CustomData[key].(string); ok {
		return s
	}
	return ""
}

func (d paddleEventData) priceID() string {
	if len(d.Items) == 0 {
		return ""
	}
	if d.Items[0].Price != nil && d.Items[0].Price.ID != "" {
		return d.Items[0].Price.ID
	}
	return d.Items[0].PriceID
}

// Transaction statuses that represent a settled payment.
var paddleSettled = map[string]bool{
	"billed":    true,
	"paid":      true,
	"completed": true,
}

func (p *Paddle) decode(body []byte) (*Transaction, error) {
	var event paddleEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, errors.Join(ErrInvalidSignedPayload, fmt.Errorf("failed to parse webhook payload: %w", err))
	}
	data := event.Data
	if data.ID == "" {
		return nil, fmt.Errorf("%w: missing data.id", ErrInvalidSignedPayload)
	}

	productID := data.customString("product_id")
	if productID == "" {
		productID = p.prices[data.priceID()]
	}

	tx := &Transaction{
		ID:          data.ID,
		ProductID:   productID,
		PurchasedAt: firstTime(data.BilledAt, data.CreatedAt, event.OccurredAt),
		Environment: p.environment,
	}
	if token, err := uuid.Parse(data.customString("app_account_token")); err == nil {
		tx.AppAccountToken = token
	}

	status := strings.ToLower(data.Status)
	switch {
	case strings.HasPrefix(event.EventType, "transaction."):
		tx.OriginalID = data.SubscriptionID
		if data.BillingPeriod != nil && !data.BillingPeriod.EndsAt.IsZero() {
			ends := data.BillingPeriod.EndsAt
			tx.ExpiresAt = &ends
		}
		if status == "canceled" {
			revoked := event.OccurredAt
			tx.RevokedAt = &revoked
			tx.RevocationReason = "canceled"
		} else if !paddleSettled[status] {
			return tx, fmt.Errorf("%w: transaction status %q is not settled", ErrInvalidSignedPayload, data.Status)
		}
	case strings.HasPrefix(event.EventType, "subscription."):
		tx.OriginalID = data.ID
		if data.CurrentBillingPeriod != nil && !data.CurrentBillingPeriod.EndsAt.IsZero() {
			ends := data.CurrentBillingPeriod.EndsAt
			tx.ExpiresAt = &ends
		}
		if status == "canceled" {
			ends := firstTime(data.CanceledAt, event.OccurredAt)
			tx.ExpiresAt = &ends
		}
	default:
		return tx, fmt.Errorf("%w: unsupported event type %q", ErrInvalidSignedPayload, event.EventType)
	}

	if tx.ProductID == "" {
		return tx, fmt.Errorf("%w: price %q", ErrProductNotFound, data.priceID())
	}
	return tx, nil
}

// PaddleRenewalState maps a Paddle subscription status to a RenewalState.
func PaddleRenewalState(status string) RenewalState {
	switch strings.ToLower(status) {
	case "active", "trialing":
		return RenewalSubscribed
	case "past_due":
		return RenewalInBillingRetry
	default:
		return RenewalExpired
	}
}

func firstTime(first *time.Time, rest ...time.Time) time.Time {
	if first != nil && !first.IsZero() {
		return *first
	}
	for _, t := range rest {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
