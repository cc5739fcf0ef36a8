package iap

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ProductKind classifies how a product grants entitlement.
type ProductKind uint8

const (
	KindConsumable ProductKind = iota + 1
	KindNonConsumable
	KindAutoRenewable
	KindNonRenewable
)

var productKindNames = map[ProductKind]string{
	KindConsumable:    "consumable",
	KindNonConsumable: "non_consumable",
	KindAutoRenewable: "auto_renewable",
	KindNonRenewable:  "non_renewable",
}

func (k ProductKind) String() string {
	if s, ok := productKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseProductKind accepts the names produced by String, with dashes or underscores.
func ParseProductKind(s string) (ProductKind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for k, name := range productKindNames {
		if name == norm {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedProductKind, s)
}

func (k ProductKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ProductKind) UnmarshalText(b []byte) error {
	parsed, err := ParseProductKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SubscriptionInfo places an auto-renewable product inside a subscription group.
// Lower Level means a more valuable tier.
type SubscriptionInfo struct {
	GroupID string `json:"group_id" yaml:"group"`
	Level   int    `json:"level" yaml:"level"`
}

// Product is a catalog entry. It is treated as immutable once fetched.
type Product struct {
	ID           string            `json:"id" yaml:"id"`
	Kind         ProductKind       `json:"kind" yaml:"kind"`
	DisplayName  string            `json:"display_name,omitempty" yaml:"display_name"`
	Description  string            `json:"description,omitempty" yaml:"description"`
	DisplayPrice string            `json:"display_price,omitempty" yaml:"display_price"`
	PriceID      string            `json:"price_id,omitempty" yaml:"price_id"`
	Subscription *SubscriptionInfo `json:"subscription,omitempty" yaml:"subscription"`
}

// GroupID returns the subscription group, or "" for products outside any group.
func (p Product) GroupID() string {
	if p.Subscription == nil {
		return ""
	}
	return p.Subscription.GroupID
}

// PurchaseState is the state of the single purchase attempt an orchestrator tracks.
type PurchaseState uint8

const (
	PurchaseNotStarted PurchaseState = iota
	PurchaseInProgress
	PurchasePurchased
	PurchaseCancelled
	PurchasePending
	PurchaseFailed
	PurchaseFailedVerification
	PurchaseUnknown
)

var purchaseStateNames = [...]string{
	PurchaseNotStarted:         "not_started",
	PurchaseInProgress:         "in_progress",
	PurchasePurchased:          "purchased",
	PurchaseCancelled:          "cancelled",
	PurchasePending:            "pending",
	PurchaseFailed:             "failed",
	PurchaseFailedVerification: "failed_verification",
	PurchaseUnknown:            "unknown",
}

var purchaseStateDescriptions = [...]string{
	PurchaseNotStarted:         "No purchase has been attempted yet.",
	PurchaseInProgress:         "A purchase is being processed.",
	PurchasePurchased:          "The purchase completed and was verified.",
	PurchaseCancelled:          "The purchase was cancelled by the user.",
	PurchasePending:            "The purchase is awaiting approval or payment.",
	PurchaseFailed:             "The purchase failed.",
	PurchaseFailedVerification: "The purchase completed but could not be verified.",
	PurchaseUnknown:            "The store returned an unrecognized result.",
}

func (s PurchaseState) String() string {
	if int(s) < len(purchaseStateNames) {
		return purchaseStateNames[s]
	}
	return "invalid"
}

// Name implements statemachine.State.
func (s PurchaseState) Name() string { return s.String() }

// Description returns a human-readable explanation suitable for UI copy.
func (s PurchaseState) Description() string {
	if int(s) < len(purchaseStateDescriptions) {
		return purchaseStateDescriptions[s]
	}
	return ""
}

func (s PurchaseState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PurchaseOptions are forwarded to the remote purchase call.
type PurchaseOptions struct {
	// AppAccountToken links the purchase to an account in your system.
	AppAccountToken uuid.UUID
	Quantity        int
	// SuccessURL is where hosted checkouts redirect after payment.
	SuccessURL string
}

// PurchaseOutcome classifies the result of the remote purchase call.
type PurchaseOutcome uint8

const (
	OutcomeUnknown PurchaseOutcome = iota
	OutcomeSuccess
	OutcomeUserCancelled
	OutcomePending
)

// PurchaseResult is what a Purchaser returns for a completed remote call.
type PurchaseResult struct {
	Outcome PurchaseOutcome
	// Payload is set for OutcomeSuccess.
	Payload SignedPayload
	// CheckoutURL is set by providers that complete payment out of band.
	CheckoutURL string
}

// PurchaseReceipt is returned to callers of Purchase.
type PurchaseReceipt struct {
	Transaction *Transaction  `json:"transaction,omitempty"`
	State       PurchaseState `json:"state"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
}

// PurchaseIntent is an externally triggered purchase request, e.g. a storefront promotion.
type PurchaseIntent struct {
	ProductID string
	Options   PurchaseOptions
}
