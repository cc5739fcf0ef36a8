package iap

import (
	"time"

	"github.com/google/uuid"
)

// SignedPayload is an opaque record produced by the commerce backend.
// For JWS tokens Data holds the compact serialization and Signature is empty;
// webhook providers put the raw body in Data and the signature header in Signature.
type SignedPayload struct {
	Data      []byte
	Signature string
}

// IsZero reports whether the payload carries no data.
func (p SignedPayload) IsZero() bool { return len(p.Data) == 0 }

// Transaction is a decoded purchase record.
type Transaction struct {
	ID               string     `json:"id"`
	OriginalID       string     `json:"original_id,omitempty"`
	ProductID        string     `json:"product_id"`
	PurchasedAt      time.Time  `json:"purchased_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
	// IsUpgraded marks a subscription transaction superseded by a higher tier.
	IsUpgraded      bool      `json:"is_upgraded,omitempty"`
	AppAccountToken uuid.UUID `json:"app_account_token,omitzero"`
	Environment     string    `json:"environment,omitempty"`
}

func (t *Transaction) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired reports whether the transaction has an expiry at or before now.
func (t *Transaction) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// RenewalState is the state of a subscription as reported by the status API.
type RenewalState uint8

const (
	RenewalSubscribed RenewalState = iota + 1
	RenewalExpired
	RenewalInBillingRetry
	RenewalInGracePeriod
	RenewalRevoked
)

func (s RenewalState) String() string {
	switch s {
	case RenewalSubscribed:
		return "subscribed"
	case RenewalExpired:
		return "expired"
	case RenewalInBillingRetry:
		return "in_billing_retry"
	case RenewalInGracePeriod:
		return "in_grace_period"
	case RenewalRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// SubscriptionStatus is one entry of a subscription group status list.
type SubscriptionStatus struct {
	State       RenewalState
	Transaction SignedPayload
	Renewal     SignedPayload
}

// VerificationOutcome is the result of checking a signed payload.
// Transaction may be set even when Verified is false if the payload could be decoded.
type VerificationOutcome struct {
	Transaction *Transaction
	Verified    bool
	Err         error
}

// Confirmed reports a verified outcome that carries a transaction.
func (o VerificationOutcome) Confirmed() bool {
	return o.Verified && o.Transaction != nil
}
