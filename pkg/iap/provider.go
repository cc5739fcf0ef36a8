package iap

import "context"

// Catalog fetches product definitions.
type Catalog interface {
	Products(ctx context.Context, ids []string) ([]Product, error)
}

// Purchaser drives the remote commerce system.
type Purchaser interface {
	CanMakePayments(ctx context.Context) bool
	// Purchase starts a purchase. A returned error means the call itself failed;
	// user cancellation and pending approval are reported through the result.
	Purchase(ctx context.Context, product Product, opts PurchaseOptions) (PurchaseResult, error)
	// Finish acknowledges a transaction so the backend stops redelivering it.
	Finish(ctx context.Context, tx *Transaction) error
}

// EntitlementSource answers authoritative entitlement queries.
type EntitlementSource interface {
	// CurrentEntitlement returns the latest signed transaction for the product,
	// or ok=false when the user has no entitlement record.
	CurrentEntitlement(ctx context.Context, productID string) (payload SignedPayload, ok bool, err error)
	SubscriptionStatuses(ctx context.Context, groupID string) ([]SubscriptionStatus, error)
}

// UpdateStreams exposes the unbounded update sequences. Each call subscribes
// anew. The returned channel is closed when the source stops; consumers stop
// reading when ctx is done, and implementations may also close it then.
type UpdateStreams interface {
	TransactionUpdates(ctx context.Context) <-chan SignedPayload
	StatusUpdates(ctx context.Context) <-chan SubscriptionStatus
	PurchaseIntents(ctx context.Context) <-chan PurchaseIntent
}

// Storefront is the full commerce backend surface the service depends on.
type Storefront interface {
	Catalog
	Purchaser
	EntitlementSource
	UpdateStreams
}

// Verifier is the verification gateway. A negative outcome means
// "could not confirm", never "confirmed absent".
type Verifier interface {
	Verify(ctx context.Context, payload SignedPayload) VerificationOutcome
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, payload SignedPayload) VerificationOutcome

func (f VerifierFunc) Verify(ctx context.Context, payload SignedPayload) VerificationOutcome {
	return f(ctx, payload)
}

type storefront struct {
	Catalog
	Purchaser
	EntitlementSource
	UpdateStreams
}

// ComposeStorefront assembles a Storefront from independent parts, e.g. a
// static catalog, a Paddle purchaser and a webhook-fed update feed.
func ComposeStorefront(c Catalog, p Purchaser, e EntitlementSource, u UpdateStreams) Storefront {
	if c == nil || p == nil || e == nil || u == nil {
		panic("iap: all storefront parts are required")
	}
	return storefront{Catalog: c, Purchaser: p, EntitlementSource: e, UpdateStreams: u}
}

// NoRemoteEntitlements is an EntitlementSource for backends without a query
// API. Every call fails with ErrEntitlementSourceUnavailable, so lookups fall
// back to the entitlement cache.
type NoRemoteEntitlements struct{}

func (NoRemoteEntitlements) CurrentEntitlement(context.Context, string) (SignedPayload, bool, error) {
	return SignedPayload{}, false, ErrEntitlementSourceUnavailable
}

func (NoRemoteEntitlements) SubscriptionStatuses(context.Context, string) ([]SubscriptionStatus, error) {
	return nil, ErrEntitlementSourceUnavailable
}
